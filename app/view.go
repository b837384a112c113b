package app

import (
	"context"
	"fmt"
	"time"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/lib"
	"git.sr.ht/~rjarry/mlsync/lib/assert"
	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/lib/marker"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

const shutdownTimeout = 2 * time.Second

// MailboxView keeps the list of one mailbox in sync with an engine.
//
// The goroutine calling Run (or Step) is the apply context: every other
// exported method must be called from it, or submitted through Post.
type MailboxView struct {
	engine   types.Engine
	acct     *config.AccountConfig
	conf     config.ViewConfig
	observer lib.Observer

	store        *lib.MessageStore
	queue        *types.Queue
	reconciler   *Reconciler
	materializer lib.Materializer

	filter    *models.Filter
	scope     *models.Filter
	mode      sort.Mode
	loader    loader
	mailboxes map[string]models.MailboxType
	editMode  bool

	ctx       context.Context
	cancel    context.CancelFunc
	conn      *connection
	connected <-chan struct{}
	events    <-chan *types.Event
	posted    chan func(*MailboxView)
	closed    bool

	log log.Logger
}

// NewMailboxView starts connecting the engine. acct may be nil, in which
// case spam moves are not available.
func NewMailboxView(engine types.Engine, acct *config.AccountConfig,
	conf config.ViewConfig, observer lib.Observer,
) *MailboxView {
	if observer == nil {
		observer = lib.NopObserver{}
	}
	name := "view"
	if acct != nil {
		name = "view/" + acct.Name
	}
	v := &MailboxView{
		engine:   engine,
		acct:     acct,
		conf:     conf,
		observer: observer,
		queue:    types.NewQueue(name),
		filter:   &models.Filter{},
		mode:     conf.Sort,
		events:   engine.Events(),
		posted:   make(chan func(*MailboxView), 16),
		log:      log.NewLogger(name, 3),
	}
	v.materializer = lib.Materializer{
		TimestampFormat:    conf.TimestampFormat,
		ThisDayTimeFormat:  conf.ThisDayTimeFormat,
		ThisWeekTimeFormat: conf.ThisWeekTimeFormat,
		ThisYearTimeFormat: conf.ThisYearTimeFormat,
	}
	v.ctx, v.cancel = context.WithCancel(context.Background())
	v.store = lib.NewMessageStore(v.mode, observer)
	v.queue.SetBusyDefer(conf.BusyDefer)
	v.reconciler = &Reconciler{}
	v.reconciler.Init(v)
	v.registerHandlers()
	v.conn = startConnection(v.ctx, engine)
	v.connected = v.conn.done
	return v
}

func (v *MailboxView) Store() *lib.MessageStore {
	return v.store
}

func (v *MailboxView) Queue() *types.Queue {
	return v.queue
}

func (v *MailboxView) Filter() *models.Filter {
	return v.filter.Copy()
}

func (v *MailboxView) Mode() sort.Mode {
	return v.mode
}

func (v *MailboxView) EditMode() bool {
	return v.editMode
}

// Post submits fn to the apply context. It may be called from any
// goroutine.
func (v *MailboxView) Post(fn func(*MailboxView)) {
	v.posted <- fn
}

// Run is the apply loop. It returns when ctx is done, after tearing the
// view down.
func (v *MailboxView) Run(ctx context.Context) {
	defer log.PanicHandler()
	for v.Step(ctx) {
	}
	v.Close()
}

// Step waits for one input (request feedback, engine event, connection
// outcome or posted command) and handles it. It returns false once ctx is
// done.
func (v *MailboxView) Step(ctx context.Context) bool {
	select {
	case msg := <-v.queue.Messages():
		v.queue.ProcessMessage(msg)
	case ev, ok := <-v.events:
		if !ok {
			v.events = nil
			return true
		}
		v.reconciler.Handle(ev)
	case <-v.connected:
		v.connected = nil
		v.onConnected()
	case fn := <-v.posted:
		fn(v)
	case <-ctx.Done():
		return false
	}
	return true
}

func (v *MailboxView) onConnected() {
	state, err := v.conn.current()
	if state == connectFailed {
		v.observer.OnStatus("connection failed", err)
		if v.loader.pending {
			v.loader.pending = false
			v.observer.OnLoadFinished(0)
		}
		return
	}
	if mailboxes, err := v.engine.Mailboxes(v.ctx); err == nil {
		v.mailboxes = mailboxes
	} else {
		v.log.Warnf("cannot list mailboxes: %v", err)
	}
	if v.loader.pending {
		v.loader.pending = false
		v.observer.OnStatus("connected", nil)
		v.load()
	}
}

func (v *MailboxView) mailboxType(id string) models.MailboxType {
	if typ, ok := v.mailboxes[id]; ok {
		return typ
	}
	return models.GuessMailboxType(id)
}

// inboxID returns the mailbox of type inbox, INBOX when the engine lists
// none
func (v *MailboxView) inboxID() string {
	for id, typ := range v.mailboxes {
		if typ == models.Inbox {
			return id
		}
	}
	return "INBOX"
}

func (v *MailboxView) accountID() string {
	if v.acct == nil {
		return ""
	}
	return v.acct.Name
}

func (v *MailboxView) usable() bool {
	return assert.That(!v.closed, "mailbox view used after close")
}

// CancelAll cancels every outstanding request of the view
func (v *MailboxView) CancelAll() {
	if !v.usable() {
		return
	}
	v.queue.CancelAll()
	v.reconciler.Reset()
}

// SetBusy is the "main thread busy" hint: feedback delivery is deferred
// while set, for at most busy-defer. Safe from any goroutine.
func (v *MailboxView) SetBusy(busy bool) {
	v.queue.SetBusy(busy)
}

// SearchScope tells which mailboxes a search covers
type SearchScope int

const (
	// SearchView searches the mailboxes shown before the search started
	SearchView SearchScope = iota
	// SearchAccount searches every mailbox of the account
	SearchAccount
)

// SetSearch toggles search mode. An empty keyword leaves it and restores
// the mailboxes shown before the search. The list is reloaded with the new
// keyword.
func (v *MailboxView) SetSearch(keyword string, scope SearchScope) {
	if !v.usable() {
		return
	}
	base := v.scope
	if base == nil {
		base = v.filter
	}
	filter := base.Copy()
	filter.Search = keyword
	if keyword != "" && scope == SearchAccount {
		filter.Mode = models.FilterAccount
	}
	v.Load(filter, v.mode)
	if keyword != "" {
		v.scope = base
	}
}

// ToggleSelect flips the selection of a mail, entering edit mode if
// needed. It returns the new selection state.
func (v *MailboxView) ToggleSelect(id models.MailID) bool {
	if !v.usable() {
		return false
	}
	s := v.store.Lookup(id)
	if s == nil {
		return false
	}
	if !marker.Selectable(s) {
		v.observer.OnStatus("mail is being sent and cannot be selected", nil)
		return false
	}
	v.editMode = true
	return v.store.Marker().ToggleMark(id)
}

// SelectAll selects every listed mail, or clears the selection. Mails that
// cannot be selected are reported through OnStatus.
func (v *MailboxView) SelectAll(selected bool) {
	if !v.usable() {
		return
	}
	if !selected {
		v.store.Marker().ClearAll()
		return
	}
	v.editMode = true
	skipped := v.store.Marker().SelectAll()
	if len(skipped) > 0 {
		v.observer.OnStatus(
			fmt.Sprintf("%d mails being sent were not selected", len(skipped)), nil)
	}
}

// ExitEditMode leaves edit mode, dropping the selection
func (v *MailboxView) ExitEditMode() {
	v.editMode = false
	v.store.Marker().ClearAll()
}

// Close cancels every request, waits (bounded) for them to end and
// releases the list. The engine is not closed.
func (v *MailboxView) Close() {
	if v.closed {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	v.cancel()
	v.queue.Shutdown(ctx)
	v.reconciler.Shutdown()
	v.store.Close()
	v.closed = true
	v.log.Debugf("closed, feedback stats %+v", v.queue.Stats())
}
