// Package imap is a mail engine backed by an IMAP server. The flags of every
// message of the mailboxes in use are kept in memory, headers are fetched
// when a query needs them. Server side changes are picked up by an idling
// connection on the default mailbox and by polling the others.
package imap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sortthread "github.com/emersion/go-imap-sortthread"
	"github.com/emersion/go-imap/client"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/lib/uidstore"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/handlers"
	"git.sr.ht/~rjarry/mlsync/worker/imap/extensions"
	"git.sr.ht/~rjarry/mlsync/worker/lib"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

func init() {
	handlers.RegisterEngineFactory("imap", NewIMAPWorker)
	handlers.RegisterEngineFactory("imaps", NewIMAPWorker)
}

var (
	errNotConnected   = errors.New("not connected")
	errUnknownMailbox = errors.New("unknown mailbox")
)

type imapClient struct {
	*client.Client
	sort       *sortthread.SortClient
	liststatus *extensions.ListStatusClient
}

// mailbox is what the engine knows of a server mailbox
type mailbox struct {
	name        string
	typ         models.MailboxType
	uidValidity uint32
	uidNext     uint32
	messages    uint32
	// synced is set once the flags of every message were fetched
	synced bool
	flags  map[uint32]models.Flags
	// headers fetched so far
	recs map[uint32]*models.MailRecord
}

func (m *mailbox) reset() {
	m.flags = make(map[uint32]models.Flags)
	m.recs = make(map[uint32]*models.MailRecord)
}

type IMAPWorker struct {
	sync.Mutex
	config *imapConfig
	acct   *config.AccountConfig
	client *imapClient
	caps   struct {
		sort       bool
		liststatus bool
	}

	seqMap    SeqMap
	uids      *uidstore.Store
	mailboxes map[string]*mailbox
	cache     *lib.HeaderCache
	feed      *lib.EventFeed

	idler    *idler
	observer *observer
	done     chan struct{}
	closed   bool
	log      log.Logger
}

// NewIMAPWorker creates an engine for an imap:// or imaps:// account
func NewIMAPWorker(acct *config.AccountConfig) (types.Engine, error) {
	cfg, err := parseConfig(acct)
	if err != nil {
		return nil, err
	}
	w := &IMAPWorker{
		config:    cfg,
		acct:      acct,
		uids:      uidstore.NewStore(),
		mailboxes: make(map[string]*mailbox),
		feed:      lib.NewEventFeed(),
		done:      make(chan struct{}),
		log:       log.NewLogger("imap/"+acct.Name, 3),
	}
	w.observer = newObserver(w)
	w.idler = newIdler(w)
	return w, nil
}

func (w *IMAPWorker) Connect(ctx context.Context) error {
	if w.acct.CacheHeaders && w.acct.CacheDir != "" {
		cache, err := lib.OpenCache(w.acct.CacheDir, w.acct.Name,
			w.acct.CacheMaxAge, w.acct.CacheClean)
		if err != nil {
			w.log.Warnf("header cache disabled: %v", err)
		} else {
			w.cache = cache
		}
	}

	w.Lock()
	defer w.Unlock()
	if err := w.login(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.listMailboxes(); err != nil {
		return err
	}
	w.log.Debugf("%d mailboxes, sort:%t list-status:%t",
		len(w.mailboxes), w.caps.sort, w.caps.liststatus)

	w.idler.Start(w.idleMailbox())
	if w.config.check_mail > 0 {
		go w.checkMailLoop()
	}
	return nil
}

// login opens the command connection. The lock must be held.
func (w *IMAPWorker) login() error {
	c, err := w.connect()
	if err != nil {
		return err
	}
	w.client = &imapClient{
		Client:     c,
		sort:       sortthread.NewSortClient(c),
		liststatus: extensions.NewListStatusClient(c),
	}
	if w.caps.sort, err = w.client.sort.SupportSort(); err != nil {
		return err
	}
	if w.caps.liststatus, err = w.client.liststatus.SupportListStatus(); err != nil {
		return err
	}
	w.seqMap.Clear()
	w.observer.Watch(c)
	return nil
}

// reconnect replaces a lost command connection and catches up with what
// changed meanwhile
func (w *IMAPWorker) reconnect() error {
	w.Lock()
	defer w.Unlock()
	if w.closed {
		return nil
	}
	if err := w.login(); err != nil {
		return err
	}
	for name, mbox := range w.mailboxes {
		if !mbox.synced {
			continue
		}
		ch, err := w.sync(name)
		if err != nil {
			w.log.Errorf("%s: %v", name, err)
			continue
		}
		w.postChanges(ch)
	}
	return nil
}

// ready checks the command connection. The lock must be held.
func (w *IMAPWorker) ready() error {
	if w.closed || w.client == nil {
		return errNotConnected
	}
	select {
	case <-w.client.LoggedOut():
		return errNotConnected
	default:
	}
	return nil
}

// idleMailbox is the mailbox watched by the idle connection
func (w *IMAPWorker) idleMailbox() string {
	if _, ok := w.mailboxes[w.acct.Default]; ok {
		return w.acct.Default
	}
	return "INBOX"
}

func (w *IMAPWorker) Close() error {
	w.Lock()
	if w.closed {
		w.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	c := w.client
	w.Unlock()

	w.idler.Stop()
	var err error
	if c != nil {
		err = c.Logout()
		if errors.Is(err, client.ErrAlreadyLoggedOut) {
			err = nil
		}
	}
	w.feed.Close()
	if w.cache != nil {
		if cerr := w.cache.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (w *IMAPWorker) Events() <-chan *types.Event {
	return w.feed.Events()
}

func (w *IMAPWorker) post(ev *types.Event) {
	ev.AccountID = w.acct.Name
	w.feed.Post(ev)
}

func (w *IMAPWorker) Mailboxes(ctx context.Context) (map[string]models.MailboxType, error) {
	w.Lock()
	defer w.Unlock()
	mailboxes := make(map[string]models.MailboxType, len(w.mailboxes))
	for name, mbox := range w.mailboxes {
		mailboxes[name] = mbox.typ
	}
	return mailboxes, nil
}

func (w *IMAPWorker) GetMailByID(ctx context.Context, id models.MailID) (*models.MailRecord, error) {
	w.Lock()
	defer w.Unlock()
	mbox, uid, ok := w.locate(id)
	if !ok {
		return nil, types.ErrNotFound
	}
	if rec, ok := mbox.recs[uid]; ok {
		return rec.Copy(), nil
	}
	if err := w.ready(); err != nil {
		return nil, err
	}
	if _, err := w.selectMailbox(mbox.name); err != nil {
		return nil, err
	}
	if err := w.fetchRecords(mbox, []uint32{uid}); err != nil {
		return nil, err
	}
	rec, ok := mbox.recs[uid]
	if !ok {
		return nil, types.ErrNotFound
	}
	return rec.Copy(), nil
}

// group splits ids by mailbox, unknown IDs are skipped
func (w *IMAPWorker) group(ids []models.MailID) map[string][]uint32 {
	groups := make(map[string][]uint32)
	for _, id := range ids {
		if mbox, uid, ok := w.locate(id); ok {
			groups[mbox.name] = append(groups[mbox.name], uid)
		}
	}
	return groups
}

func (w *IMAPWorker) mailbox(name string) (*mailbox, error) {
	mbox, ok := w.mailboxes[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, errUnknownMailbox)
	}
	return mbox, nil
}
