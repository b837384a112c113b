// Package memory is a mail engine keeping everything in memory. It backs
// mem:// accounts and the mbox engine, and drives the view tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/lib/uidstore"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/lib"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

// Engine stores records per ID. Every mutation posts the matching event.
type Engine struct {
	sync.Mutex
	account   string
	trash     string
	mailboxes map[string]models.MailboxType
	mails     map[models.MailID]*models.MailRecord
	uids      *uidstore.Store
	serial    int
	feed      *lib.EventFeed

	connectDelay time.Duration
	failures     map[string]error
	log          log.Logger
}

func New(account string) *Engine {
	e := &Engine{
		account:   account,
		trash:     "Trash",
		mailboxes: make(map[string]models.MailboxType),
		mails:     make(map[models.MailID]*models.MailRecord),
		uids:      uidstore.NewStore(),
		feed:      lib.NewEventFeed(),
		failures:  make(map[string]error),
		log:       log.NewLogger("mem/"+account, 3),
	}
	return e
}

// AddMailbox declares a mailbox. Mailboxes are also created implicitly by
// Seed, Add and MoveMail.
func (e *Engine) AddMailbox(id string, typ models.MailboxType) {
	e.Lock()
	defer e.Unlock()
	e.mailboxes[id] = typ
	if typ == models.Trash {
		e.trash = id
	}
}

// DeleteMailbox drops a mailbox and its mails and posts MailboxDeleted
func (e *Engine) DeleteMailbox(id string) {
	e.Lock()
	defer e.Unlock()
	typ := e.mailboxType(id)
	for mid, rec := range e.mails {
		if rec.MailboxID == id {
			delete(e.mails, mid)
		}
	}
	delete(e.mailboxes, id)
	e.post(&types.Event{
		Kind:        types.MailboxDeleted,
		MailboxID:   id,
		MailboxType: typ,
	})
}

func (e *Engine) mailboxType(id string) models.MailboxType {
	typ, ok := e.mailboxes[id]
	if !ok {
		typ = models.GuessMailboxType(id)
		e.mailboxes[id] = typ
	}
	return typ
}

// SetConnectDelay makes Connect block for d
func (e *Engine) SetConnectDelay(d time.Duration) {
	e.Lock()
	defer e.Unlock()
	e.connectDelay = d
}

// Fail makes the named operation ("list", "get", "move", "delete", "flag")
// return err until cleared with a nil err.
func (e *Engine) Fail(op string, err error) {
	e.Lock()
	defer e.Unlock()
	if err == nil {
		delete(e.failures, op)
	} else {
		e.failures[op] = err
	}
}

func (e *Engine) failure(op string) error {
	if err, ok := e.failures[op]; ok {
		return errors.Wrap(err, op)
	}
	return nil
}

// Seed stores copies of the records without posting events. Records with a
// zero ID get one allocated. It returns the IDs in order.
func (e *Engine) Seed(recs ...*models.MailRecord) []models.MailID {
	e.Lock()
	defer e.Unlock()
	ids := make([]models.MailID, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, e.store(rec))
	}
	return ids
}

func (e *Engine) store(rec *models.MailRecord) models.MailID {
	c := rec.Copy()
	if c.ID == 0 {
		e.serial++
		c.ID = e.uids.GetOrInsert(fmt.Sprintf("%s.%d", e.account, e.serial))
	}
	c.AccountID = e.account
	c.MailboxType = e.mailboxType(c.MailboxID)
	e.mails[c.ID] = c
	return c.ID
}

// Add stores the record and posts MailAdded
func (e *Engine) Add(rec *models.MailRecord) models.MailID {
	e.Lock()
	defer e.Unlock()
	id := e.store(rec)
	c := e.mails[id]
	e.post(&types.Event{
		Kind:        types.MailAdded,
		MailboxID:   c.MailboxID,
		MailboxType: c.MailboxType,
		MailIDs:     []models.MailID{id},
		ThreadID:    c.ThreadID,
	})
	return id
}

// Update applies fn to the record and posts MailUpdated
func (e *Engine) Update(id models.MailID, fn func(*models.MailRecord)) error {
	e.Lock()
	defer e.Unlock()
	rec, ok := e.mails[id]
	if !ok {
		return types.ErrNotFound
	}
	fn(rec)
	e.post(&types.Event{
		Kind:        types.MailUpdated,
		MailboxID:   rec.MailboxID,
		MailboxType: rec.MailboxType,
		MailIDs:     []models.MailID{id},
	})
	return nil
}

// SetSaveStatus changes the send state of mails and posts
// SaveStatusChanged per mailbox
func (e *Engine) SetSaveStatus(ids []models.MailID, status models.SaveStatus) {
	e.Lock()
	defer e.Unlock()
	for mbox, group := range e.group(ids) {
		for _, id := range group {
			e.mails[id].SaveStatus = status
		}
		e.post(&types.Event{
			Kind:        types.SaveStatusChanged,
			MailboxID:   mbox,
			MailboxType: e.mailboxes[mbox],
			MailIDs:     group,
			Status:      status,
		})
	}
}

// Emit posts an arbitrary event, the account is filled in
func (e *Engine) Emit(ev *types.Event) {
	e.Lock()
	defer e.Unlock()
	e.post(ev)
}

func (e *Engine) post(ev *types.Event) {
	ev.AccountID = e.account
	e.feed.Post(ev)
}

// group splits ids by mailbox, unknown IDs are skipped
func (e *Engine) group(ids []models.MailID) map[string][]models.MailID {
	groups := make(map[string][]models.MailID)
	for _, id := range ids {
		if rec, ok := e.mails[id]; ok {
			groups[rec.MailboxID] = append(groups[rec.MailboxID], id)
		}
	}
	return groups
}

func (e *Engine) Connect(ctx context.Context) error {
	e.Lock()
	delay := e.connectDelay
	e.Unlock()
	if delay == 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Close() error {
	e.feed.Close()
	return nil
}

func (e *Engine) GetMailList(ctx context.Context, filter *models.Filter,
	mode sort.Mode, start, count int,
) ([]*models.MailRecord, int, error) {
	e.Lock()
	defer e.Unlock()
	if err := e.failure("list"); err != nil {
		return nil, 0, err
	}
	all := make([]*models.MailRecord, 0, len(e.mails))
	for _, rec := range e.mails {
		all = append(all, rec)
	}
	recs, total := lib.Query(all, filter, mode, start, count)
	e.log.Tracef("list %v: %d/%d records", filter, len(recs), total)
	return recs, total, ctx.Err()
}

func (e *Engine) GetMailByID(ctx context.Context, id models.MailID) (*models.MailRecord, error) {
	e.Lock()
	defer e.Unlock()
	if err := e.failure("get"); err != nil {
		return nil, err
	}
	rec, ok := e.mails[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return rec.Copy(), nil
}

func (e *Engine) MoveMail(ctx context.Context, ids []models.MailID, dest string) error {
	e.Lock()
	defer e.Unlock()
	if err := e.failure("move"); err != nil {
		return err
	}
	e.move(ids, dest)
	return nil
}

func (e *Engine) move(ids []models.MailID, dest string) {
	destType := e.mailboxType(dest)
	for src, group := range e.group(ids) {
		if src == dest {
			continue
		}
		for _, id := range group {
			e.mails[id].MailboxID = dest
			e.mails[id].MailboxType = destType
		}
		e.post(&types.Event{
			Kind:            types.MailMoved,
			MailboxID:       src,
			MailboxType:     e.mailboxes[src],
			DestMailboxID:   dest,
			DestMailboxType: destType,
			MailIDs:         group,
		})
	}
}

func (e *Engine) DeleteMail(ctx context.Context, ids []models.MailID, opt models.DeleteOption) error {
	e.Lock()
	defer e.Unlock()
	if err := e.failure("delete"); err != nil {
		return err
	}
	var expunge, trash []models.MailID
	for _, id := range ids {
		rec, ok := e.mails[id]
		switch {
		case !ok:
			continue
		case opt == models.Expunge || rec.MailboxID == e.trash:
			expunge = append(expunge, id)
		default:
			trash = append(trash, id)
		}
	}
	e.move(trash, e.trash)
	for mbox, group := range e.group(expunge) {
		for _, id := range group {
			delete(e.mails, id)
			e.uids.RemoveID(id)
		}
		e.post(&types.Event{
			Kind:        types.MailDeleted,
			MailboxID:   mbox,
			MailboxType: e.mailboxes[mbox],
			MailIDs:     group,
		})
	}
	return nil
}

func (e *Engine) SetFlag(ctx context.Context, ids []models.MailID,
	flag models.Flags, value bool,
) error {
	e.Lock()
	defer e.Unlock()
	if err := e.failure("flag"); err != nil {
		return err
	}
	for mbox, group := range e.group(ids) {
		var changed []models.MailID
		for _, id := range group {
			rec := e.mails[id]
			if rec.Flags.Has(flag) == value {
				continue
			}
			rec.Flags = rec.Flags.Set(flag, value)
			changed = append(changed, id)
		}
		if len(changed) == 0 {
			continue
		}
		e.post(&types.Event{
			Kind:        types.FlagChanged,
			MailboxID:   mbox,
			MailboxType: e.mailboxes[mbox],
			MailIDs:     changed,
			Flag:        flag,
			Value:       value,
		})
	}
	return nil
}

func (e *Engine) Mailboxes(ctx context.Context) (map[string]models.MailboxType, error) {
	e.Lock()
	defer e.Unlock()
	mailboxes := make(map[string]models.MailboxType, len(e.mailboxes))
	for id, typ := range e.mailboxes {
		mailboxes[id] = typ
	}
	return mailboxes, nil
}

func (e *Engine) Events() <-chan *types.Event {
	return e.feed.Events()
}
