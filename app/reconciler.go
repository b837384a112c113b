package app

import (
	"fmt"

	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mlsync/lib"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
	workerlib "git.sr.ht/~rjarry/mlsync/worker/lib"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

// Reconciler applies engine events to the list of its view. It runs on the
// apply context.
//
// Mails whose current state must be read back from the engine are fetched
// by AddMail requests. At most one such fetch is live per mail: a later
// event about the same mail supersedes it, so that fetch results are never
// applied out of order.
type Reconciler struct {
	view *MailboxView
	// fetch request in charge of each mail
	pending map[models.MailID]*types.Request
	// number of mails each fetch request is still in charge of
	live map[*types.Request]int
}

var eventHandlers = map[types.EventKind]func(*Reconciler, *types.Event){
	types.MailAdded:         (*Reconciler).mailAdded,
	types.MailMoved:         (*Reconciler).mailMoved,
	types.MailDeleted:       (*Reconciler).mailDeleted,
	types.FlagChanged:       (*Reconciler).flagChanged,
	types.SaveStatusChanged: (*Reconciler).saveStatusChanged,
	types.MailUpdated:       (*Reconciler).mailUpdated,
	types.MailboxDeleted:    (*Reconciler).mailboxDeleted,
}

// fetchJob is the payload of AddMail requests
type fetchJob struct {
	ids          []models.MailID
	filter       *models.Filter
	materializer lib.Materializer
	batchSize    int
}

// fetched is one AddMail result. A nil summary means the mail exists but
// does not belong to the view any more.
type fetched struct {
	id      models.MailID
	summary *models.MailSummary
}

func (r *Reconciler) Init(v *MailboxView) {
	r.view = v
	r.Reset()
}

// Reset forgets every fetch. The requests themselves must have been
// cancelled by the caller.
func (r *Reconciler) Reset() {
	r.pending = make(map[models.MailID]*types.Request)
	r.live = make(map[*types.Request]int)
}

func (r *Reconciler) Shutdown() {
	r.Reset()
}

// Handle applies one event
func (r *Reconciler) Handle(ev *types.Event) {
	v := r.view
	if v.closed || v.loader.pending {
		// nothing is listed yet, the coming load will see the change
		return
	}
	if ev.AccountID != "" && v.filter.AccountID != "" && ev.AccountID != v.filter.AccountID {
		return
	}
	h, ok := eventHandlers[ev.Kind]
	if !ok {
		v.log.Warnf("unhandled event %s", ev.Kind)
		return
	}
	v.log.Tracef("event %s", ev)
	h(r, ev)
}

func (r *Reconciler) inSource(ev *types.Event) bool {
	return r.view.filter.MatchesMailbox(ev.AccountID, ev.MailboxID, ev.MailboxType)
}

func (r *Reconciler) mailAdded(ev *types.Event) {
	if !r.inSource(ev) {
		return
	}
	var ids []models.MailID
	for _, id := range ev.MailIDs {
		if !r.view.store.Contains(id) {
			ids = append(ids, id)
		}
	}
	r.fetch(ids)
}

func (r *Reconciler) mailMoved(ev *types.Event) {
	v := r.view
	destType := ev.DestMailboxType
	if destType == models.User {
		destType = v.mailboxType(ev.DestMailboxID)
	}
	destIn := v.filter.MatchesMailbox(ev.AccountID, ev.DestMailboxID, destType)
	var added []models.MailID
	for _, id := range ev.MailIDs {
		switch {
		case v.store.Contains(id) && !destIn:
			r.supersede(id)
			v.store.Remove(id)
		case v.store.Contains(id):
			v.store.UpdateInPlace(id, func(s *models.MailSummary) {
				s.MailboxID = ev.DestMailboxID
				s.MailboxType = destType
			})
			if _, pending := r.pending[id]; pending {
				// the running fetch may have read the old mailbox
				added = append(added, id)
			}
		case destIn:
			added = append(added, id)
		default:
			r.supersede(id)
			v.markStale(id)
		}
	}
	r.fetch(added)
}

func (r *Reconciler) mailDeleted(ev *types.Event) {
	for _, id := range ev.MailIDs {
		r.supersede(id)
		if !r.view.store.Remove(id) {
			r.view.markStale(id)
		}
	}
}

// mailboxDeleted drops the rows of a deleted mailbox. A view of that single
// mailbox, or a search started from it, falls back to the inbox.
func (r *Reconciler) mailboxDeleted(ev *types.Event) {
	v := r.view
	delete(v.mailboxes, ev.MailboxID)
	shown := v.filter
	if v.scope != nil {
		shown = v.scope
	}
	if shown.Mode == models.FilterMailbox && shown.MailboxID == ev.MailboxID {
		v.log.Infof("mailbox %s deleted, back to the inbox", ev.MailboxID)
		v.ExitEditMode()
		v.Load(&models.Filter{
			AccountID: v.filter.AccountID,
			MailboxID: v.inboxID(),
		}, v.mode)
		v.observer.OnStatus(fmt.Sprintf("mailbox %s was deleted", ev.MailboxID), nil)
		return
	}
	for _, s := range v.store.Summaries() {
		if s.MailboxID == ev.MailboxID {
			r.supersede(s.MailID)
			v.store.Remove(s.MailID)
		}
	}
}

func (r *Reconciler) flagChanged(ev *types.Event) {
	v := r.view
	keyed := models.FlagField(ev.Flag)&sort.KeyFields(v.mode) != 0
	var refetch []models.MailID
	for _, id := range ev.MailIDs {
		s := v.store.Lookup(id)
		if s == nil {
			v.markStale(id)
			_, pending := r.pending[id]
			if pending || (v.filter.FlagBoundary(ev.Flag) && r.inSource(ev)) {
				refetch = append(refetch, id)
			}
			continue
		}
		if !v.filter.MatchesFlags(s.Flags().Set(ev.Flag, ev.Value)) {
			r.supersede(id)
			v.store.Remove(id)
			continue
		}
		mutate := func(s *models.MailSummary) {
			s.SetFlag(ev.Flag, ev.Value)
		}
		if keyed {
			v.store.Reinsert(id, mutate)
		} else {
			v.store.UpdateInPlace(id, mutate)
		}
		if _, pending := r.pending[id]; pending {
			// the running fetch may have read the flag before the change
			refetch = append(refetch, id)
		}
	}
	r.fetch(refetch)
}

func (r *Reconciler) saveStatusChanged(ev *types.Event) {
	v := r.view
	var refetch []models.MailID
	for _, id := range ev.MailIDs {
		s := v.store.Lookup(id)
		if s == nil {
			v.markStale(id)
			continue
		}
		switch saveStatusAction(s.MailboxType, s.SaveStatus, ev.Status) {
		case saveRemove:
			r.supersede(id)
			v.store.Remove(id)
		case saveUpdate:
			v.store.UpdateInPlace(id, func(s *models.MailSummary) {
				s.SaveStatus = ev.Status
			})
			if ev.Status == models.Sending {
				v.store.Marker().Unmark(id)
			}
			if _, pending := r.pending[id]; pending {
				// the running fetch may have read the previous status
				refetch = append(refetch, id)
			}
		}
	}
	r.fetch(refetch)
}

func (r *Reconciler) mailUpdated(ev *types.Event) {
	var ids []models.MailID
	for _, id := range ev.MailIDs {
		if r.view.store.Contains(id) || r.inSource(ev) {
			ids = append(ids, id)
		} else {
			r.view.markStale(id)
		}
	}
	r.fetch(ids)
}

// supersede releases the fetch in charge of id. The request is cancelled
// once it is in charge of no mail.
func (r *Reconciler) supersede(id models.MailID) {
	req, ok := r.pending[id]
	if !ok {
		return
	}
	delete(r.pending, id)
	r.release(req)
}

func (r *Reconciler) release(req *types.Request) {
	r.live[req]--
	if r.live[req] <= 0 {
		delete(r.live, req)
		r.view.queue.Cancel(req)
	}
}

// fetch reads the given mails back from the engine and applies their
// current state.
func (r *Reconciler) fetch(ids []models.MailID) {
	if len(ids) == 0 {
		return
	}
	v := r.view
	for _, id := range ids {
		r.supersede(id)
	}
	req := v.queue.Enqueue(types.AddMail, &fetchJob{
		ids:          ids,
		filter:       v.filter.Copy(),
		materializer: v.materializer,
		batchSize:    v.conf.BatchSize,
	})
	if req == nil {
		return
	}
	for _, id := range ids {
		r.pending[id] = req
	}
	r.live[req] = len(ids)
}

func (r *Reconciler) runFetch(job *types.Job) error {
	p := job.Payload().(*fetchJob)
	engine := r.view.engine
	ctx := r.view.ctx
	batch := make([]fetched, 0, len(p.ids))
	for i, id := range p.ids {
		if job.Cancelled() {
			return nil
		}
		rec, err := engine.GetMailByID(ctx, id)
		switch {
		case errors.Is(err, types.ErrNotFound):
			r.view.log.Debugf("mail %d vanished before it could be fetched", id)
		case err != nil:
			return errors.Wrapf(err, "fetch mail %d", id)
		case workerlib.Matches(rec, p.filter):
			batch = append(batch, fetched{id: id, summary: p.materializer.Materialize(rec)})
		default:
			batch = append(batch, fetched{id: id})
		}
		if len(batch) >= p.batchSize || (i == len(p.ids)-1 && len(batch) > 0) {
			if !job.Feedback(batch) {
				return nil
			}
			batch = make([]fetched, 0, len(p.ids)-i-1)
		}
	}
	return nil
}

func (r *Reconciler) applyFetch(req *types.Request, payload any) {
	v := r.view
	for _, f := range payload.([]fetched) {
		if r.pending[f.id] != req {
			continue
		}
		delete(r.pending, f.id)
		r.live[req]--
		cur := v.store.Lookup(f.id)
		switch {
		case f.summary == nil:
			v.store.Remove(f.id)
		case cur == nil:
			v.store.Insert(f.summary)
		default:
			diff := cur.Diff(f.summary)
			mutate := func(s *models.MailSummary) {
				s.CopyFrom(f.summary)
			}
			if diff&sort.KeyFields(v.mode) != 0 {
				v.store.Reinsert(f.id, mutate)
			} else {
				v.store.UpdateInPlace(f.id, mutate)
			}
			if f.summary.SaveStatus == models.Sending {
				v.store.Marker().Unmark(f.id)
			}
		}
	}
	if r.live[req] <= 0 {
		delete(r.live, req)
	}
}

func (r *Reconciler) endFetch(req *types.Request, err error) {
	for _, id := range req.Payload.(*fetchJob).ids {
		if r.pending[id] == req {
			delete(r.pending, id)
		}
	}
	delete(r.live, req)
	if err != nil && !req.Cancelled() {
		r.view.observer.OnStatus("cannot refresh mails", err)
	}
}
