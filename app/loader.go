package app

import (
	"time"

	"git.sr.ht/~rjarry/mlsync/lib"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

// loader is the state of the incremental load of the current filter
type loader struct {
	// pending is set when Load was called before the engine connected
	pending bool
	// request streaming the remainder, nil when idle
	running *types.Request
	// records asked to the engine so far and total reported by it
	requested int
	total     int
	// IDs touched by an event while absent from the store during a load.
	// Their copy in a remainder batch predates the event.
	stale map[models.MailID]struct{}
}

// remaining is the payload of AddRemainingMail requests. Either records is
// set (remainder of the first query) or count is (LoadMore fetches the
// page in the worker).
type remaining struct {
	records      []*models.MailRecord
	filter       *models.Filter
	mode         sort.Mode
	materializer lib.Materializer
	batchSize    int
	start, count int
}

type remainingBatch struct {
	rows  []*models.MailSummary
	total int
}

// Load replaces the content of the list with the mails matching filter,
// ordered by mode. The first block is inserted before Load returns, the
// remainder streams in through AddRemainingMail.
func (v *MailboxView) Load(filter *models.Filter, mode sort.Mode) {
	if !v.usable() {
		return
	}
	v.CancelAll()
	v.ExitEditMode()
	v.store.Clear()
	v.scope = nil
	v.filter = filter.Copy()
	if v.filter.AccountID == "" {
		v.filter.AccountID = v.accountID()
	}
	if v.filter.Mode == models.FilterMailbox {
		v.filter.MailboxType = v.mailboxType(v.filter.MailboxID)
	}
	v.mode = mode
	v.store.SetMode(mode)
	v.materializer.Search = v.filter.Search
	v.loader = loader{}

	state, err := v.conn.wait(v.conf.ConnectTimeout)
	switch state {
	case connecting:
		v.log.Debugf("engine still connecting, load deferred")
		v.loader.pending = true
		v.observer.OnStatus("still initializing", nil)
		return
	case connectFailed:
		v.observer.OnStatus("connection failed", err)
		v.observer.OnLoadFinished(0)
		return
	}
	v.load()
}

func (v *MailboxView) load() {
	start := time.Now()
	recs, total, err := v.engine.GetMailList(v.ctx, v.filter, v.mode, 0, v.conf.PageSize)
	if err != nil {
		v.observer.OnStatus("cannot load mailbox", err)
		v.observer.OnLoadFinished(0)
		return
	}
	v.loader.requested = len(recs)
	v.loader.total = total
	if len(recs) == 0 {
		v.observer.OnNoContent()
		v.observer.OnLoadFinished(total)
		return
	}

	first := len(recs)
	if first > v.conf.FirstBlockSize {
		first = v.conf.FirstBlockSize
	}
	v.store.InsertBatch(v.materializer.MaterializeAll(recs[:first]))
	v.log.Debugf("first block of %d/%d rows in %s", first, total, time.Since(start))

	if len(recs) == first {
		v.observer.OnLoadFinished(total)
		return
	}
	v.loader.stale = make(map[models.MailID]struct{})
	v.loader.running = v.queue.Enqueue(types.AddRemainingMail, &remaining{
		records:      recs[first:],
		filter:       v.filter.Copy(),
		mode:         v.mode,
		materializer: v.materializer,
		batchSize:    v.conf.BatchSize,
	})
}

// LoadMore fetches the next page when the engine has more mails than were
// requested so far. It does nothing while a load is running.
func (v *MailboxView) LoadMore() {
	if !v.usable() || v.loader.running != nil || v.loader.pending {
		return
	}
	if v.conf.PageSize <= 0 || v.loader.requested >= v.loader.total {
		return
	}
	v.loader.stale = make(map[models.MailID]struct{})
	v.loader.running = v.queue.Enqueue(types.AddRemainingMail, &remaining{
		filter:       v.filter.Copy(),
		mode:         v.mode,
		materializer: v.materializer,
		batchSize:    v.conf.BatchSize,
		start:        v.loader.requested,
		count:        v.conf.PageSize,
	})
	v.loader.requested += v.conf.PageSize
}

// HasMore tells whether LoadMore would fetch anything
func (v *MailboxView) HasMore() bool {
	return v.conf.PageSize > 0 && v.loader.requested < v.loader.total
}

// Loading tells whether a remainder is still streaming
func (v *MailboxView) Loading() bool {
	return v.loader.running != nil || v.loader.pending
}

// markStale records an absent ID touched by an event while loading
func (v *MailboxView) markStale(id models.MailID) {
	if v.loader.running != nil {
		v.loader.stale[id] = struct{}{}
	}
}

func (v *MailboxView) runRemaining(job *types.Job) error {
	p := job.Payload().(*remaining)
	total := -1
	if p.count > 0 {
		recs, t, err := v.engine.GetMailList(v.ctx, p.filter, p.mode, p.start, p.count)
		if err != nil {
			return err
		}
		p.records = recs
		total = t
	}
	for len(p.records) > 0 {
		if job.Cancelled() {
			return nil
		}
		n := p.batchSize
		if n > len(p.records) {
			n = len(p.records)
		}
		rows := p.materializer.MaterializeAll(p.records[:n])
		p.records = p.records[n:]
		sort.Summaries(p.mode, rows)
		if !job.Feedback(&remainingBatch{rows: rows, total: total}) {
			return nil
		}
		total = -1
	}
	return nil
}

func (v *MailboxView) applyRemaining(req *types.Request, payload any) {
	batch := payload.(*remainingBatch)
	if batch.total >= 0 {
		v.loader.total = batch.total
	}
	rows := batch.rows
	var stale []models.MailID
	if len(v.loader.stale) > 0 {
		fresh := rows[:0:0]
		for _, s := range rows {
			if _, ok := v.loader.stale[s.MailID]; ok {
				stale = append(stale, s.MailID)
			} else {
				fresh = append(fresh, s)
			}
		}
		rows = fresh
	}
	v.store.InsertBatch(rows)
	if len(stale) > 0 {
		v.log.Debugf("%d stale rows refetched", len(stale))
		v.reconciler.fetch(stale)
	}
}

func (v *MailboxView) endRemaining(req *types.Request, err error) {
	if req != v.loader.running {
		return
	}
	v.loader.running = nil
	v.loader.stale = nil
	if err != nil {
		v.observer.OnStatus("loading failed", err)
	}
	if !req.Cancelled() {
		v.observer.OnLoadFinished(v.loader.total)
	}
}
