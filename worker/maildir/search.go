package maildir

import (
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/lib"
)

// search answers a list query from the index. The lock must be held.
func (w *Worker) search(filter *models.Filter, mode sort.Mode,
	start, count int,
) ([]*models.MailRecord, int) {
	all := make([]*models.MailRecord, 0, len(w.index))
	for _, rec := range w.index {
		if !filter.MatchesMailbox(rec.AccountID, rec.MailboxID, rec.MailboxType) {
			continue
		}
		all = append(all, rec)
	}
	recs, total := lib.Query(all, filter, mode, start, count)
	w.log.Tracef("search %v: %d/%d records", filter, len(recs), total)
	return recs, total
}
