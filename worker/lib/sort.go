package lib

import (
	sortpkg "sort"

	"git.sr.ht/~rjarry/mlsync/lib"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
)

// SortRecords orders records the way a view sorted by mode lists them.
// Engines without server side sorting use it to answer list queries.
func SortRecords(mode sort.Mode, recs []*models.MailRecord) {
	var m lib.Materializer
	keys := make(map[models.MailID]*models.MailSummary, len(recs))
	for _, rec := range recs {
		keys[rec.ID] = m.Materialize(rec)
	}
	sortpkg.SliceStable(recs, func(i, j int) bool {
		return sort.Compare(mode, keys[recs[i].ID], keys[recs[j].ID]) == sort.Before
	})
}

// Page returns recs[start:start+count], count <= 0 meaning everything up to
// the end.
func Page(recs []*models.MailRecord, start, count int) []*models.MailRecord {
	if start >= len(recs) {
		return nil
	}
	if start < 0 {
		start = 0
	}
	end := len(recs)
	if count > 0 && start+count < end {
		end = start + count
	}
	return recs[start:end]
}

// Query answers a list query over an unordered set of records. The
// returned records are copies. The int is the number of matches.
func Query(recs []*models.MailRecord, f *models.Filter, mode sort.Mode,
	start, count int,
) ([]*models.MailRecord, int) {
	matched := FilterRecords(recs, f)
	SortRecords(mode, matched)
	page := Page(matched, start, count)
	out := make([]*models.MailRecord, 0, len(page))
	for _, rec := range page {
		out = append(out, rec.Copy())
	}
	return out, len(matched)
}
