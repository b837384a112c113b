package imap

import (
	"context"
	gosort "sort"
	"strings"

	"github.com/emersion/go-imap"
	sortthread "github.com/emersion/go-imap-sortthread"

	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/lib"
)

// orders the server can compute with SORT (RFC 5256)
var sortCriteria = map[sort.Mode]sortthread.SortCriterion{
	sort.DateRecent:  {Field: sortthread.SortDate, Reverse: true},
	sort.DateOldest:  {Field: sortthread.SortDate},
	sort.SenderAZ:    {Field: sortthread.SortFrom},
	sort.SenderZA:    {Field: sortthread.SortFrom, Reverse: true},
	sort.RecipientAZ: {Field: sortthread.SortTo},
	sort.RecipientZA: {Field: sortthread.SortTo, Reverse: true},
	sort.SubjectAZ:   {Field: sortthread.SortSubject},
	sort.SubjectZA:   {Field: sortthread.SortSubject, Reverse: true},
	sort.SizeAsc:     {Field: sortthread.SortSize},
	sort.SizeDesc:    {Field: sortthread.SortSize, Reverse: true},
}

// translateSearch builds the criteria of the mails a filter may match. Fuzzy
// keyword terms cannot be expressed and are left for local matching.
func translateSearch(f *models.Filter) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	exclude := f.ExcludeFlags
	if !f.RequireFlags.Has(models.DeletedFlag) {
		exclude |= models.DeletedFlag
	}
	criteria.WithFlags = flagNames(f.RequireFlags)
	criteria.WithoutFlags = flagNames(exclude &^ f.RequireFlags)
	for _, term := range strings.Fields(f.Search) {
		if strings.HasPrefix(term, "~") {
			continue
		}
		criteria.Text = append(criteria.Text, term)
	}
	return criteria
}

// targets returns the mailboxes a filter can match, ordered by name
func (w *IMAPWorker) targets(f *models.Filter) []*mailbox {
	var targets []*mailbox
	switch f.Mode {
	case models.FilterAll, models.FilterAccount:
		for _, mbox := range w.mailboxes {
			if f.MatchesMailbox("", mbox.name, mbox.typ) {
				targets = append(targets, mbox)
			}
		}
		gosort.Slice(targets, func(i, j int) bool {
			return targets[i].name < targets[j].name
		})
	default:
		if mbox, ok := w.mailboxes[f.MailboxID]; ok {
			targets = append(targets, mbox)
		}
	}
	return targets
}

func (w *IMAPWorker) GetMailList(ctx context.Context, filter *models.Filter,
	mode sort.Mode, start, count int,
) ([]*models.MailRecord, int, error) {
	w.Lock()
	defer w.Unlock()
	if err := w.ready(); err != nil {
		return nil, 0, err
	}
	targets := w.targets(filter)
	if len(targets) == 1 && w.serverSorted(filter, mode) {
		return w.sortedPage(ctx, targets[0], filter, mode, start, count)
	}

	var candidates []*models.MailRecord
	for _, mbox := range targets {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if _, err := w.ensureSynced(mbox.name); err != nil {
			return nil, 0, err
		}
		uids, err := w.candidates(mbox, filter)
		if err != nil {
			return nil, 0, err
		}
		if err := w.fetchRecords(mbox, uids); err != nil {
			return nil, 0, err
		}
		for _, uid := range uids {
			if rec, ok := mbox.recs[uid]; ok {
				candidates = append(candidates, rec)
			}
		}
	}
	recs, total := lib.Query(candidates, filter, mode, start, count)
	w.log.Tracef("list %v: %d/%d records", filter, len(recs), total)
	return recs, total, ctx.Err()
}

// candidates returns the UIDs of a mailbox which may match the filter. Flags
// are checked against the local state, keywords are searched by the server.
// The mailbox is selected on return.
func (w *IMAPWorker) candidates(mbox *mailbox, f *models.Filter) ([]uint32, error) {
	if _, err := w.selectMailbox(mbox.name); err != nil {
		return nil, err
	}
	var found map[uint32]bool
	criteria := translateSearch(f)
	if len(criteria.Text) > 0 {
		uids, err := w.client.UidSearch(criteria)
		if err != nil {
			return nil, err
		}
		found = make(map[uint32]bool, len(uids))
		for _, uid := range uids {
			found[uid] = true
		}
	}
	var uids []uint32
	for uid, flags := range mbox.flags {
		if !f.MatchesFlags(flags) {
			continue
		}
		if found != nil && !found[uid] {
			continue
		}
		uids = append(uids, uid)
	}
	return uids, nil
}

func (w *IMAPWorker) serverSorted(f *models.Filter, mode sort.Mode) bool {
	if !w.config.serverSort || !w.caps.sort || f.Search != "" {
		return false
	}
	_, ok := sortCriteria[mode]
	return ok
}

// sortedPage lets the server sort and only fetches the headers of the
// requested page. Mails with equal sort keys may be ordered differently by
// the server.
func (w *IMAPWorker) sortedPage(ctx context.Context, mbox *mailbox, f *models.Filter,
	mode sort.Mode, start, count int,
) ([]*models.MailRecord, int, error) {
	if _, err := w.ensureSynced(mbox.name); err != nil {
		return nil, 0, err
	}
	if _, err := w.selectMailbox(mbox.name); err != nil {
		return nil, 0, err
	}
	uids, err := w.client.sort.UidSort(
		[]sortthread.SortCriterion{sortCriteria[mode]}, translateSearch(f))
	if err != nil {
		return nil, 0, err
	}
	total := len(uids)
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if count > 0 && start+count < total {
		end = start + count
	}
	page := uids[start:end]
	if err := w.fetchRecords(mbox, page); err != nil {
		return nil, 0, err
	}
	recs := make([]*models.MailRecord, 0, len(page))
	for _, uid := range page {
		if rec, ok := mbox.recs[uid]; ok {
			recs = append(recs, rec.Copy())
		}
	}
	lib.SortRecords(mode, recs)
	w.log.Tracef("sorted list %v: %d/%d records", f, len(recs), total)
	return recs, total, ctx.Err()
}
