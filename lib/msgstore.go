package lib

import (
	"git.sr.ht/~rjarry/mlsync/lib/assert"
	"git.sr.ht/~rjarry/mlsync/lib/marker"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
)

// Observer is notified of every change of a mailbox list. All methods are
// called from the apply context.
type Observer interface {
	OnBatchInserted(rows []*models.MailSummary, index int)
	OnRemoved(id models.MailID)
	OnUpdated(id models.MailID)
	OnLoadFinished(total int)
	OnSelectionChanged(count int)
	// OnCleared asks the presentation to release everything it holds for
	// the rows of the list.
	OnCleared()
	OnNoContent()
	OnStatus(msg string, err error)
}

// NopObserver can be embedded to implement only part of Observer
type NopObserver struct{}

func (NopObserver) OnBatchInserted([]*models.MailSummary, int) {}
func (NopObserver) OnRemoved(models.MailID)                    {}
func (NopObserver) OnUpdated(models.MailID)                    {}
func (NopObserver) OnLoadFinished(int)                         {}
func (NopObserver) OnSelectionChanged(int)                     {}
func (NopObserver) OnCleared()                                 {}
func (NopObserver) OnNoContent()                               {}
func (NopObserver) OnStatus(string, error)                     {}

// MessageStore is the ordered list of summaries shown by a view. It is not
// safe for concurrent use: only the apply context may touch it.
type MessageStore struct {
	mode     sort.Mode
	rows     []*models.MailSummary
	byID     map[models.MailID]*models.MailSummary
	marker   marker.Marker
	observer Observer
	closed   bool
}

func NewMessageStore(mode sort.Mode, observer Observer) *MessageStore {
	if observer == nil {
		observer = NopObserver{}
	}
	store := &MessageStore{
		mode:     mode,
		byID:     make(map[models.MailID]*models.MailSummary),
		observer: observer,
	}
	store.marker = marker.New(store, observer.OnSelectionChanged)
	return store
}

func (store *MessageStore) Marker() marker.Marker {
	return store.marker
}

func (store *MessageStore) Mode() sort.Mode {
	return store.mode
}

// SetMode changes the sort order. The store must be empty.
func (store *MessageStore) SetMode(mode sort.Mode) {
	if !assert.That(len(store.rows) == 0, "sort mode changed on a non empty store") {
		return
	}
	store.mode = mode
}

func (store *MessageStore) Len() int {
	return len(store.rows)
}

// Summaries returns the ordered rows. The slice must not be modified.
func (store *MessageStore) Summaries() []*models.MailSummary {
	return store.rows
}

func (store *MessageStore) Lookup(id models.MailID) *models.MailSummary {
	return store.byID[id]
}

func (store *MessageStore) Contains(id models.MailID) bool {
	_, ok := store.byID[id]
	return ok
}

// Index returns the position of the mail or -1
func (store *MessageStore) Index(id models.MailID) int {
	s, ok := store.byID[id]
	if !ok {
		return -1
	}
	i := sort.Search(store.mode, store.rows, s)
	// Search gives the first row s is before; s itself sits just above
	if i > 0 && store.rows[i-1] == s {
		return i - 1
	}
	for i, row := range store.rows {
		if row == s {
			return i
		}
	}
	return -1
}

func (store *MessageStore) usable() bool {
	return assert.That(!store.closed, "message store used after close")
}

// Insert adds a summary at its sorted position. It returns false if a
// summary with the same ID is already present.
func (store *MessageStore) Insert(s *models.MailSummary) bool {
	if !store.usable() {
		return false
	}
	if _, ok := store.byID[s.MailID]; ok {
		return false
	}
	i := store.insert(s)
	store.observer.OnBatchInserted([]*models.MailSummary{s}, i)
	return true
}

func (store *MessageStore) insert(s *models.MailSummary) int {
	i := sort.Search(store.mode, store.rows, s)
	store.rows = append(store.rows, nil)
	copy(store.rows[i+1:], store.rows[i:])
	store.rows[i] = s
	store.byID[s.MailID] = s
	return i
}

// InsertBatch merges the batch into the list in one pass. Summaries already
// present are skipped. The observer gets one notification per contiguous
// run of inserted rows. It returns the number of inserted summaries.
func (store *MessageStore) InsertBatch(batch []*models.MailSummary) int {
	if !store.usable() {
		return 0
	}
	fresh := make([]*models.MailSummary, 0, len(batch))
	seen := make(map[models.MailID]struct{}, len(batch))
	for _, s := range batch {
		if _, ok := store.byID[s.MailID]; ok {
			continue
		}
		if _, ok := seen[s.MailID]; ok {
			continue
		}
		seen[s.MailID] = struct{}{}
		fresh = append(fresh, s)
	}
	if len(fresh) == 0 {
		return 0
	}
	sort.Summaries(store.mode, fresh)

	type run struct {
		index int
		rows  []*models.MailSummary
	}
	var runs []*run
	merged := make([]*models.MailSummary, 0, len(store.rows)+len(fresh))
	i, j := 0, 0
	for i < len(store.rows) || j < len(fresh) {
		if j < len(fresh) &&
			(i == len(store.rows) ||
				sort.Compare(store.mode, fresh[j], store.rows[i]) == sort.Before) {
			pos := len(merged)
			last := len(runs) - 1
			if last >= 0 && runs[last].index+len(runs[last].rows) == pos {
				runs[last].rows = append(runs[last].rows, fresh[j])
			} else {
				runs = append(runs, &run{index: pos, rows: []*models.MailSummary{fresh[j]}})
			}
			merged = append(merged, fresh[j])
			store.byID[fresh[j].MailID] = fresh[j]
			j++
		} else {
			merged = append(merged, store.rows[i])
			i++
		}
	}
	store.rows = merged
	for _, r := range runs {
		store.observer.OnBatchInserted(r.rows, r.index)
	}
	return len(fresh)
}

// Remove detaches the mail from the list and from the selection
func (store *MessageStore) Remove(id models.MailID) bool {
	if !store.usable() {
		return false
	}
	i := store.Index(id)
	if i < 0 {
		return false
	}
	store.detach(i)
	store.marker.Evict(id)
	store.observer.OnRemoved(id)
	return true
}

func (store *MessageStore) detach(i int) {
	s := store.rows[i]
	copy(store.rows[i:], store.rows[i+1:])
	store.rows[len(store.rows)-1] = nil
	store.rows = store.rows[:len(store.rows)-1]
	delete(store.byID, s.MailID)
}

// UpdateInPlace applies a mutator which must leave the sort key of the
// summary untouched.
func (store *MessageStore) UpdateInPlace(id models.MailID,
	mutate func(*models.MailSummary),
) bool {
	if !store.usable() {
		return false
	}
	i := store.Index(id)
	if i < 0 {
		return false
	}
	s := store.rows[i]
	mutate(s)
	if !assert.That(store.inOrder(i), "in place update of %d broke the order", id) {
		store.move(i)
		return true
	}
	store.observer.OnUpdated(id)
	return true
}

// Reinsert applies a mutator which may change the sort key. The summary is
// moved if it no longer fits between its neighbours. Its selection is kept.
func (store *MessageStore) Reinsert(id models.MailID,
	mutate func(*models.MailSummary),
) bool {
	if !store.usable() {
		return false
	}
	i := store.Index(id)
	if i < 0 {
		return false
	}
	mutate(store.rows[i])
	if store.inOrder(i) {
		store.observer.OnUpdated(id)
		return true
	}
	store.move(i)
	return true
}

func (store *MessageStore) move(i int) {
	s := store.rows[i]
	store.detach(i)
	store.observer.OnRemoved(s.MailID)
	j := store.insert(s)
	store.observer.OnBatchInserted([]*models.MailSummary{s}, j)
}

func (store *MessageStore) inOrder(i int) bool {
	var prev, next *models.MailSummary
	if i > 0 {
		prev = store.rows[i-1]
	}
	if i < len(store.rows)-1 {
		next = store.rows[i+1]
	}
	return sort.InOrder(store.mode, prev, store.rows[i], next)
}

// Clear drops every summary and the selection
func (store *MessageStore) Clear() {
	if !store.usable() {
		return
	}
	store.marker.ClearAll()
	store.rows = nil
	store.byID = make(map[models.MailID]*models.MailSummary)
	store.observer.OnCleared()
}

// Close clears the store. Any later use is a programmer error.
func (store *MessageStore) Close() {
	if store.closed {
		return
	}
	store.Clear()
	store.closed = true
}
