package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/lib"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/memory"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

var epoch = time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)

type insertion struct {
	ids   []models.MailID
	index int
}

type recorder struct {
	inserted  []insertion
	removed   []models.MailID
	updated   []models.MailID
	finished  []int
	selection []int
	statuses  []string
	errs      []error
	cleared   int
	noContent int
}

func (r *recorder) OnBatchInserted(rows []*models.MailSummary, index int) {
	ins := insertion{index: index}
	for _, s := range rows {
		ins.ids = append(ins.ids, s.MailID)
	}
	r.inserted = append(r.inserted, ins)
}

func (r *recorder) OnRemoved(id models.MailID) { r.removed = append(r.removed, id) }
func (r *recorder) OnUpdated(id models.MailID) { r.updated = append(r.updated, id) }
func (r *recorder) OnLoadFinished(total int)   { r.finished = append(r.finished, total) }
func (r *recorder) OnSelectionChanged(c int)   { r.selection = append(r.selection, c) }
func (r *recorder) OnCleared()                 { r.cleared++ }
func (r *recorder) OnNoContent()               { r.noContent++ }

func (r *recorder) OnStatus(msg string, err error) {
	r.statuses = append(r.statuses, msg)
	r.errs = append(r.errs, err)
}

func (r *recorder) batchSizes() []int {
	var sizes []int
	for _, ins := range r.inserted {
		sizes = append(sizes, len(ins.ids))
	}
	return sizes
}

func (r *recorder) wasInserted(id models.MailID) bool {
	for _, ins := range r.inserted {
		for _, i := range ins.ids {
			if i == id {
				return true
			}
		}
	}
	return false
}

type fixture struct {
	engine *memory.Engine
	view   *MailboxView
	rec    *recorder
}

func newFixture(t *testing.T, conf config.ViewConfig) *fixture {
	t.Helper()
	engine := memory.New("test")
	engine.AddMailbox("INBOX", models.Inbox)
	engine.AddMailbox("Archive", models.Archive)
	engine.AddMailbox("Trash", models.Trash)
	engine.AddMailbox("Outbox", models.Outbox)
	rec := &recorder{}
	acct := &config.AccountConfig{Name: "test", Spam: "Junk", Trash: "Trash"}
	view := NewMailboxView(engine, acct, conf, rec)
	t.Cleanup(func() {
		view.Close()
		engine.Close()
	})
	return &fixture{engine: engine, view: view, rec: rec}
}

func inbox() *models.Filter {
	return &models.Filter{MailboxID: "INBOX"}
}

// pumpUntil runs the apply loop until cond holds
func (f *fixture) pumpUntil(t *testing.T, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for !cond() {
		if !f.view.Step(ctx) {
			t.Fatal("condition not reached")
		}
	}
}

// settle runs the apply loop until no request is left and nothing
// happened for a while
func (f *fixture) settle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		stepped := f.view.Step(ctx)
		cancel()
		if !stepped && f.view.Queue().Pending() == 0 {
			return
		}
	}
	t.Fatal("view did not settle")
}

func (f *fixture) ids() []models.MailID {
	var ids []models.MailID
	for _, s := range f.view.Store().Summaries() {
		ids = append(ids, s.MailID)
	}
	return ids
}

func assertSorted(t *testing.T, store *lib.MessageStore) {
	t.Helper()
	rows := store.Summaries()
	for i := 1; i < len(rows); i++ {
		if sort.Compare(store.Mode(), rows[i-1], rows[i]) != sort.Before {
			t.Fatalf("%s: rows %d and %d out of order", store.Mode(),
				rows[i-1].MailID, rows[i].MailID)
		}
	}
}

func TestProgressiveLoad(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.Seed(memory.DemoRecords(120, "INBOX", epoch)...)

	f.view.Load(inbox(), sort.DateRecent)
	assert.Equal(t, 9, f.view.Store().Len())
	assert.Empty(t, f.rec.finished)

	f.settle(t)
	assert.Equal(t, []int{9, 50, 50, 11}, f.rec.batchSizes())
	var indexes []int
	for _, ins := range f.rec.inserted {
		indexes = append(indexes, ins.index)
	}
	assert.Equal(t, []int{0, 9, 59, 109}, indexes)
	assert.Equal(t, []int{120}, f.rec.finished)
	assert.Equal(t, 120, f.view.Store().Len())
	assertSorted(t, f.view.Store())

	stats := f.view.Queue().Stats()
	assert.Equal(t, int64(3), stats.Applied)
	assert.Equal(t, stats.Produced, stats.Applied+stats.Discarded)
}

func TestLoadSmallMailboxFinishesSynchronously(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.Seed(memory.DemoRecords(5, "INBOX", epoch)...)
	f.view.Load(inbox(), sort.SenderAZ)
	assert.Equal(t, 5, f.view.Store().Len())
	assert.Equal(t, []int{5}, f.rec.finished)
	assert.Equal(t, 0, f.view.Queue().Pending())
	assertSorted(t, f.view.Store())
}

func TestLoadEmptyMailbox(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.view.Load(inbox(), sort.DateRecent)
	assert.Equal(t, 1, f.rec.noContent)
	assert.Equal(t, []int{0}, f.rec.finished)
}

func TestLoadEngineFailure(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.Seed(memory.DemoRecords(5, "INBOX", epoch)...)
	f.engine.Fail("list", errors.New("offline"))
	f.view.Load(inbox(), sort.DateRecent)
	assert.Equal(t, 0, f.view.Store().Len())
	assert.Equal(t, []int{0}, f.rec.finished)
	require.NotEmpty(t, f.rec.errs)
	assert.ErrorContains(t, f.rec.errs[len(f.rec.errs)-1], "offline")
}

func TestCancelBeforeFeedback(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.Seed(memory.DemoRecords(120, "INBOX", epoch)...)
	f.view.Load(inbox(), sort.DateRecent)
	f.view.CancelAll()
	f.settle(t)

	assert.Equal(t, 9, f.view.Store().Len())
	assert.Empty(t, f.rec.finished)
	assert.False(t, f.view.Loading())
	stats := f.view.Queue().Stats()
	assert.Equal(t, int64(0), stats.Applied)
	assert.Equal(t, stats.Produced, stats.Discarded)
}

func TestReloadDiscardsPreviousLoad(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.Seed(memory.DemoRecords(120, "INBOX", epoch)...)
	f.engine.Seed(memory.DemoRecords(3, "Archive", epoch)...)
	f.view.Load(inbox(), sort.DateRecent)
	f.view.Load(&models.Filter{MailboxID: "Archive"}, sort.SizeAsc)
	f.settle(t)

	assert.Equal(t, 3, f.view.Store().Len())
	assert.Equal(t, []int{3}, f.rec.finished)
	for _, s := range f.view.Store().Summaries() {
		assert.Equal(t, "Archive", s.MailboxID)
	}
}

func TestConnectTimeoutDefersLoad(t *testing.T) {
	engine := memory.New("test")
	engine.SetConnectDelay(200 * time.Millisecond)
	engine.Seed(memory.DemoRecords(20, "INBOX", epoch)...)
	rec := &recorder{}
	conf := config.DefaultView()
	conf.ConnectTimeout = 10 * time.Millisecond
	view := NewMailboxView(engine, nil, conf, rec)
	f := &fixture{engine: engine, view: view, rec: rec}
	defer engine.Close()
	defer view.Close()

	view.Load(inbox(), sort.DateRecent)
	assert.Equal(t, []string{"still initializing"}, rec.statuses)
	assert.Equal(t, 0, view.Store().Len())
	assert.True(t, view.Loading())

	f.pumpUntil(t, func() bool { return len(rec.finished) > 0 })
	f.settle(t)
	assert.Equal(t, []int{20}, rec.finished)
	assert.Equal(t, 20, view.Store().Len())
}

func TestLoadMore(t *testing.T) {
	conf := config.DefaultView()
	conf.PageSize = 30
	f := newFixture(t, conf)
	f.engine.Seed(memory.DemoRecords(100, "INBOX", epoch)...)

	f.view.Load(inbox(), sort.DateRecent)
	f.settle(t)
	assert.Equal(t, 30, f.view.Store().Len())
	assert.Equal(t, []int{100}, f.rec.finished)
	assert.True(t, f.view.HasMore())

	f.view.LoadMore()
	f.view.LoadMore()
	f.settle(t)
	assert.Equal(t, 60, f.view.Store().Len())
	assert.Len(t, f.rec.finished, 2)

	for f.view.HasMore() {
		f.view.LoadMore()
		f.settle(t)
	}
	assert.Equal(t, 100, f.view.Store().Len())
	assertSorted(t, f.view.Store())
}

func TestSearch(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.Seed(
		&models.MailRecord{MailboxID: "INBOX", Subject: "Quarterly report", Date: epoch},
		&models.MailRecord{MailboxID: "INBOX", Subject: "lunch", Date: epoch},
		&models.MailRecord{MailboxID: "INBOX", Subject: "report draft", Date: epoch},
	)
	f.view.Load(inbox(), sort.SubjectAZ)
	assert.Equal(t, 3, f.view.Store().Len())

	f.view.SetSearch("report", SearchView)
	f.settle(t)
	require.Equal(t, 2, f.view.Store().Len())
	assert.Equal(t, "report", f.view.Filter().Search)
	for _, s := range f.view.Store().Summaries() {
		assert.Contains(t, s.SubjectMarkup, "<b>report</b>")
	}

	// a mail added while searching only shows up if it matches
	f.engine.Add(&models.MailRecord{MailboxID: "INBOX", Subject: "nothing", Date: epoch})
	hit := f.engine.Add(&models.MailRecord{MailboxID: "INBOX", Subject: "report 2", Date: epoch})
	f.pumpUntil(t, func() bool { return f.view.Store().Contains(hit) })
	f.settle(t)
	assert.Equal(t, 3, f.view.Store().Len())

	f.view.SetSearch("", SearchView)
	f.settle(t)
	assert.Equal(t, 5, f.view.Store().Len())
}

func TestSearchAllMailboxes(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.Seed(
		&models.MailRecord{MailboxID: "INBOX", Subject: "report", Date: epoch},
		&models.MailRecord{MailboxID: "INBOX", Subject: "lunch", Date: epoch},
		&models.MailRecord{MailboxID: "Archive", Subject: "old report", Date: epoch},
		&models.MailRecord{MailboxID: "Sent", Subject: "re: report", Date: epoch},
		&models.MailRecord{MailboxID: "Trash", Subject: "report copy", Date: epoch},
		&models.MailRecord{MailboxID: "Junk", Subject: "cheap report", Date: epoch},
	)
	f.view.Load(inbox(), sort.SubjectAZ)
	assert.Equal(t, 2, f.view.Store().Len())

	f.view.SetSearch("report", SearchAccount)
	f.settle(t)
	assert.Equal(t, models.FilterAccount, f.view.Filter().Mode)
	var boxes []string
	for _, s := range f.view.Store().Summaries() {
		boxes = append(boxes, s.MailboxID)
	}
	assert.ElementsMatch(t, []string{"INBOX", "Archive", "Sent"}, boxes)

	// mails reaching any mailbox of the account show up while searching
	hit := f.engine.Add(&models.MailRecord{MailboxID: "lists/go", Subject: "report 2", Date: epoch})
	f.engine.Add(&models.MailRecord{MailboxID: "Trash", Subject: "report 3", Date: epoch})
	f.pumpUntil(t, func() bool { return f.view.Store().Contains(hit) })
	f.settle(t)
	assert.Equal(t, 4, f.view.Store().Len())

	f.view.SetSearch("", SearchAccount)
	f.settle(t)
	assert.Equal(t, models.FilterMailbox, f.view.Filter().Mode)
	assert.Equal(t, "INBOX", f.view.Filter().MailboxID)
	assert.Equal(t, 2, f.view.Store().Len())
}

func TestViewedMailboxDeleted(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(
		&models.MailRecord{MailboxID: "lists/go", Subject: "generics", Date: epoch},
		&models.MailRecord{MailboxID: "lists/go", Subject: "report", Date: epoch},
		&models.MailRecord{MailboxID: "INBOX", Subject: "hello", Date: epoch},
	)
	f.view.Load(&models.Filter{MailboxID: "lists/go"}, sort.DateRecent)
	f.view.SetSearch("report", SearchAccount)
	f.settle(t)
	require.True(t, f.view.ToggleSelect(ids[1]))

	f.engine.DeleteMailbox("lists/go")
	f.pumpUntil(t, func() bool { return f.view.Filter().MailboxID == "INBOX" })
	f.settle(t)
	assert.False(t, f.view.EditMode())
	assert.Equal(t, models.FilterMailbox, f.view.Filter().Mode)
	assert.Empty(t, f.view.Filter().Search)
	assert.Equal(t, 1, f.view.Store().Len())
	assert.True(t, f.view.Store().Contains(ids[2]))
	assert.Contains(t, f.rec.statuses, "mailbox lists/go was deleted")
}

func TestOtherMailboxDeleted(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(
		&models.MailRecord{MailboxID: "INBOX", Subject: "report", Date: epoch},
		&models.MailRecord{MailboxID: "lists/go", Subject: "report", Date: epoch},
	)
	f.view.Load(&models.Filter{Mode: models.FilterAccount, Search: "report"}, sort.DateRecent)
	require.Equal(t, 2, f.view.Store().Len())

	f.engine.DeleteMailbox("lists/go")
	f.pumpUntil(t, func() bool { return !f.view.Store().Contains(ids[1]) })
	f.settle(t)
	assert.Equal(t, models.FilterAccount, f.view.Filter().Mode)
	assert.Equal(t, "report", f.view.Filter().Search)
	assert.True(t, f.view.Store().Contains(ids[0]))
	assert.Contains(t, f.rec.removed, ids[1])
}

func TestMailAddedAndMoved(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(memory.DemoRecords(5, "INBOX", epoch)...)
	archived := f.engine.Seed(&models.MailRecord{MailboxID: "Archive", Date: epoch})[0]
	f.view.Load(inbox(), sort.DateRecent)

	added := f.engine.Add(&models.MailRecord{MailboxID: "INBOX", Date: epoch.Add(time.Hour)})
	f.engine.Add(&models.MailRecord{MailboxID: "Archive", Date: epoch})
	f.pumpUntil(t, func() bool { return f.view.Store().Contains(added) })
	assert.Equal(t, 0, f.view.Store().Index(added))

	require.NoError(t, f.engine.MoveMail(context.Background(), ids[:2], "Archive"))
	require.NoError(t, f.engine.MoveMail(context.Background(), []models.MailID{archived}, "INBOX"))
	f.pumpUntil(t, func() bool { return f.view.Store().Contains(archived) })
	f.settle(t)

	assert.False(t, f.view.Store().Contains(ids[0]))
	assert.False(t, f.view.Store().Contains(ids[1]))
	assert.Equal(t, 5, f.view.Store().Len())
	assertSorted(t, f.view.Store())
}

func TestAllMailboxesOfType(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.AddMailbox("Archive/2022", models.Archive)
	f.engine.Seed(
		&models.MailRecord{MailboxID: "Archive", Date: epoch},
		&models.MailRecord{MailboxID: "Archive/2022", Date: epoch},
		&models.MailRecord{MailboxID: "INBOX", Date: epoch},
	)
	f.view.Load(&models.Filter{Mode: models.FilterAll, MailboxType: models.Archive},
		sort.DateRecent)
	assert.Equal(t, 2, f.view.Store().Len())

	id := f.engine.Add(&models.MailRecord{MailboxID: "Archive/2022", Date: epoch})
	f.pumpUntil(t, func() bool { return f.view.Store().Contains(id) })

	// moving between two archives keeps the mail but updates its mailbox
	require.NoError(t, f.engine.MoveMail(context.Background(), []models.MailID{id}, "Archive"))
	f.pumpUntil(t, func() bool {
		s := f.view.Store().Lookup(id)
		return s != nil && s.MailboxID == "Archive"
	})
	assert.Equal(t, 3, f.view.Store().Len())
}

func TestDeleteAddRace(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.Seed(memory.DemoRecords(5, "INBOX", epoch)...)
	f.view.Load(inbox(), sort.DateRecent)
	id := f.engine.Seed(&models.MailRecord{MailboxID: "INBOX", Date: epoch})[0]

	r := f.view.reconciler
	r.Handle(&types.Event{
		Kind: types.MailAdded, AccountID: "test",
		MailboxID: "INBOX", MailboxType: models.Inbox,
		MailIDs: []models.MailID{id},
	})
	require.Contains(t, r.pending, id)
	r.Handle(&types.Event{
		Kind: types.MailDeleted, AccountID: "test",
		MailboxID: "INBOX", MailboxType: models.Inbox,
		MailIDs: []models.MailID{id},
	})
	assert.NotContains(t, r.pending, id)
	f.settle(t)

	assert.False(t, f.view.Store().Contains(id))
	assert.False(t, f.rec.wasInserted(id))
	assert.Empty(t, r.live)
}

func TestMailDeletedIsIdempotent(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(memory.DemoRecords(5, "INBOX", epoch)...)
	f.view.Load(inbox(), sort.DateRecent)

	ev := &types.Event{
		Kind: types.MailDeleted, AccountID: "test", MailboxID: "INBOX",
		MailIDs: []models.MailID{ids[2], 9999},
	}
	f.view.reconciler.Handle(ev)
	before := f.ids()
	f.view.reconciler.Handle(ev)

	assert.Equal(t, before, f.ids())
	assert.Equal(t, []models.MailID{ids[2]}, f.rec.removed)
	assert.Equal(t, 4, f.view.Store().Len())
}

func TestFlagChangeReinsertsInImportantOrder(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.Seed(memory.DemoRecords(20, "INBOX", epoch)...)
	f.view.Load(inbox(), sort.Important)
	f.settle(t)

	rows := f.view.Store().Summaries()
	last := rows[len(rows)-1]
	require.False(t, last.FlagImportant)
	id := last.MailID

	require.NoError(t, f.engine.SetFlag(context.Background(),
		[]models.MailID{id}, models.FlaggedFlag, true))
	f.pumpUntil(t, func() bool {
		s := f.view.Store().Lookup(id)
		return s != nil && s.FlagImportant
	})

	assert.Contains(t, f.rec.removed, id)
	assert.Less(t, f.view.Store().Index(id), 5)
	assert.Equal(t, 20, f.view.Store().Len())
	assertSorted(t, f.view.Store())

	// not a key of the order: updated where it stands
	index := f.view.Store().Index(id)
	require.NoError(t, f.engine.SetFlag(context.Background(),
		[]models.MailID{id}, models.SeenFlag, false))
	f.pumpUntil(t, func() bool { return !f.view.Store().Lookup(id).IsSeen })
	assert.Equal(t, index, f.view.Store().Index(id))
	assert.Contains(t, f.rec.updated, id)
}

func TestStarredView(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(
		&models.MailRecord{MailboxID: "INBOX", Flags: models.FlaggedFlag, Date: epoch},
		&models.MailRecord{MailboxID: "INBOX", Date: epoch},
	)
	filter := inbox()
	filter.RequireFlags = models.FlaggedFlag
	f.view.Load(filter, sort.DateRecent)
	assert.Equal(t, []models.MailID{ids[0]}, f.ids())

	ctx := context.Background()
	require.NoError(t, f.engine.SetFlag(ctx, ids[1:], models.FlaggedFlag, true))
	f.pumpUntil(t, func() bool { return f.view.Store().Contains(ids[1]) })

	require.NoError(t, f.engine.SetFlag(ctx, ids[:1], models.FlaggedFlag, false))
	f.pumpUntil(t, func() bool { return !f.view.Store().Contains(ids[0]) })

	// deleted flag hides mails
	require.NoError(t, f.engine.SetFlag(ctx, ids[1:], models.DeletedFlag, true))
	f.pumpUntil(t, func() bool { return f.view.Store().Len() == 0 })
}

func TestMailUpdated(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(
		&models.MailRecord{MailboxID: "INBOX", Subject: "b", Date: epoch},
		&models.MailRecord{MailboxID: "INBOX", Subject: "c", Date: epoch},
	)
	f.view.Load(inbox(), sort.SubjectAZ)
	require.Equal(t, []models.MailID{ids[0], ids[1]}, f.ids())

	require.NoError(t, f.engine.Update(ids[1], func(rec *models.MailRecord) {
		rec.Subject = "a"
	}))
	f.pumpUntil(t, func() bool { return f.view.Store().Index(ids[1]) == 0 })
	assert.Equal(t, "a", f.view.Store().Lookup(ids[1]).Subject)

	require.NoError(t, f.engine.Update(ids[1], func(rec *models.MailRecord) {
		rec.Preview = "new preview"
	}))
	f.pumpUntil(t, func() bool {
		return f.view.Store().Lookup(ids[1]).Preview == "new preview"
	})
	assert.Equal(t, 0, f.view.Store().Index(ids[1]))
}

func TestSelection(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(memory.DemoRecords(5, "INBOX", epoch)...)
	f.view.Load(inbox(), sort.DateRecent)

	assert.False(t, f.view.EditMode())
	assert.True(t, f.view.ToggleSelect(ids[0]))
	assert.True(t, f.view.EditMode())
	assert.True(t, f.view.Store().Lookup(ids[0]).Selected)
	assert.False(t, f.view.ToggleSelect(ids[0]))
	assert.False(t, f.view.ToggleSelect(12345))

	f.view.SelectAll(true)
	assert.Equal(t, 5, f.view.Store().Marker().Count())
	f.view.SelectAll(false)
	assert.Equal(t, 0, f.view.Store().Marker().Count())
	assert.Equal(t, []int{1, 0, 5, 0}, f.rec.selection)
}

func TestBulkDeleteClearsSelection(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(memory.DemoRecords(10, "INBOX", epoch)...)
	f.view.Load(inbox(), sort.DateRecent)
	f.settle(t)

	f.view.ToggleSelect(ids[1])
	f.view.ToggleSelect(ids[4])
	req := f.view.ApplyBulkOp(BulkOp{Kind: BulkDelete}, nil)
	require.NotNil(t, req)
	assert.False(t, f.view.EditMode())
	assert.Equal(t, 0, f.view.Store().Marker().Count())

	f.settle(t)
	assert.False(t, f.view.Store().Contains(ids[1]))
	assert.False(t, f.view.Store().Contains(ids[4]))
	assert.Equal(t, 8, f.view.Store().Len())

	rec, err := f.engine.GetMailByID(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Equal(t, "Trash", rec.MailboxID)
}

func TestBulkMoveAndSpam(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(memory.DemoRecords(4, "INBOX", epoch)...)
	f.view.Load(inbox(), sort.DateRecent)

	f.view.ApplyBulkOp(BulkOp{Kind: BulkMove, Dest: "Archive"}, ids[:1])
	f.view.ApplyBulkOp(BulkOp{Kind: BulkSpam}, ids[1:2])
	f.settle(t)
	assert.Equal(t, ids[2:], f.ids())

	rec, err := f.engine.GetMailByID(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Equal(t, "Junk", rec.MailboxID)

	assert.Nil(t, f.view.ApplyBulkOp(BulkOp{Kind: BulkMove}, ids[2:]))
	assert.Nil(t, f.view.ApplyBulkOp(BulkOp{Kind: BulkDelete}, nil))
}

func TestBulkSetFlag(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(memory.DemoRecords(60, "INBOX", epoch)...)
	f.view.Load(inbox(), sort.UnreadFirst)
	f.settle(t)

	f.view.ApplyBulkOp(BulkOp{Kind: BulkSetFlag, Flag: models.SeenFlag, Value: true}, ids)
	f.settle(t)
	for _, s := range f.view.Store().Summaries() {
		assert.True(t, s.IsSeen)
	}
	assertSorted(t, f.view.Store())
}

func TestBulkFailureReported(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(memory.DemoRecords(3, "INBOX", epoch)...)
	f.view.Load(inbox(), sort.DateRecent)
	f.engine.Fail("delete", errors.New("read-only"))

	f.view.ApplyBulkOp(BulkOp{Kind: BulkDelete}, ids)
	f.settle(t)
	assert.Equal(t, 3, f.view.Store().Len())
	require.NotEmpty(t, f.rec.statuses)
	assert.Equal(t, "delete failed", f.rec.statuses[len(f.rec.statuses)-1])
	assert.ErrorContains(t, f.rec.errs[len(f.rec.errs)-1], "read-only")
}

func TestOutboxSaveStatus(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(
		&models.MailRecord{MailboxID: "Outbox", SaveStatus: models.Saved, Date: epoch},
		&models.MailRecord{MailboxID: "Outbox", SaveStatus: models.Saved, Date: epoch},
	)
	f.view.Load(&models.Filter{MailboxID: "Outbox"}, sort.DateRecent)
	require.Equal(t, 2, f.view.Store().Len())
	f.view.SelectAll(true)

	f.engine.SetSaveStatus(ids[:1], models.Sending)
	f.pumpUntil(t, func() bool {
		return f.view.Store().Lookup(ids[0]).SaveStatus == models.Sending
	})
	assert.False(t, f.view.Store().Marker().IsMarked(ids[0]))
	assert.False(t, f.view.ToggleSelect(ids[0]))

	f.engine.SetSaveStatus(ids, models.SendDone)
	f.pumpUntil(t, func() bool { return f.view.Store().Len() == 0 })
	assert.Equal(t, 0, f.view.Store().Marker().Count())
}

// holdFetch starts a refresh of ids and returns its messages without
// applying them, once the engine has been read
func (f *fixture) holdFetch(t *testing.T, ids []models.MailID) []types.WorkerMessage {
	t.Helper()
	f.settle(t)
	f.view.reconciler.fetch(ids)
	req := f.view.reconciler.pending[ids[0]]
	require.NotNil(t, req)
	var held []types.WorkerMessage
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg := <-f.view.queue.Messages():
			if msg.InResponseTo() != req {
				f.view.queue.ProcessMessage(msg)
				continue
			}
			held = append(held, msg)
			if _, done := msg.(*types.Done); done {
				return held
			}
		case <-timeout:
			t.Fatal("fetch did not end")
		}
	}
}

func (f *fixture) nextEvent(t *testing.T) *types.Event {
	t.Helper()
	select {
	case ev := <-f.view.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
	return nil
}

func TestStaleFetchAfterSaveStatus(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(
		&models.MailRecord{MailboxID: "Outbox", SaveStatus: models.Saved, Date: epoch},
	)
	f.view.Load(&models.Filter{MailboxID: "Outbox"}, sort.DateRecent)
	require.Equal(t, 1, f.view.Store().Len())

	held := f.holdFetch(t, ids)
	f.engine.SetSaveStatus(ids, models.Sending)
	f.view.reconciler.Handle(f.nextEvent(t))
	for _, msg := range held {
		f.view.queue.ProcessMessage(msg)
	}
	f.settle(t)

	assert.Equal(t, models.Sending, f.view.Store().Lookup(ids[0]).SaveStatus)
	assert.False(t, f.view.ToggleSelect(ids[0]))
}

func TestStaleFetchAfterMove(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	ids := f.engine.Seed(&models.MailRecord{MailboxID: "INBOX", Date: epoch})
	f.view.Load(&models.Filter{Mode: models.FilterAccount}, sort.DateRecent)
	require.Equal(t, 1, f.view.Store().Len())

	held := f.holdFetch(t, ids)
	require.NoError(t, f.engine.MoveMail(context.Background(), ids, "Archive"))
	f.view.reconciler.Handle(f.nextEvent(t))
	for _, msg := range held {
		f.view.queue.ProcessMessage(msg)
	}
	f.settle(t)

	assert.Equal(t, "Archive", f.view.Store().Lookup(ids[0]).MailboxID)
}

func TestSaveStatusTable(t *testing.T) {
	statuses := []models.SaveStatus{
		models.Received, models.Saved, models.SendScheduled, models.Sending,
		models.SendDone, models.SendFailed, models.SendCanceled,
	}
	for typ := models.User; typ <= models.Archive; typ++ {
		for _, s := range statuses {
			assert.Equal(t, saveIgnore, saveStatusAction(typ, s, s), "%s %s", typ, s)
		}
	}
	tests := []struct {
		mailbox  models.MailboxType
		from, to models.SaveStatus
		action   saveAction
	}{
		{models.Outbox, models.Saved, models.SendScheduled, saveRemove},
		{models.Outbox, models.Sending, models.SendDone, saveRemove},
		{models.Outbox, models.Saved, models.Sending, saveUpdate},
		{models.Outbox, models.Sending, models.SendFailed, saveUpdate},
		{models.Scheduled, models.SendScheduled, models.Sending, saveRemove},
		{models.Scheduled, models.Saved, models.Sending, saveUpdate},
		{models.Scheduled, models.SendScheduled, models.SendCanceled, saveRemove},
		{models.Drafts, models.Saved, models.Sending, saveRemove},
		{models.Drafts, models.Saved, models.SendFailed, saveUpdate},
		{models.Inbox, models.Received, models.Saved, saveUpdate},
		{models.Sent, models.Sending, models.SendDone, saveUpdate},
	}
	for _, test := range tests {
		name := fmt.Sprintf("%s/%s->%s", test.mailbox, test.from, test.to)
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.action, saveStatusAction(test.mailbox, test.from, test.to))
		})
	}
}

func TestSortInvariantUnderRandomEvents(t *testing.T) {
	for _, mode := range []sort.Mode{
		sort.DateRecent, sort.SenderAZ, sort.UnreadFirst, sort.Important, sort.SizeDesc,
	} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t, config.DefaultView())
			f.engine.Seed(memory.DemoRecords(80, "INBOX", epoch)...)
			f.view.Load(inbox(), mode)
			f.settle(t)

			r := rand.New(rand.NewSource(int64(mode)))
			ctx := context.Background()
			for step := 0; step < 40; step++ {
				ids := f.ids()
				if len(ids) == 0 {
					break
				}
				id := []models.MailID{ids[r.Intn(len(ids))]}
				switch r.Intn(5) {
				case 0:
					f.engine.Add(&models.MailRecord{
						MailboxID: "INBOX",
						Date:      epoch.Add(time.Duration(r.Intn(1000)) * time.Minute),
						Size:      uint32(r.Intn(5000)),
					})
				case 1:
					require.NoError(t, f.engine.SetFlag(ctx, id, models.SeenFlag, r.Intn(2) == 0))
				case 2:
					require.NoError(t, f.engine.SetFlag(ctx, id, models.FlaggedFlag, r.Intn(2) == 0))
				case 3:
					require.NoError(t, f.engine.MoveMail(ctx, id, "Archive"))
				case 4:
					require.NoError(t, f.engine.DeleteMail(ctx, id, models.Expunge))
				}
				f.settle(t)
				assertSorted(t, f.view.Store())
			}

			// the list ends up identical to a fresh load
			recs, total, err := f.engine.GetMailList(ctx, inbox(), mode, 0, 0)
			require.NoError(t, err)
			require.Equal(t, total, f.view.Store().Len())
			for i, rec := range recs {
				assert.Equal(t, rec.ID, f.view.Store().Summaries()[i].MailID)
			}
		})
	}
}

func TestCloseEndsEveryRequest(t *testing.T) {
	f := newFixture(t, config.DefaultView())
	f.engine.Seed(memory.DemoRecords(500, "INBOX", epoch)...)
	conf := config.DefaultView()
	conf.BatchSize = 1
	f.view.conf = conf
	f.view.Load(inbox(), sort.DateRecent)
	f.view.Close()

	assert.Equal(t, 0, f.view.Queue().Pending())
	stats := f.view.Queue().Stats()
	assert.Equal(t, stats.Produced, stats.Applied+stats.Discarded)
	assert.Equal(t, 0, f.view.Store().Len())
}
