package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

func nextEvent(t *testing.T, e *Engine) *types.Event {
	t.Helper()
	select {
	case ev := <-e.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
	return nil
}

func TestAddPostsEvent(t *testing.T) {
	e := New("test")
	defer e.Close()
	id := e.Add(&models.MailRecord{MailboxID: "INBOX", Subject: "hi"})

	ev := nextEvent(t, e)
	assert.Equal(t, types.MailAdded, ev.Kind)
	assert.Equal(t, "test", ev.AccountID)
	assert.Equal(t, models.Inbox, ev.MailboxType)
	assert.Equal(t, []models.MailID{id}, ev.MailIDs)

	rec, err := e.GetMailByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "hi", rec.Subject)
	rec.Subject = "changed"
	again, _ := e.GetMailByID(context.Background(), id)
	assert.Equal(t, "hi", again.Subject)
}

func TestGetMailList(t *testing.T) {
	e := New("test")
	defer e.Close()
	now := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	e.Seed(DemoRecords(30, "INBOX", now)...)
	e.Seed(&models.MailRecord{MailboxID: "Archive", Date: now})

	ctx := context.Background()
	filter := &models.Filter{MailboxID: "INBOX"}
	recs, total, err := e.GetMailList(ctx, filter, sort.DateRecent, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 30, total)
	require.Len(t, recs, 10)
	for i := 1; i < len(recs); i++ {
		assert.True(t, recs[i-1].Date.After(recs[i].Date))
	}

	rest, _, err := e.GetMailList(ctx, filter, sort.DateRecent, 10, 0)
	require.NoError(t, err)
	assert.Len(t, rest, 20)

	filter.RequireFlags = models.FlaggedFlag
	flagged, total, err := e.GetMailList(ctx, filter, sort.DateRecent, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	for _, rec := range flagged {
		assert.True(t, rec.Flags.Has(models.FlaggedFlag))
	}

	e.Fail("list", errors.New("offline"))
	_, _, err = e.GetMailList(ctx, filter, sort.DateRecent, 0, 0)
	assert.Error(t, err)
	e.Fail("list", nil)
	_, _, err = e.GetMailList(ctx, filter, sort.DateRecent, 0, 0)
	assert.NoError(t, err)
}

func TestDeleteMovesToTrashThenExpunges(t *testing.T) {
	e := New("test")
	defer e.Close()
	e.AddMailbox("Trash", models.Trash)
	ids := e.Seed(&models.MailRecord{MailboxID: "INBOX"})
	ctx := context.Background()

	require.NoError(t, e.DeleteMail(ctx, ids, models.MoveToTrash))
	ev := nextEvent(t, e)
	assert.Equal(t, types.MailMoved, ev.Kind)
	assert.Equal(t, "INBOX", ev.MailboxID)
	assert.Equal(t, "Trash", ev.DestMailboxID)
	assert.Equal(t, models.Trash, ev.DestMailboxType)

	require.NoError(t, e.DeleteMail(ctx, ids, models.MoveToTrash))
	ev = nextEvent(t, e)
	assert.Equal(t, types.MailDeleted, ev.Kind)
	assert.Equal(t, ids, ev.MailIDs)

	_, err := e.GetMailByID(ctx, ids[0])
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSetFlagOnlyReportsChanges(t *testing.T) {
	e := New("test")
	defer e.Close()
	ids := e.Seed(
		&models.MailRecord{MailboxID: "INBOX", Flags: models.SeenFlag},
		&models.MailRecord{MailboxID: "INBOX"},
	)
	require.NoError(t, e.SetFlag(context.Background(), ids, models.SeenFlag, true))
	ev := nextEvent(t, e)
	assert.Equal(t, types.FlagChanged, ev.Kind)
	assert.Equal(t, []models.MailID{ids[1]}, ev.MailIDs)
	assert.True(t, ev.Value)
	assert.Equal(t, models.SeenFlag, ev.Flag)
}

func TestEventsKeepOrder(t *testing.T) {
	e := New("test")
	defer e.Close()
	var ids []models.MailID
	for i := 0; i < 200; i++ {
		ids = append(ids, e.Add(&models.MailRecord{MailboxID: "INBOX"}))
	}
	for _, id := range ids {
		ev := nextEvent(t, e)
		assert.Equal(t, []models.MailID{id}, ev.MailIDs)
	}
}

func TestConnectDelay(t *testing.T) {
	e := New("test")
	defer e.Close()
	e.SetConnectDelay(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Connect(ctx), context.DeadlineExceeded)
}

func TestDeleteMailbox(t *testing.T) {
	e := New("test")
	defer e.Close()
	ids := e.Seed(
		&models.MailRecord{MailboxID: "lists/go"},
		&models.MailRecord{MailboxID: "INBOX"},
	)
	e.DeleteMailbox("lists/go")

	ev := nextEvent(t, e)
	assert.Equal(t, types.MailboxDeleted, ev.Kind)
	assert.Equal(t, "lists/go", ev.MailboxID)
	_, err := e.GetMailByID(context.Background(), ids[0])
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = e.GetMailByID(context.Background(), ids[1])
	assert.NoError(t, err)
	boxes, err := e.Mailboxes(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, boxes, "lists/go")
}
