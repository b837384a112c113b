package mboxer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/lib/sort"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

func day(n int) time.Time {
	return time.Date(2023, 4, n, 9, 0, 0, 0, time.UTC)
}

func header(subject string, n int, extra string) string {
	return fmt.Sprintf("From: Alice <alice@example.org>\n"+
		"To: me@example.org\n"+
		"Subject: %s\n"+
		"Date: %s\n"+
		"Message-ID: <%d@example.org>\n"+
		"%s", subject, day(n).Format(time.RFC1123Z), n, extra)
}

var inbox = []string{
	header("plain", 1, "Status: RO\nX-Status: AF\n") +
		"\nFrom the start, this is plain text.\n",
	header("html", 2, "Content-Type: text/html; charset=utf-8\n") +
		"\n<html><body><p>Hello from html</p></body></html>\n",
	header("report", 3, "MIME-Version: 1.0\n"+
		"Content-Type: multipart/mixed; boundary=\"b1\"\n") +
		"\n--b1\n" +
		"Content-Type: text/plain\n\n" +
		"see attached\n" +
		"--b1\n" +
		"Content-Type: application/pdf\n" +
		"Content-Disposition: attachment; filename=\"r.pdf\"\n" +
		"Content-Transfer-Encoding: base64\n\n" +
		"JVBERi0xLjQK\n" +
		"--b1--\n",
}

func writeMbox(t *testing.T, path string, mails []string, start time.Time) {
	t.Helper()
	var buf bytes.Buffer
	for i, m := range mails {
		err := Write(&buf, strings.NewReader(m), "alice@example.org",
			start.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func newWorker(t *testing.T, source string) *Worker {
	t.Helper()
	acct := &config.AccountConfig{
		Name:   "archive",
		From:   &mail.Address{Address: "me@example.org"},
		Source: source,
		Trash:  "Trash",
		Spam:   "Junk",
	}
	e, err := NewWorker(acct)
	require.NoError(t, err)
	w := e.(*Worker)
	require.NoError(t, w.Connect(context.Background()))
	t.Cleanup(func() { w.Close() })
	return w
}

func list(t *testing.T, w *Worker, mailbox string) []*models.MailRecord {
	t.Helper()
	recs, total, err := w.GetMailList(context.Background(),
		&models.Filter{MailboxID: mailbox}, sort.DateRecent, 0, 0)
	require.NoError(t, err)
	require.Len(t, recs, total)
	return recs
}

func nextEvent(t *testing.T, w *Worker) *types.Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no event")
	}
	return nil
}

func TestReadWrite(t *testing.T) {
	var buf bytes.Buffer
	for i, m := range inbox[:2] {
		err := Write(&buf, strings.NewReader(m), "alice@example.org", day(i))
		require.NoError(t, err)
	}
	messages, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Contains(t, string(messages[0].content), "Subject: plain")
	assert.Contains(t, string(messages[1].content), "Hello from html")

	messages, err = Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStatusFlags(t *testing.T) {
	assert.Equal(t, models.Flags(0), statusFlags("", ""))
	assert.Equal(t, models.Flags(0), statusFlags("O", ""))
	assert.Equal(t, models.SeenFlag, statusFlags("RO", ""))
	assert.Equal(t,
		models.SeenFlag|models.AnsweredFlag|models.FlaggedFlag,
		statusFlags("R", "AF"))
	assert.Equal(t, models.DraftFlag|models.DeletedFlag, statusFlags("", "TD"))
}

func TestMboxDirectory(t *testing.T) {
	dir := t.TempDir()
	writeMbox(t, filepath.Join(dir, "INBOX.mbox"), inbox, day(1))
	writeMbox(t, filepath.Join(dir, "Archive.mbox"), inbox[:1], day(1))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	before, err := os.ReadFile(filepath.Join(dir, "INBOX.mbox"))
	require.NoError(t, err)

	w := newWorker(t, "mbox://"+dir)
	mailboxes, err := w.Mailboxes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]models.MailboxType{
		"INBOX":   models.Inbox,
		"Archive": models.Archive,
		"Trash":   models.Trash,
	}, mailboxes)

	recs := list(t, w, "INBOX")
	require.Len(t, recs, 3)

	report := recs[0]
	assert.Equal(t, "report", report.Subject)
	assert.Equal(t, "archive", report.AccountID)
	assert.Equal(t, models.Inbox, report.MailboxType)
	assert.Equal(t, 1, report.Attachments)
	assert.Equal(t, "see attached", report.Preview)
	assert.Equal(t, models.Flags(0), report.Flags)
	assert.Equal(t, models.Received, report.SaveStatus)
	assert.True(t, report.ToMe)
	assert.NotZero(t, report.Size)

	html := recs[1]
	assert.Equal(t, "html", html.Subject)
	assert.Contains(t, html.Preview, "Hello from html")
	assert.Equal(t, 0, html.Attachments)

	plain := recs[2]
	assert.Equal(t, "plain", plain.Subject)
	assert.Equal(t, models.SeenFlag|models.AnsweredFlag|models.FlaggedFlag, plain.Flags)
	assert.Equal(t, day(1), plain.Date.UTC())

	// changes stay in memory
	ctx := context.Background()
	require.NoError(t, w.DeleteMail(ctx, []models.MailID{html.ID}, models.MoveToTrash))
	ev := nextEvent(t, w)
	assert.Equal(t, types.MailMoved, ev.Kind)
	assert.Equal(t, "Trash", ev.DestMailboxID)
	assert.Equal(t, []models.MailID{html.ID}, ev.MailIDs)
	assert.Len(t, list(t, w, "INBOX"), 2)
	assert.Len(t, list(t, w, "Trash"), 1)

	after, err := os.ReadFile(filepath.Join(dir, "INBOX.mbox"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMboxFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.mbox")
	writeMbox(t, path, inbox[1:], day(2))

	w := newWorker(t, "mbox://"+path)
	recs := list(t, w, "lists")
	require.Len(t, recs, 2)
	assert.Equal(t, models.User, recs[0].MailboxType)
}

func TestMboxMissing(t *testing.T) {
	e, err := NewWorker(&config.AccountConfig{
		Name:   "missing",
		Source: "mbox://" + filepath.Join(t.TempDir(), "nope.mbox"),
	})
	require.NoError(t, err)
	assert.ErrorIs(t, e.Connect(context.Background()), os.ErrNotExist)
}
