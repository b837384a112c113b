// Package mboxer imports mbox files into a memory engine. Every file is a
// mailbox. Changes are kept in memory and never written back.
package mboxer

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/jhillyerd/enmime"

	"git.sr.ht/~rjarry/mlsync/config"
	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/handlers"
	"git.sr.ht/~rjarry/mlsync/worker/lib"
	"git.sr.ht/~rjarry/mlsync/worker/memory"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

func init() {
	handlers.RegisterEngineFactory("mbox", NewWorker)
}

type Worker struct {
	*memory.Engine
	acct *config.AccountConfig
	path string
	log  log.Logger
}

func NewWorker(acct *config.AccountConfig) (types.Engine, error) {
	u, err := url.Parse(acct.Source)
	if err != nil {
		return nil, err
	}
	w := &Worker{
		Engine: memory.New(acct.Name),
		acct:   acct,
		path:   sourcePath(u),
		log:    log.NewLogger("mbox/"+acct.Name, 3),
	}
	if acct.Trash != "" {
		w.AddMailbox(acct.Trash, models.Trash)
	}
	return w, nil
}

// Connect parses the mbox files
func (w *Worker) Connect(ctx context.Context) error {
	mailboxes, err := loadMailboxes(w.path)
	if err != nil {
		return err
	}
	for name, messages := range mailboxes {
		if err := ctx.Err(); err != nil {
			return err
		}
		typ := w.mailboxType(name)
		w.AddMailbox(name, typ)
		recs := make([]*models.MailRecord, 0, len(messages))
		for i, m := range messages {
			rec, err := w.record(m)
			if err != nil {
				w.log.Warnf("%s: message %d: %v", name, i, err)
				continue
			}
			rec.MailboxID = name
			rec.MailboxType = typ
			rec.SaveStatus = lib.SaveStatus(rec)
			recs = append(recs, rec)
		}
		w.Seed(recs...)
		w.log.Debugf("%s: %d mails", name, len(recs))
	}
	return w.Engine.Connect(ctx)
}

func (w *Worker) mailboxType(name string) models.MailboxType {
	switch {
	case strings.EqualFold(name, "inbox"):
		return models.Inbox
	case name == w.acct.Trash:
		return models.Trash
	case name == w.acct.Spam:
		return models.Spam
	}
	return models.GuessMailboxType(name)
}

// record parses a message. enmime converts html only bodies to text for the
// preview and tells attachments from inline parts.
func (w *Worker) record(m *message) (*models.MailRecord, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(m.content))
	if err == nil {
		m.flags = statusFlags(env.GetHeader("Status"), env.GetHeader("X-Status"))
	}
	rec, rerr := lib.MailRecord(m, w.acct.ToMe)
	if rerr != nil {
		return nil, rerr
	}
	rec.Size = uint32(len(m.content))
	if err != nil {
		w.log.Debugf("mime: %v", err)
		return rec, nil
	}
	rec.Attachments = len(env.Attachments)
	if rec.Preview == "" && env.Text != "" {
		rec.Preview = lib.PartPreview("text/plain", "", nil, strings.NewReader(env.Text))
	}
	return rec, nil
}
