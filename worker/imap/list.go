package imap

import (
	"strings"

	"github.com/emersion/go-imap"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

// special-use attributes (RFC 6154)
var specialUse = map[string]models.MailboxType{
	"\\drafts":  models.Drafts,
	"\\sent":    models.Sent,
	"\\trash":   models.Trash,
	"\\junk":    models.Spam,
	"\\archive": models.Archive,
}

// listMailboxes refreshes the known mailboxes and reports those which were
// removed. The lock must be held.
func (w *IMAPWorker) listMailboxes() error {
	mailboxes := make(chan *imap.MailboxInfo)
	w.log.Tracef("Listing mailboxes")
	done := make(chan struct{})
	seen := make(map[string]bool)

	go func() {
		defer log.PanicHandler()
		for info := range mailboxes {
			if !canOpen(info) || w.isLabel(info) {
				continue
			}
			seen[info.Name] = true
			if mbox, ok := w.mailboxes[info.Name]; ok {
				mbox.typ = w.mailboxType(info)
				continue
			}
			w.addMailbox(info.Name, w.mailboxType(info))
		}
		close(done)
	}()

	err := w.client.List("", "*", mailboxes)
	<-done
	if err != nil {
		return err
	}
	for name, mbox := range w.mailboxes {
		if !seen[name] {
			w.log.Debugf("mailbox %s vanished", name)
			delete(w.mailboxes, name)
			w.post(&types.Event{
				Kind:        types.MailboxDeleted,
				MailboxID:   name,
				MailboxType: mbox.typ,
			})
		}
	}
	return nil
}

func (w *IMAPWorker) addMailbox(name string, typ models.MailboxType) *mailbox {
	mbox := &mailbox{name: name, typ: typ}
	mbox.reset()
	w.mailboxes[name] = mbox
	return mbox
}

func (w *IMAPWorker) mailboxType(info *imap.MailboxInfo) models.MailboxType {
	switch {
	case strings.EqualFold(info.Name, imap.InboxName):
		return models.Inbox
	case info.Name == w.acct.Trash:
		return models.Trash
	case info.Name == w.acct.Spam:
		return models.Spam
	}
	for _, attr := range info.Attributes {
		if typ, ok := specialUse[strings.ToLower(attr)]; ok {
			return typ
		}
	}
	return models.GuessMailboxType(info.Name)
}

// isLabel tells whether a mailbox is a view over messages stored in other
// mailboxes. A mail is only visible from its own mailbox.
func (w *IMAPWorker) isLabel(info *imap.MailboxInfo) bool {
	for _, attr := range info.Attributes {
		switch attr {
		case imap.AllAttr, imap.FlaggedAttr:
			return true
		}
	}
	switch w.config.provider {
	case GMail:
		return info.Name == "[Gmail]/Important" || info.Name == "[Gmail]/Starred"
	case Proton:
		return strings.HasPrefix(info.Name, "Labels/")
	}
	return false
}

const NonExistentAttr = "\\NonExistent"

func canOpen(info *imap.MailboxInfo) bool {
	for _, attr := range info.Attributes {
		if attr == imap.NoSelectAttr ||
			attr == NonExistentAttr {
			return false
		}
	}
	return true
}
