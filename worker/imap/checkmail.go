package imap

import (
	"time"

	"github.com/emersion/go-imap"

	"git.sr.ht/~rjarry/mlsync/lib/log"
)

var statusItems = []imap.StatusItem{
	imap.StatusMessages,
	imap.StatusUidNext,
	imap.StatusUidValidity,
}

func (w *IMAPWorker) checkMailLoop() {
	defer log.PanicHandler()
	ticker := time.NewTicker(w.config.check_mail)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.checkMail()
		}
	}
}

// checkMail compares the status of every synced mailbox with what is known
// and syncs those which changed. Flag changes made by other clients are only
// seen on the idle mailbox or when something else changed.
func (w *IMAPWorker) checkMail() {
	w.Lock()
	defer w.Unlock()
	if w.ready() != nil {
		return
	}
	if err := w.listMailboxes(); err != nil {
		w.log.Errorf("list: %v", err)
		return
	}

	var statuses []*imap.MailboxStatus
	if w.caps.liststatus {
		w.log.Tracef("Checking mail with LIST-STATUS")
		var err error
		statuses, err = w.client.liststatus.ListStatus("", "*", statusItems)
		if err != nil {
			w.log.Errorf("list-status: %v", err)
			return
		}
	} else {
		for name, mbox := range w.mailboxes {
			if !mbox.synced {
				continue
			}
			w.log.Tracef("Getting status of mailbox %s", name)
			status, err := w.client.Status(name, statusItems)
			if err != nil {
				w.log.Errorf("status %s: %v", name, err)
				continue
			}
			statuses = append(statuses, status)
		}
	}

	for _, status := range statuses {
		mbox, ok := w.mailboxes[status.Name]
		if !ok || !mbox.synced {
			continue
		}
		// Some providers report the same UIDNEXT after new mail, the
		// message count is compared as well.
		if status.UidNext == mbox.uidNext &&
			status.Messages == mbox.messages &&
			status.UidValidity == mbox.uidValidity {
			continue
		}
		ch, err := w.sync(status.Name)
		if err != nil {
			w.log.Errorf("sync %s: %v", status.Name, err)
			continue
		}
		w.postChanges(ch)
	}
}
