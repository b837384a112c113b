package imap

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

func (w *IMAPWorker) DeleteMail(ctx context.Context, ids []models.MailID, opt models.DeleteOption) error {
	w.Lock()
	defer w.Unlock()
	if err := w.ready(); err != nil {
		return err
	}
	trash := make(map[string][]uint32)
	for name, uids := range w.group(ids) {
		mbox := w.mailboxes[name]
		if opt == models.Expunge || mbox.typ == models.Trash {
			if err := w.expunge(mbox, uids); err != nil {
				return err
			}
			continue
		}
		trash[name] = uids
	}
	if len(trash) == 0 {
		return nil
	}
	dest := w.trashMailbox()
	if dest == "" {
		return fmt.Errorf("no trash mailbox in account %s", w.acct.Name)
	}
	return w.move(ctx, trash, dest)
}

func (w *IMAPWorker) trashMailbox() string {
	if w.acct.Trash != "" {
		return w.acct.Trash
	}
	for name, mbox := range w.mailboxes {
		if mbox.typ == models.Trash {
			return name
		}
	}
	return ""
}

// expunge permanently removes uids from a mailbox. Messages flagged
// deleted by other clients go away as well. The lock must be held.
func (w *IMAPWorker) expunge(mbox *mailbox, uids []uint32) error {
	if err := w.selectSynced(mbox); err != nil {
		return err
	}
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.DeletedFlag}
	if err := w.client.UidStore(toSeqSet(uids), item, flags, nil); err != nil {
		return errors.Wrap(err, "store \\Deleted")
	}

	exp := newExpunger(w, uids)
	var expunged []uint32
	unknown := 0
	ch := make(chan uint32)
	done := make(chan struct{})
	go func() {
		defer log.PanicHandler()
		for seqNum := range ch {
			if uid, ok := exp.pop(seqNum); ok {
				expunged = append(expunged, uid)
			} else {
				unknown++
			}
		}
		close(done)
	}()
	err := w.client.Expunge(ch)
	<-done

	var removed []models.MailID
	for _, uid := range expunged {
		w.seqMap.Remove(uid)
		removed = append(removed, w.forget(mbox, uid))
	}
	if len(removed) > 0 {
		w.post(&types.Event{
			Kind: types.MailDeleted, MailboxID: mbox.name, MailboxType: mbox.typ,
			MailIDs: removed,
		})
	}
	if err != nil {
		return errors.Wrap(err, "expunge")
	}
	if unknown > 0 || len(exp.remaining()) > 0 {
		// sequence numbers are no longer trustworthy
		w.log.Debugf("%s: %d unexpected expunges, %d missing, syncing",
			mbox.name, unknown, len(exp.remaining()))
		ch, err := w.sync(mbox.name)
		if err != nil {
			return err
		}
		w.postChanges(ch)
	}
	return nil
}
