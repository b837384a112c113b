package imap

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap"

	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/lib"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

func (w *IMAPWorker) SetFlag(ctx context.Context, ids []models.MailID, flag models.Flags, value bool) error {
	imapFlags := translateFlags(flag)
	if len(imapFlags) == 0 {
		return fmt.Errorf("flag %v: %w", flag, types.ErrUnsupported)
	}
	var op imap.FlagsOp = imap.RemoveFlags
	if value {
		op = imap.AddFlags
	}
	item := imap.FormatFlagsOp(op, true)

	w.Lock()
	defer w.Unlock()
	if err := w.ready(); err != nil {
		return err
	}
	for name, uids := range w.group(ids) {
		if err := ctx.Err(); err != nil {
			return err
		}
		mbox := w.mailboxes[name]
		var todo []uint32
		for _, uid := range uids {
			if mbox.flags[uid].Has(flag) != value {
				todo = append(todo, uid)
			}
		}
		if len(todo) == 0 {
			continue
		}
		if _, err := w.selectMailbox(name); err != nil {
			return err
		}
		if err := w.client.UidStore(toSeqSet(todo), item, imapFlags, nil); err != nil {
			return err
		}
		changed := make([]models.MailID, 0, len(todo))
		for _, uid := range todo {
			flags := mbox.flags[uid].Set(flag, value)
			mbox.flags[uid] = flags
			if rec, ok := mbox.recs[uid]; ok {
				rec.Flags = flags
				rec.SaveStatus = lib.SaveStatus(rec)
			}
			changed = append(changed, w.mailID(mbox, uid))
		}
		w.post(&types.Event{
			Kind: types.FlagChanged, MailboxID: name, MailboxType: mbox.typ,
			MailIDs: changed, Flag: flag, Value: value,
		})
	}
	return nil
}
