package imap

import (
	"context"

	"github.com/emersion/go-imap"
	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

func (w *IMAPWorker) MoveMail(ctx context.Context, ids []models.MailID, dest string) error {
	w.Lock()
	defer w.Unlock()
	if err := w.ready(); err != nil {
		return err
	}
	return w.move(ctx, w.group(ids), dest)
}

// move moves groups of UIDs to dest, creating it if needed. The moved mails
// get new UIDs on the server. They are matched with the originals by
// Message-Id to keep their mail IDs. The lock must be held.
func (w *IMAPWorker) move(ctx context.Context, groups map[string][]uint32, dest string) error {
	target, ok := w.mailboxes[dest]
	if !ok {
		var err error
		if target, err = w.createMailbox(dest); err != nil {
			return errors.Wrapf(err, "create %s", dest)
		}
	}
	// new messages are only recognized against a known state
	if _, err := w.ensureSynced(dest); err != nil {
		return err
	}
	for src, uids := range groups {
		if src == dest || len(uids) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.moveFrom(w.mailboxes[src], uids, target); err != nil {
			return err
		}
	}
	return nil
}

func (w *IMAPWorker) moveFrom(src *mailbox, uids []uint32, dest *mailbox) error {
	if _, err := w.selectMailbox(src.name); err != nil {
		return err
	}
	msgids, err := w.messageIDs(uids)
	if err != nil {
		return err
	}
	w.log.Debugf("moving %d mails from %s to %s", len(uids), src.name, dest.name)
	if err := w.client.UidMove(toSeqSet(uids), dest.name); err != nil {
		return errors.Wrapf(err, "move to %s", dest.name)
	}

	// mails identified by Message-Id, waiting for their new UID
	pending := make(map[string][]models.MailID)
	moved := make(map[models.MailID]*models.MailRecord)
	var lost []models.MailID
	for _, uid := range uids {
		id, _ := w.uids.Get(uidKey(src, uid))
		rec := src.recs[uid]
		delete(src.flags, uid)
		delete(src.recs, uid)
		if w.cache != nil {
			w.cache.Delete(uidKey(src, uid))
		}
		w.seqMap.Remove(uid)
		if msgid := msgids[uid]; msgid != "" {
			pending[msgid] = append(pending[msgid], id)
			moved[id] = rec
		} else {
			w.uids.RemoveID(id)
			lost = append(lost, id)
		}
	}

	ch, err := w.sync(dest.name)
	if err != nil {
		return err
	}
	var ids []models.MailID
	if len(ch.added) > 0 {
		added := make([]uint32, 0, len(ch.added))
		byUID := make(map[uint32]models.MailID, len(ch.added))
		for _, newID := range ch.added {
			_, uid, ok := w.locate(newID)
			if ok {
				added = append(added, uid)
				byUID[uid] = newID
			}
		}
		newMsgids, err := w.messageIDs(added)
		if err != nil {
			return err
		}
		ch.added = ch.added[:0]
		for _, uid := range added {
			newID := byUID[uid]
			candidates := pending[newMsgids[uid]]
			if len(candidates) == 0 {
				ch.added = append(ch.added, newID)
				continue
			}
			id := candidates[0]
			pending[newMsgids[uid]] = candidates[1:]
			w.uids.RemoveID(newID)
			w.uids.Rekey(id, uidKey(dest, uid))
			if rec := moved[id]; rec != nil {
				rec.Flags = dest.flags[uid]
				w.fillRecord(dest, uid, rec)
				dest.recs[uid] = rec
				w.cacheRecord(dest, uid, rec)
			}
			ids = append(ids, id)
		}
	}
	for _, rest := range pending {
		for _, id := range rest {
			w.uids.RemoveID(id)
			lost = append(lost, id)
		}
	}

	if len(ids) > 0 {
		w.post(&types.Event{
			Kind:            types.MailMoved,
			MailboxID:       src.name,
			MailboxType:     src.typ,
			DestMailboxID:   dest.name,
			DestMailboxType: dest.typ,
			MailIDs:         ids,
		})
	}
	if len(lost) > 0 {
		w.log.Warnf("%d moved mails could not be matched in %s", len(lost), dest.name)
		w.post(&types.Event{
			Kind: types.MailDeleted, MailboxID: src.name, MailboxType: src.typ,
			MailIDs: lost,
		})
	}
	w.postChanges(ch)
	return nil
}

// messageIDs fetches the Message-Id of uids in the selected mailbox
func (w *IMAPWorker) messageIDs(uids []uint32) (map[uint32]string, error) {
	msgids := make(map[uint32]string, len(uids))
	if len(uids) == 0 {
		return msgids, nil
	}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope}
	err := w.fetchMessages(toSeqSet(uids), items, func(msg *imap.Message) error {
		if msg.Envelope != nil {
			msgids[msg.Uid] = messageID(msg.Envelope)
		}
		return nil
	})
	return msgids, err
}
