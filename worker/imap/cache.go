package imap

import (
	"fmt"
	"strconv"
	"strings"

	"git.sr.ht/~rjarry/mlsync/models"
)

// Mails are identified by mailbox, UIDVALIDITY and UID. The header cache
// uses the same keys.

func validityPrefix(name string, validity uint32) string {
	return fmt.Sprintf("%s\x00%d\x00", name, validity)
}

func uidKey(mbox *mailbox, uid uint32) string {
	return validityPrefix(mbox.name, mbox.uidValidity) + strconv.FormatUint(uint64(uid), 10)
}

// locate returns the mailbox and UID of a mail ID. The lock must be held.
func (w *IMAPWorker) locate(id models.MailID) (*mailbox, uint32, bool) {
	key, ok := w.uids.GetKey(id)
	if !ok {
		return nil, 0, false
	}
	parts := strings.Split(key, "\x00")
	if len(parts) != 3 {
		return nil, 0, false
	}
	mbox, ok := w.mailboxes[parts[0]]
	if !ok || strconv.FormatUint(uint64(mbox.uidValidity), 10) != parts[1] {
		return nil, 0, false
	}
	uid, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return nil, 0, false
	}
	if _, ok := mbox.flags[uint32(uid)]; !ok {
		return nil, 0, false
	}
	return mbox, uint32(uid), true
}

func (w *IMAPWorker) mailID(mbox *mailbox, uid uint32) models.MailID {
	return w.uids.GetOrInsert(uidKey(mbox, uid))
}

// forget drops every trace of a message
func (w *IMAPWorker) forget(mbox *mailbox, uid uint32) models.MailID {
	key := uidKey(mbox, uid)
	id, _ := w.uids.Get(key)
	w.uids.RemoveID(id)
	delete(mbox.flags, uid)
	delete(mbox.recs, uid)
	if w.cache != nil {
		w.cache.Delete(key)
	}
	return id
}

// cachedRecord looks up the header cache. Flags always come from the
// server.
func (w *IMAPWorker) cachedRecord(mbox *mailbox, uid uint32) *models.MailRecord {
	if w.cache == nil {
		return nil
	}
	rec, ok := w.cache.Get(uidKey(mbox, uid))
	if !ok {
		return nil
	}
	rec.Flags = mbox.flags[uid]
	w.fillRecord(mbox, uid, rec)
	return rec
}

func (w *IMAPWorker) cacheRecord(mbox *mailbox, uid uint32, rec *models.MailRecord) {
	if w.cache != nil {
		w.cache.Put(uidKey(mbox, uid), rec)
	}
}

// dropCache removes the cached headers of a previous UIDVALIDITY
func (w *IMAPWorker) dropCache(name string, validity uint32) {
	if w.cache == nil {
		return
	}
	n := w.cache.DeletePrefix(validityPrefix(name, validity))
	w.log.Debugf("%s: dropped %d cached headers", name, n)
}
