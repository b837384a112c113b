package imap

import (
	"bufio"
	"fmt"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/lib"
)

// previewBytes is how much of the text part is fetched for the preview
const previewBytes = 1024

var headerSection = &imap.BodySectionName{
	BodyPartName: imap.BodyPartName{
		Specifier: imap.HeaderSpecifier,
	},
	Peek: true,
}

// fetchRecords makes sure the records of uids are known, from the header
// cache or from the server. The mailbox must be selected and the lock held.
func (w *IMAPWorker) fetchRecords(mbox *mailbox, uids []uint32) error {
	var missing []uint32
	for _, uid := range uids {
		if _, ok := mbox.recs[uid]; ok {
			continue
		}
		if rec := w.cachedRecord(mbox, uid); rec != nil {
			mbox.recs[uid] = rec
			continue
		}
		missing = append(missing, uid)
	}
	if len(missing) == 0 {
		return nil
	}
	w.log.Tracef("Fetching %d message headers in %s", len(missing), mbox.name)

	items := []imap.FetchItem{
		imap.FetchBodyStructure,
		imap.FetchEnvelope,
		imap.FetchInternalDate,
		imap.FetchRFC822Size,
		imap.FetchFlags,
		imap.FetchUid,
		headerSection.FetchItem(),
	}
	// text parts grouped by path so that previews take one command per path
	texts := make(map[string][]uint32)
	paths := make(map[string][]int)
	parts := make(map[uint32]*imap.BodyStructure)
	err := w.fetchMessages(toSeqSet(missing), items, func(msg *imap.Message) error {
		if msg.Envelope == nil {
			// ignore unsolicited flag updates
			return nil
		}
		if _, ok := mbox.flags[msg.Uid]; !ok {
			return nil
		}
		mbox.flags[msg.Uid] = translateImapFlags(msg.Flags)
		mbox.recs[msg.Uid] = w.translateMessage(mbox, msg)
		if path, part := textPart(msg.BodyStructure); part != nil {
			key := fmt.Sprint(path)
			texts[key] = append(texts[key], msg.Uid)
			paths[key] = path
			parts[msg.Uid] = part
		}
		return nil
	})
	if err != nil {
		return err
	}
	for key, group := range texts {
		if err := w.fetchPreviews(mbox, paths[key], group, parts); err != nil {
			w.log.Warnf("%s: previews: %v", mbox.name, err)
		}
	}
	for _, uid := range missing {
		if rec, ok := mbox.recs[uid]; ok {
			w.cacheRecord(mbox, uid, rec)
		}
	}
	return nil
}

func (w *IMAPWorker) translateMessage(mbox *mailbox, msg *imap.Message) *models.MailRecord {
	var rec *models.MailRecord
	if r := msg.GetBody(headerSection); r != nil {
		h, err := textproto.ReadHeader(bufio.NewReader(r))
		if err == nil {
			header := &mail.Header{Header: message.Header{Header: h}}
			rec, err = lib.RecordFromHeader(header, w.acct.ToMe)
		}
		if err != nil {
			w.log.Debugf("%s/%d: %v, using envelope", mbox.name, msg.Uid, err)
		}
	}
	if rec == nil {
		rec = translateEnvelope(msg.Envelope)
		rec.ThreadID = messageID(msg.Envelope)
		rec.ToMe = w.acct.ToMe(rec.To)
	}
	if rec.Date.IsZero() {
		rec.Date = msg.InternalDate
	}
	if msg.BodyStructure != nil {
		rec.Attachments = countAttachments(msg.BodyStructure)
	}
	rec.Size = msg.Size
	rec.Flags = mbox.flags[msg.Uid]
	w.fillRecord(mbox, msg.Uid, rec)
	return rec
}

// fillRecord sets the attributes which depend on where the mail is
func (w *IMAPWorker) fillRecord(mbox *mailbox, uid uint32, rec *models.MailRecord) {
	rec.ID = w.mailID(mbox, uid)
	rec.AccountID = w.acct.Name
	rec.MailboxID = mbox.name
	rec.MailboxType = mbox.typ
	rec.SaveStatus = lib.SaveStatus(rec)
}

func (w *IMAPWorker) fetchPreviews(mbox *mailbox, path []int, uids []uint32,
	parts map[uint32]*imap.BodyStructure,
) error {
	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Path: path},
		Peek:         true,
		Partial:      []int{0, previewBytes},
	}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}
	return w.fetchMessages(toSeqSet(uids), items, func(msg *imap.Message) error {
		rec, ok := mbox.recs[msg.Uid]
		part := parts[msg.Uid]
		r := msg.GetBody(section)
		if !ok || part == nil || r == nil {
			return nil
		}
		rec.Preview = lib.PartPreview(
			part.MIMEType+"/"+part.MIMESubType, part.Encoding, part.Params, r)
		return nil
	})
}
