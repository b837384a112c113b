package imap

import (
	"sort"

	"github.com/emersion/go-imap"

	"git.sr.ht/~rjarry/mlsync/lib/log"
	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

// selectMailbox makes name the selected mailbox of the command connection.
// The lock must be held.
func (w *IMAPWorker) selectMailbox(name string) (*imap.MailboxStatus, error) {
	if cur := w.client.Mailbox(); cur != nil && cur.Name == name {
		return cur, nil
	}
	w.log.Tracef("selecting %s", name)
	status, err := w.client.Select(name, false)
	if err != nil {
		return nil, err
	}
	w.seqMap.Clear()
	return status, nil
}

// selectSynced selects a mailbox with the sequence numbers of its messages
// known. The lock must be held.
func (w *IMAPWorker) selectSynced(mbox *mailbox) error {
	cur := w.client.Mailbox()
	if cur != nil && cur.Name == mbox.name && mbox.synced &&
		w.seqMap.Size() == len(mbox.flags) {
		return nil
	}
	ch, err := w.sync(mbox.name)
	if err != nil {
		return err
	}
	w.postChanges(ch)
	return nil
}

type flagChange struct {
	flag  models.Flags
	value bool
}

type changes struct {
	mailbox *mailbox
	added   []models.MailID
	removed []models.MailID
	flags   map[flagChange][]models.MailID
}

func newChanges(mbox *mailbox) *changes {
	return &changes{mailbox: mbox, flags: make(map[flagChange][]models.MailID)}
}

func (ch *changes) flagDiff(id models.MailID, old, new models.Flags) {
	diff := old ^ new
	for flag := models.Flags(1); diff != 0; flag <<= 1 {
		if diff&flag == 0 {
			continue
		}
		diff &^= flag
		fc := flagChange{flag: flag, value: new.Has(flag)}
		ch.flags[fc] = append(ch.flags[fc], id)
	}
}

func (ch *changes) empty() bool {
	return len(ch.added) == 0 && len(ch.removed) == 0 && len(ch.flags) == 0
}

// sync fetches the UID and flags of every message of a mailbox and compares
// them with what is known. Nothing is reported on the first sync of a
// mailbox. The lock must be held.
func (w *IMAPWorker) sync(name string) (*changes, error) {
	mbox, err := w.mailbox(name)
	if err != nil {
		return nil, err
	}
	// always reselect, UIDNEXT is only reported by SELECT
	w.log.Tracef("syncing %s", name)
	status, err := w.client.Select(name, false)
	if err != nil {
		return nil, err
	}
	w.seqMap.Clear()
	ch := newChanges(mbox)
	if mbox.synced && status.UidValidity != mbox.uidValidity {
		w.log.Infof("%s: UIDVALIDITY changed, forgetting %d mails",
			name, len(mbox.flags))
		for uid := range mbox.flags {
			ch.removed = append(ch.removed, w.forget(mbox, uid))
		}
		w.dropCache(name, mbox.uidValidity)
		mbox.reset()
	}
	mbox.uidValidity = status.UidValidity

	current := make(map[uint32]models.Flags, status.Messages)
	var order []uint32
	if status.Messages > 0 {
		var all imap.SeqSet
		all.AddRange(1, 0)
		seqs := make(map[uint32]uint32, status.Messages)
		err := w.fetchMessages(&all, []imap.FetchItem{imap.FetchUid, imap.FetchFlags},
			func(msg *imap.Message) error {
				if msg.Uid == 0 {
					return nil
				}
				current[msg.Uid] = translateImapFlags(msg.Flags)
				seqs[msg.SeqNum] = msg.Uid
				return nil
			})
		if err != nil {
			return nil, err
		}
		nums := make([]uint32, 0, len(seqs))
		for seq := range seqs {
			nums = append(nums, seq)
		}
		sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
		for _, seq := range nums {
			order = append(order, seqs[seq])
		}
	}
	w.seqMap.Initialize(order)

	for uid, flags := range current {
		old, known := mbox.flags[uid]
		if !known {
			if mbox.synced {
				ch.added = append(ch.added, w.mailID(mbox, uid))
			}
			continue
		}
		if old == flags {
			continue
		}
		id := w.mailID(mbox, uid)
		ch.flagDiff(id, old, flags)
		if rec, ok := mbox.recs[uid]; ok {
			rec.Flags = flags
		}
	}
	for uid := range mbox.flags {
		if _, ok := current[uid]; !ok {
			ch.removed = append(ch.removed, w.forget(mbox, uid))
		}
	}
	// records read before the flags are refreshed
	for uid, rec := range mbox.recs {
		if flags, ok := current[uid]; ok {
			rec.Flags = flags
		}
	}
	mbox.flags = current
	mbox.uidNext = status.UidNext
	mbox.messages = uint32(len(current))
	mbox.synced = true
	w.log.Tracef("%s: %d messages, %d added %d removed", name,
		len(current), len(ch.added), len(ch.removed))
	return ch, nil
}

// ensureSynced syncs a mailbox which has never been. The lock must be held.
func (w *IMAPWorker) ensureSynced(name string) (*mailbox, error) {
	mbox, err := w.mailbox(name)
	if err != nil {
		return nil, err
	}
	if mbox.synced {
		return mbox, nil
	}
	if _, err := w.sync(name); err != nil {
		return nil, err
	}
	return mbox, nil
}

// resync is called when the server reported changes in a mailbox
func (w *IMAPWorker) resync(name string) {
	w.Lock()
	defer w.Unlock()
	if err := w.ready(); err != nil {
		return
	}
	mbox, ok := w.mailboxes[name]
	if !ok || !mbox.synced {
		return
	}
	ch, err := w.sync(name)
	if err != nil {
		w.log.Errorf("sync %s: %v", name, err)
		return
	}
	w.postChanges(ch)
}

func (w *IMAPWorker) postChanges(ch *changes) {
	if ch.empty() {
		return
	}
	name, typ := ch.mailbox.name, ch.mailbox.typ
	if len(ch.removed) > 0 {
		w.post(&types.Event{
			Kind: types.MailDeleted, MailboxID: name, MailboxType: typ,
			MailIDs: ch.removed,
		})
	}
	if len(ch.added) > 0 {
		w.post(&types.Event{
			Kind: types.MailAdded, MailboxID: name, MailboxType: typ,
			MailIDs: ch.added,
		})
	}
	for fc, ids := range ch.flags {
		w.post(&types.Event{
			Kind: types.FlagChanged, MailboxID: name, MailboxType: typ,
			MailIDs: ids, Flag: fc.flag, Value: fc.value,
		})
	}
}

// fetchMessages runs a UID FETCH and hands every response to procFunc
func (w *IMAPWorker) fetchMessages(set *imap.SeqSet, items []imap.FetchItem,
	procFunc func(*imap.Message) error,
) error {
	messages := make(chan *imap.Message)
	done := make(chan error)

	go func() {
		defer log.PanicHandler()
		var reterr error
		for msg := range messages {
			if reterr != nil {
				// drain
				continue
			}
			reterr = procFunc(msg)
		}
		done <- reterr
	}()

	err := w.client.UidFetch(set, items, messages)
	if perr := <-done; err == nil {
		err = perr
	}
	return err
}
