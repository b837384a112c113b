package app

import (
	"fmt"

	"github.com/pkg/errors"

	"git.sr.ht/~rjarry/mlsync/models"
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

// bulkChunk is the number of mails handed to the engine per call
const bulkChunk = 50

type BulkKind int

const (
	BulkDelete BulkKind = iota
	BulkMove
	BulkSpam
	BulkSetFlag
)

func (k BulkKind) String() string {
	switch k {
	case BulkDelete:
		return "delete"
	case BulkMove:
		return "move"
	case BulkSpam:
		return "spam"
	case BulkSetFlag:
		return "set-flag"
	}
	return fmt.Sprintf("bulk(%d)", int(k))
}

// BulkOp is an operation applied to several mails at once
type BulkOp struct {
	Kind BulkKind
	// Dest is the destination mailbox of BulkMove
	Dest string
	// Option selects how BulkDelete disposes of mails
	Option models.DeleteOption
	// Flag and Value describe the change of BulkSetFlag
	Flag  models.Flags
	Value bool
}

type bulkJob struct {
	op  BulkOp
	ids []models.MailID
}

// ApplyBulkOp runs op on ids, or on the selection when ids is empty. The
// selection is cleared and edit mode left before the engine is called.
// Mails are updated locally as the engine confirms each chunk.
func (v *MailboxView) ApplyBulkOp(op BulkOp, ids []models.MailID) *types.Request {
	if !v.usable() {
		return nil
	}
	if len(ids) == 0 {
		ids = v.store.Marker().Marked()
	}
	v.ExitEditMode()
	if len(ids) == 0 {
		v.observer.OnStatus("no mail selected", nil)
		return nil
	}

	var kind types.RequestKind
	switch op.Kind {
	case BulkDelete:
		kind = types.DeleteMail
	case BulkMove:
		if op.Dest == "" {
			v.observer.OnStatus("move needs a destination", nil)
			return nil
		}
		kind = types.MoveMail
	case BulkSpam:
		if v.acct == nil || v.acct.Spam == "" {
			v.observer.OnStatus("no spam mailbox configured", nil)
			return nil
		}
		op.Dest = v.acct.Spam
		kind = types.MoveMail
	case BulkSetFlag:
		if op.Flag == 0 {
			v.observer.OnStatus("no flag to set", nil)
			return nil
		}
		kind = types.SetFlags
	default:
		v.observer.OnStatus(fmt.Sprintf("unknown bulk operation %s", op.Kind), nil)
		return nil
	}
	owned := make([]models.MailID, len(ids))
	copy(owned, ids)
	v.log.Debugf("%s on %d mails", op.Kind, len(owned))
	return v.queue.Enqueue(kind, &bulkJob{op: op, ids: owned})
}

func (v *MailboxView) runBulk(job *types.Job) error {
	p := job.Payload().(*bulkJob)
	ids := p.ids
	for len(ids) > 0 {
		if job.Cancelled() {
			return nil
		}
		n := bulkChunk
		if n > len(ids) {
			n = len(ids)
		}
		chunk := ids[:n]
		ids = ids[n:]
		var err error
		switch p.op.Kind {
		case BulkDelete:
			err = v.engine.DeleteMail(v.ctx, chunk, p.op.Option)
		case BulkMove, BulkSpam:
			err = v.engine.MoveMail(v.ctx, chunk, p.op.Dest)
		case BulkSetFlag:
			err = v.engine.SetFlag(v.ctx, chunk, p.op.Flag, p.op.Value)
		}
		if err != nil {
			return errors.Wrap(err, p.op.Kind.String())
		}
		if !job.Feedback(chunk) {
			return nil
		}
	}
	return nil
}

func (v *MailboxView) applyBulk(req *types.Request, payload any) {
	op := req.Payload.(*bulkJob).op
	ids := payload.([]models.MailID)
	switch op.Kind {
	case BulkDelete:
		v.reconciler.mailDeleted(&types.Event{Kind: types.MailDeleted, MailIDs: ids})
	case BulkMove, BulkSpam:
		v.reconciler.mailMoved(&types.Event{
			Kind:            types.MailMoved,
			AccountID:       v.filter.AccountID,
			DestMailboxID:   op.Dest,
			DestMailboxType: v.mailboxType(op.Dest),
			MailIDs:         ids,
		})
	case BulkSetFlag:
		v.reconciler.flagChanged(&types.Event{
			Kind:        types.FlagChanged,
			AccountID:   v.filter.AccountID,
			MailboxID:   v.filter.MailboxID,
			MailboxType: v.filter.MailboxType,
			MailIDs:     ids,
			Flag:        op.Flag,
			Value:       op.Value,
		})
	}
}

func (v *MailboxView) endBulk(req *types.Request, err error) {
	if err != nil {
		op := req.Payload.(*bulkJob).op
		v.observer.OnStatus(fmt.Sprintf("%s failed", op.Kind), err)
	}
}
