package app

import (
	"git.sr.ht/~rjarry/mlsync/worker/types"
)

func (v *MailboxView) registerHandlers() {
	v.queue.Register(types.AddRemainingMail, types.Handler{
		Run:   v.runRemaining,
		Apply: v.applyRemaining,
		End:   v.endRemaining,
	})
	v.queue.Register(types.AddMail, types.Handler{
		Run:   v.reconciler.runFetch,
		Apply: v.reconciler.applyFetch,
		End:   v.reconciler.endFetch,
	})
	bulk := types.Handler{
		Run:   v.runBulk,
		Apply: v.applyBulk,
		End:   v.endBulk,
	}
	v.queue.Register(types.MoveMail, bulk)
	v.queue.Register(types.DeleteMail, bulk)
	v.queue.Register(types.SetFlags, bulk)
}
