package worker

// the following engines are always enabled
import (
	_ "git.sr.ht/~rjarry/mlsync/worker/imap"
	_ "git.sr.ht/~rjarry/mlsync/worker/maildir"
	_ "git.sr.ht/~rjarry/mlsync/worker/mbox"
	_ "git.sr.ht/~rjarry/mlsync/worker/memory"
)
