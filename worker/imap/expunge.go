package imap

import (
	"sort"

	"git.sr.ht/~rjarry/mlsync/lib/log"
)

// expungePolicy is the order in which a server sends the EXPUNGE responses
// of a multi-message expunge
type expungePolicy int

const (
	// guessed from the first response
	expungeAuto expungePolicy = iota
	// ascending sequence numbers, the later ones decremented after each
	// response (GMail, FastMail)
	expungeLowToHigh
	// any order, sequence numbers untouched until the end (Office 365
	// descending, Dovecot random)
	expungeStable
)

func (p expungePolicy) String() string {
	switch p {
	case expungeLowToHigh:
		return "low-to-high"
	case expungeStable:
		return "stable"
	}
	return "auto"
}

// expunger translates the sequence numbers of EXPUNGE responses back to the
// UIDs being expunged
type expunger struct {
	log    log.Logger
	policy expungePolicy
	// sequence number to UID, as the server currently numbers them
	pending map[uint32]uint32
	lowest  uint32
}

func newExpunger(w *IMAPWorker, uids []uint32) *expunger {
	pending, lowest := w.seqMap.Snapshot(uids)
	return &expunger{
		log:     w.log,
		policy:  w.config.expungePolicy,
		pending: pending,
		lowest:  lowest,
	}
}

// pop returns the UID of an expunged sequence number
func (e *expunger) pop(seq uint32) (uint32, bool) {
	if e.policy == expungeAuto {
		// servers going up start with the lowest one
		if seq == e.lowest {
			e.policy = expungeLowToHigh
		} else {
			e.policy = expungeStable
		}
		e.log.Debugf("guessed expunge policy: %s", e.policy)
	}
	uid, ok := e.pending[seq]
	if !ok {
		e.log.Warnf("unexpected expunge of sequence number %d, "+
			"the expunge-policy setting may be wrong", seq)
		return 0, false
	}
	delete(e.pending, seq)
	if e.policy == expungeLowToHigh {
		renumbered := make(map[uint32]uint32, len(e.pending))
		for s, u := range e.pending {
			if s > seq {
				s--
			}
			renumbered[s] = u
		}
		e.pending = renumbered
	}
	return uid, true
}

// remaining returns the UIDs not expunged yet, sorted
func (e *expunger) remaining() []uint32 {
	uids := make([]uint32, 0, len(e.pending))
	for _, uid := range e.pending {
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids
}
