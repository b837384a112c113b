package imap

import "sync"

// SeqMap maps the sequence numbers of the selected mailbox to message UIDs.
type SeqMap struct {
	lock sync.Mutex
	// UIDs in sequence order, sequence number n is at index n-1
	m []uint32
}

func (s *SeqMap) Size() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.m)
}

// Initialize replaces the whole mapping
func (s *SeqMap) Initialize(uids []uint32) {
	s.lock.Lock()
	s.m = append([]uint32(nil), uids...)
	s.lock.Unlock()
}

func (s *SeqMap) Get(seqnum uint32) (uint32, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if seqnum < 1 || int(seqnum) > len(s.m) {
		return 0, false
	}
	return s.m[seqnum-1], true
}

// Put sets the UID of a sequence number, growing the map when the sequence
// number is past its end.
func (s *SeqMap) Put(seqnum, uid uint32) {
	if seqnum < 1 {
		return
	}
	s.lock.Lock()
	for int(seqnum) > len(s.m) {
		s.m = append(s.m, 0)
	}
	s.m[seqnum-1] = uid
	s.lock.Unlock()
}

// Pop removes a sequence number the way an EXPUNGE response does: the
// following messages are renumbered.
func (s *SeqMap) Pop(seqnum uint32) (uint32, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if seqnum < 1 || int(seqnum) > len(s.m) {
		return 0, false
	}
	uid := s.m[seqnum-1]
	s.m = append(s.m[:seqnum-1], s.m[seqnum:]...)
	return uid, true
}

// Remove drops a UID wherever it is
func (s *SeqMap) Remove(uid uint32) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i, u := range s.m {
		if u == uid {
			s.m = append(s.m[:i], s.m[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns the sequence numbers of uids and the lowest of them.
// UIDs which are not mapped are left out.
func (s *SeqMap) Snapshot(uids []uint32) (map[uint32]uint32, uint32) {
	s.lock.Lock()
	defer s.lock.Unlock()
	wanted := make(map[uint32]bool, len(uids))
	for _, uid := range uids {
		wanted[uid] = true
	}
	snapshot := make(map[uint32]uint32, len(uids))
	var min uint32
	for i, uid := range s.m {
		if !wanted[uid] {
			continue
		}
		seqnum := uint32(i + 1)
		snapshot[seqnum] = uid
		if min == 0 || seqnum < min {
			min = seqnum
		}
	}
	return snapshot, min
}

func (s *SeqMap) Clear() {
	s.lock.Lock()
	s.m = nil
	s.lock.Unlock()
}
