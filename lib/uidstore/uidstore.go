// Package uidstore maps the keys engines use for their mails (maildir keys,
// IMAP mailbox/uidvalidity/uid triples, mbox offsets) to MailIDs.
//
// Every Store draws from the same counter so IDs are unique across engines
// and accounts of one process.
package uidstore

import (
	"sync"

	"go.uber.org/atomic"

	"git.sr.ht/~rjarry/mlsync/models"
)

var nextID = atomic.NewUint32(0)

type Store struct {
	keyByID map[models.MailID]string
	idByKey map[string]models.MailID
	m       sync.Mutex
}

func NewStore() *Store {
	return &Store{
		keyByID: make(map[models.MailID]string),
		idByKey: make(map[string]models.MailID),
	}
}

// GetOrInsert returns the ID of key, allocating one if key is unknown
func (s *Store) GetOrInsert(key string) models.MailID {
	s.m.Lock()
	defer s.m.Unlock()
	if id, ok := s.idByKey[key]; ok {
		return id
	}
	id := models.MailID(nextID.Inc())
	s.keyByID[id] = key
	s.idByKey[key] = id
	return id
}

// Get returns the ID of key without allocating
func (s *Store) Get(key string) (models.MailID, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	id, ok := s.idByKey[key]
	return id, ok
}

func (s *Store) GetKey(id models.MailID) (string, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	key, ok := s.keyByID[id]
	return key, ok
}

// Rekey makes id designate newKey. Used when a mail file is renamed or a
// mail changes mailbox without changing identity.
func (s *Store) Rekey(id models.MailID, newKey string) {
	s.m.Lock()
	defer s.m.Unlock()
	if old, ok := s.keyByID[id]; ok {
		delete(s.idByKey, old)
	}
	s.keyByID[id] = newKey
	s.idByKey[newKey] = id
}

func (s *Store) RemoveID(id models.MailID) {
	s.m.Lock()
	defer s.m.Unlock()
	key, ok := s.keyByID[id]
	if ok {
		delete(s.idByKey, key)
	}
	delete(s.keyByID, id)
}

// Keys returns a snapshot of every known key with its ID
func (s *Store) Keys() map[string]models.MailID {
	s.m.Lock()
	defer s.m.Unlock()
	keys := make(map[string]models.MailID, len(s.idByKey))
	for k, id := range s.idByKey {
		keys[k] = id
	}
	return keys
}
