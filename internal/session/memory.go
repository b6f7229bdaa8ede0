package session

import "sync"

// MemoryStore keeps the session in memory only.
type MemoryStore struct {
	mu  sync.Mutex
	rec *Record
}

// LoadSession implements Store.
func (s *MemoryStore) LoadSession() (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return Record{}, false, nil
	}
	return *s.rec, true, nil
}

// SaveSession implements Store.
func (s *MemoryStore) SaveSession(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &rec
	return nil
}

// ClearSession implements Store.
func (s *MemoryStore) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}
