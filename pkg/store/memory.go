package store

import "sync"

// MemoryStore is an in-process Backend. Saves can be made to fail on demand.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	saveErr error
	saves   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// FailSaves makes every following Save return err wrapped in ErrUnavailable.
// A nil err restores normal behaviour.
func (s *MemoryStore) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Saves reports how many saves succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Load(name string) ([]byte, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[name]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Save(name string, data []byte) error {
	if err := validName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return unavailable("write", name, s.saveErr)
	}
	s.docs[name] = append([]byte(nil), data...)
	s.saves++
	return nil
}

func (s *MemoryStore) Close() error { return nil }
