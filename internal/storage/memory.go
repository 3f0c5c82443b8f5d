package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu   sync.Mutex
	doc  []byte
	runs []RunRecord
}

// NewMemory returns a process-local Store.
func NewMemory() Store { return &memoryStore{} }

func (s *memoryStore) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), s.doc...), nil
}

func (s *memoryStore) Save(ctx context.Context, doc []byte) error {
	s.mu.Lock()
	s.doc = append([]byte(nil), doc...)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) AppendRun(ctx context.Context, r RunRecord) error {
	s.mu.Lock()
	s.runs = append(s.runs, r)
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Runs(ctx context.Context, jobID string, limit int) ([]RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return newestFirst(s.runs, jobID, limit), nil
}

func (s *memoryStore) Close() error { return nil }
