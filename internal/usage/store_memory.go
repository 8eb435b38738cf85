package usage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{}
}

func (s *memoryStore) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memoryStore) ListByDeal(ctx context.Context, dealID string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []Record{}
	for _, rec := range s.records {
		if rec.DealID == dealID {
			out = append(out, rec)
		}
	}
	return out, nil
}
