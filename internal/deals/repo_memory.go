package deals

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores deals in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Deal
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Deal)}
}

// Create stores the deal.
func (r *MemoryRepo) Create(ctx context.Context, deal Deal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if deal.CreatedAt.IsZero() {
		deal.CreatedAt = time.Now().UTC()
	}
	deal.UpdatedAt = deal.CreatedAt
	r.byID[deal.ID] = deal
	return nil
}

// GetByID returns a deal by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, dealID string) (Deal, error) {
	if err := ctx.Err(); err != nil {
		return Deal{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	deal, ok := r.byID[dealID]
	if !ok {
		return Deal{}, ErrNotFound
	}
	return deal, nil
}

// List returns deals newest first with limit/offset.
func (r *MemoryRepo) List(ctx context.Context, limit, offset int) ([]Deal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	all := make([]Deal, 0, len(r.byID))
	for _, deal := range r.byID {
		all = append(all, deal)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []Deal{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

// Update overwrites a deal's mutable fields.
func (r *MemoryRepo) Update(ctx context.Context, deal Deal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byID[deal.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name = deal.Name
	existing.Company = deal.Company
	existing.Status = deal.Status
	existing.UpdatedAt = time.Now().UTC()
	r.byID[deal.ID] = existing
	return nil
}

// Delete removes a deal.
func (r *MemoryRepo) Delete(ctx context.Context, dealID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[dealID]; !ok {
		return ErrNotFound
	}
	delete(r.byID, dealID)
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
