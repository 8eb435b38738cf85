package analyses

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo stores analysis results in memory and is safe for concurrent
// use.
type MemoryRepo struct {
	mu     sync.RWMutex
	byDeal map[string][]Result
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byDeal: make(map[string][]Result)}
}

// Create stores the result.
func (r *MemoryRepo) Create(ctx context.Context, res Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	r.byDeal[res.DealID] = append(r.byDeal[res.DealID], res)
	return nil
}

// LatestByDeal returns the newest stored result for a deal.
func (r *MemoryRepo) LatestByDeal(ctx context.Context, dealID string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := r.byDeal[dealID]
	if len(results) == 0 {
		return Result{}, ErrNotFound
	}
	latest := results[0]
	for _, res := range results[1:] {
		if res.CreatedAt.After(latest.CreatedAt) {
			latest = res
		}
	}
	return latest, nil
}

// HasResultSince reports whether a result was stored for the deal at or
// after the given instant.
func (r *MemoryRepo) HasResultSince(ctx context.Context, dealID string, since time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.byDeal[dealID] {
		if !res.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

var _ Repo = (*MemoryRepo)(nil)
