package documents

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores documents in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Document
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Document)}
}

// Create stores the document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	r.byID[doc.ID] = doc
	return nil
}

// GetByID returns a document scoped to its deal.
func (r *MemoryRepo) GetByID(ctx context.Context, dealID, documentID string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.byID[documentID]
	if !ok || doc.DealID != dealID {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// ListByDeal returns documents for a deal, newest first.
func (r *MemoryRepo) ListByDeal(ctx context.Context, dealID string, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.RLock()
	out := []Document{}
	for _, doc := range r.byID {
		if doc.DealID == dealID {
			out = append(out, doc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset >= len(out) {
		return []Document{}, nil
	}
	end := len(out)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return out[offset:end], nil
}

// CountByDeal returns how many documents a deal holds.
func (r *MemoryRepo) CountByDeal(ctx context.Context, dealID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, doc := range r.byID {
		if doc.DealID == dealID {
			n++
		}
	}
	return n, nil
}

// SetExtractedTextKey records where the extracted text lives in object
// storage.
func (r *MemoryRepo) SetExtractedTextKey(ctx context.Context, documentID, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[documentID]
	if !ok {
		return ErrNotFound
	}
	doc.ExtractedTextKey = key
	r.byID[documentID] = doc
	return nil
}

// Delete removes a document scoped to its deal.
func (r *MemoryRepo) Delete(ctx context.Context, dealID, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.byID[documentID]
	if !ok || doc.DealID != dealID {
		return ErrNotFound
	}
	delete(r.byID, documentID)
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
