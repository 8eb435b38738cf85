package documents

import "context"

// Repo defines persistence operations for documents.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, dealID, documentID string) (Document, error)
	ListByDeal(ctx context.Context, dealID string, limit, offset int) ([]Document, error)
	CountByDeal(ctx context.Context, dealID string) (int, error)
	SetExtractedTextKey(ctx context.Context, documentID, key string) error
	Delete(ctx context.Context, dealID, documentID string) error
}
