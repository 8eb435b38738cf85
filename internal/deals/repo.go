package deals

import "context"

// Repo defines persistence operations for deals.
type Repo interface {
	Create(ctx context.Context, deal Deal) error
	GetByID(ctx context.Context, dealID string) (Deal, error)
	List(ctx context.Context, limit, offset int) ([]Deal, error)
	Update(ctx context.Context, deal Deal) error
	Delete(ctx context.Context, dealID string) error
}
