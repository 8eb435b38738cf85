package analyses

import (
	"context"
	"time"
)

// Repo defines persistence operations for analysis results.
type Repo interface {
	Create(ctx context.Context, res Result) error
	LatestByDeal(ctx context.Context, dealID string) (Result, error)
	HasResultSince(ctx context.Context, dealID string, since time.Time) (bool, error)
}
