package deals

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new deal.
func (r *PGRepo) Create(ctx context.Context, deal Deal) error {
	const query = `
INSERT INTO deals (id, name, company, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, now(), now())`
	_, err := r.DB.ExecContext(ctx, query, deal.ID, deal.Name, deal.Company, deal.Status)
	return err
}

// GetByID returns a deal by ID.
func (r *PGRepo) GetByID(ctx context.Context, dealID string) (Deal, error) {
	const query = `
SELECT id, name, company, status, created_at, updated_at
FROM deals
WHERE id = $1
LIMIT 1`
	var d Deal
	err := r.DB.QueryRowContext(ctx, query, dealID).Scan(
		&d.ID, &d.Name, &d.Company, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, err
	}
	return d, nil
}

// List returns deals newest first.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Deal, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
SELECT id, name, company, status, created_at, updated_at
FROM deals
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`

	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Deal{}
	for rows.Next() {
		var d Deal
		if err := rows.Scan(&d.ID, &d.Name, &d.Company, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Update overwrites a deal's mutable fields.
func (r *PGRepo) Update(ctx context.Context, deal Deal) error {
	const query = `
UPDATE deals
SET name = $1, company = $2, status = $3, updated_at = now()
WHERE id = $4`
	res, err := r.DB.ExecContext(ctx, query, deal.Name, deal.Company, deal.Status, deal.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a deal and, via cascading constraints, its documents, jobs
// and results.
func (r *PGRepo) Delete(ctx context.Context, dealID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM deals WHERE id = $1`, dealID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)
