package documents

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const docColumns = `id, deal_id, file_name, mime_type, size_bytes, storage_key, extracted_text_key, created_at`

// Create inserts a new document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, deal_id, file_name, mime_type, size_bytes, storage_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())`
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID, doc.DealID, doc.FileName, doc.MimeType, doc.SizeBytes, doc.StorageKey,
	)
	return err
}

// GetByID returns a document scoped to its deal.
func (r *PGRepo) GetByID(ctx context.Context, dealID, documentID string) (Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents WHERE id = $1 AND deal_id = $2 LIMIT 1`
	doc, err := scanDocument(r.DB.QueryRowContext(ctx, query, documentID, dealID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

// ListByDeal returns documents for a deal, newest first.
func (r *PGRepo) ListByDeal(ctx context.Context, dealID string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
SELECT ` + docColumns + `
FROM documents
WHERE deal_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`

	rows, err := r.DB.QueryContext(ctx, query, dealID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// CountByDeal returns how many documents a deal holds.
func (r *PGRepo) CountByDeal(ctx context.Context, dealID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE deal_id = $1`, dealID).Scan(&n)
	return n, err
}

// SetExtractedTextKey records where the extracted text lives in object
// storage.
func (r *PGRepo) SetExtractedTextKey(ctx context.Context, documentID, key string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE documents SET extracted_text_key = $1 WHERE id = $2`, key, documentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a document scoped to its deal.
func (r *PGRepo) Delete(ctx context.Context, dealID, documentID string) error {
	res, err := r.DB.ExecContext(ctx,
		`DELETE FROM documents WHERE id = $1 AND deal_id = $2`, documentID, dealID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Repo = (*PGRepo)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var extractedKey sql.NullString
	err := row.Scan(
		&doc.ID,
		&doc.DealID,
		&doc.FileName,
		&doc.MimeType,
		&doc.SizeBytes,
		&doc.StorageKey,
		&extractedKey,
		&doc.CreatedAt,
	)
	if err != nil {
		return Document{}, err
	}
	if extractedKey.Valid {
		doc.ExtractedTextKey = extractedKey.String
	}
	return doc, nil
}
