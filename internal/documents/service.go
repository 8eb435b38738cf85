package documents

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealdesk-backend/internal/shared/storage/object"
)

// Extensions the extraction pipeline can handle.
var supportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".xlsx": true,
	".txt":  true,
}

// Service contains business logic for deal documents.
type Service struct {
	Store object.ObjectStore
	Repo  Repo
}

// NewService constructs a Service.
func NewService(store object.ObjectStore, repo Repo) *Service {
	return &Service{Store: store, Repo: repo}
}

// Upload saves the file to object storage and records the document under its
// deal.
func (s *Service) Upload(ctx context.Context, dealID, fileName string, r io.Reader) (Document, error) {
	fileName = strings.TrimSpace(fileName)
	if dealID == "" || fileName == "" {
		return Document{}, ErrInvalidInput
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !supportedExtensions[ext] {
		return Document{}, ErrUnsupportedType
	}

	storageKey, size, mimeType, err := s.Store.Save(ctx, dealID, fileName, r)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:         uuid.NewString(),
		DealID:     dealID,
		FileName:   fileName,
		MimeType:   mimeType,
		SizeBytes:  size,
		StorageKey: storageKey,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Get returns a document scoped to its deal.
func (s *Service) Get(ctx context.Context, dealID, documentID string) (Document, error) {
	return s.Repo.GetByID(ctx, dealID, documentID)
}

// List returns documents for a deal, newest first.
func (s *Service) List(ctx context.Context, dealID string, limit, offset int) ([]Document, error) {
	return s.Repo.ListByDeal(ctx, dealID, limit, offset)
}

// Open streams the stored file contents.
func (s *Service) Open(ctx context.Context, dealID, documentID string) (Document, io.ReadCloser, error) {
	doc, err := s.Repo.GetByID(ctx, dealID, documentID)
	if err != nil {
		return Document{}, nil, err
	}
	rc, err := s.Store.Open(ctx, doc.StorageKey)
	if err != nil {
		return Document{}, nil, err
	}
	return doc, rc, nil
}

// Delete removes the document record. The stored object is left behind for
// audit; object lifecycle rules clean it up.
func (s *Service) Delete(ctx context.Context, dealID, documentID string) error {
	return s.Repo.Delete(ctx, dealID, documentID)
}
