package documents

import (
	"errors"
	"time"
)

// Document is one uploaded deal file (CIM, financial model, transcript).
type Document struct {
	ID               string    `json:"id"`
	DealID           string    `json:"dealId"`
	FileName         string    `json:"fileName"`
	MimeType         string    `json:"mimeType"`
	SizeBytes        int64     `json:"sizeBytes"`
	StorageKey       string    `json:"-"`
	ExtractedTextKey string    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ErrInvalidInput is returned for malformed upload requests.
var ErrInvalidInput = errors.New("invalid document input")

// ErrUnsupportedType is returned for file types the pipeline cannot process.
var ErrUnsupportedType = errors.New("unsupported document type")
