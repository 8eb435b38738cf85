package deals

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"dealdesk-backend/internal/jobs"
)

// ErrInvalidInput is returned for malformed create/update requests.
var ErrInvalidInput = errors.New("invalid deal input")

// DocumentCounter reports how many documents a deal holds. The documents
// repo implements it.
type DocumentCounter interface {
	CountByDeal(ctx context.Context, dealID string) (int, error)
}

// ActiveJobLister reports in-flight analysis jobs for a deal. The jobs
// service implements it.
type ActiveJobLister interface {
	Active(ctx context.Context, dealID string) ([]jobs.Job, error)
}

// Summary is the dashboard view of one deal.
type Summary struct {
	Deal          Deal       `json:"deal"`
	DocumentCount int        `json:"documentCount"`
	ActiveJobs    []jobs.Job `json:"activeJobs"`
}

// Service owns deal lifecycle operations.
type Service struct {
	Repo Repo
	Docs DocumentCounter
	Jobs ActiveJobLister
}

// NewService constructs a Service. docs and jobLister may be nil.
func NewService(repo Repo, docs DocumentCounter, jobLister ActiveJobLister) *Service {
	return &Service{Repo: repo, Docs: docs, Jobs: jobLister}
}

// Create validates and stores a new deal.
func (s *Service) Create(ctx context.Context, name, company string) (Deal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Deal{}, ErrInvalidInput
	}
	deal := Deal{
		ID:        uuid.NewString(),
		Name:      name,
		Company:   strings.TrimSpace(company),
		Status:    StatusActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, deal); err != nil {
		return Deal{}, err
	}
	return deal, nil
}

// Get returns a deal by ID.
func (s *Service) Get(ctx context.Context, dealID string) (Deal, error) {
	return s.Repo.GetByID(ctx, dealID)
}

// List returns deals newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Deal, error) {
	return s.Repo.List(ctx, limit, offset)
}

// Update applies name/company/status changes to an existing deal. Empty
// fields keep their current value.
func (s *Service) Update(ctx context.Context, dealID, name, company, status string) (Deal, error) {
	deal, err := s.Repo.GetByID(ctx, dealID)
	if err != nil {
		return Deal{}, err
	}
	if name = strings.TrimSpace(name); name != "" {
		deal.Name = name
	}
	if company = strings.TrimSpace(company); company != "" {
		deal.Company = company
	}
	if status != "" {
		if !ValidStatus(status) {
			return Deal{}, ErrInvalidInput
		}
		deal.Status = status
	}
	if err := s.Repo.Update(ctx, deal); err != nil {
		return Deal{}, err
	}
	return s.Repo.GetByID(ctx, dealID)
}

// Delete removes a deal and its dependent records.
func (s *Service) Delete(ctx context.Context, dealID string) error {
	return s.Repo.Delete(ctx, dealID)
}

// Summary assembles the dashboard view of a deal. Missing collaborators
// degrade to zero values rather than failing the whole view.
func (s *Service) Summary(ctx context.Context, dealID string) (Summary, error) {
	deal, err := s.Repo.GetByID(ctx, dealID)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{Deal: deal, ActiveJobs: []jobs.Job{}}
	if s.Docs != nil {
		if n, err := s.Docs.CountByDeal(ctx, dealID); err == nil {
			out.DocumentCount = n
		}
	}
	if s.Jobs != nil {
		if active, err := s.Jobs.Active(ctx, dealID); err == nil {
			out.ActiveJobs = active
		}
	}
	return out, nil
}
