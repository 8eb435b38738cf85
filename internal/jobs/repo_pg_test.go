package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	job := Job{
		ID:          "job-1",
		DealID:      "deal-1",
		DocumentID:  "doc-1",
		JobType:     TypeCIMAnalysis,
		Status:      StatusPending,
		CurrentStep: StepValidation,
	}

	mock.ExpectExec("INSERT INTO processing_jobs").
		WithArgs(
			job.ID,
			job.DealID,
			job.DocumentID,
			job.JobType,
			job.Status,
			job.Progress,
			job.CurrentStep,
			nil, // agent_results
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "deal_id", "document_id", "job_type", "status", "progress",
		"current_step", "agent_results", "error_message", "created_at",
		"updated_at", "completed_at",
	}).AddRow(
		"job-1", "deal-1", "doc-1", TypeCIMAnalysis, StatusProcessing, 60,
		StepAnalysis, `{"financial":{"status":"completed","model":"gpt-4o","input_tokens":900}}`,
		nil, now, now, nil,
	)

	mock.ExpectQuery("SELECT (.+) FROM processing_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if job.Progress != 60 || job.CurrentStep != StepAnalysis {
		t.Fatalf("unexpected job: %+v", job)
	}
	if got := job.AgentResults["financial"]; got.InputTokens != 900 || got.Model != "gpt-4o" {
		t.Fatalf("agent results not decoded: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectQuery("SELECT (.+) FROM processing_jobs WHERE id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGRepoSetStatusFailedWritesErrorStep(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec(`WHEN \$1 = 'failed' THEN 'error'`).
		WithArgs(StatusFailed, "network down", nil, "job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetStatus(context.Background(), "job-1", StatusFailed, "network down", nil); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSetStatusNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}
	mock.ExpectExec("UPDATE processing_jobs").
		WithArgs(StatusCompleted, "", nil, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetStatus(context.Background(), "missing", StatusCompleted, "", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
