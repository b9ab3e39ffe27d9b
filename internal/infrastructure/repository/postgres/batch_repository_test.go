package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*BatchRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &BatchRepository{db: db}, mock, func() { _ = db.Close() }
}

var batchColumns = []string{"id", "client_id", "files", "status", "summary", "claim_type", "error_message", "created_at", "updated_at"}

func TestCreateInsertsBatch(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO extraction_batches").
		WithArgs("b1", "C111", []byte(`[{"name":"a.pdf","path":"/data/a.pdf"}]`), "queued", "", "", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.ExtractionBatch{
		ID:        "b1",
		ClientID:  "C111",
		Files:     []domain.UploadedFile{{Name: "a.pdf", Path: "/data/a.pdf"}},
		Status:    domain.BatchStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesSummary(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	now := time.Date(2024, 3, 12, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(batchColumns).AddRow(
		"b1", "C111", []byte(`[{"name":"a.pdf","path":"/data/a.pdf"}]`), "ready",
		[]byte(`{"results":[],"receipts":[],"succeeded":1,"failed":0,"final_amount":"1500"}`),
		"HOSPITALISATION", nil, now, now,
	)
	mock.ExpectQuery("SELECT id, client_id, files, status").WithArgs("b1").WillReturnRows(rows)

	batch, err := repo.GetByID(context.Background(), "b1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if batch.Status != domain.BatchStatusReady || batch.ClaimType != domain.ClaimTypeHospitalisation {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if len(batch.Files) != 1 || batch.Files[0].Path != "/data/a.pdf" {
		t.Fatalf("unexpected files %+v", batch.Files)
	}
	if batch.Summary == nil || !batch.Summary.FinalAmount.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("unexpected summary %+v", batch.Summary)
	}
	if batch.Error != "" {
		t.Fatalf("expected empty error, got %q", batch.Error)
	}
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, client_id, files, status").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateStatusReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE extraction_batches").
		WithArgs("missing", string(domain.BatchStatusProcessing), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), "missing", domain.BatchStatusProcessing, "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSaveSummaryReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE extraction_batches").
		WithArgs("missing", sqlmock.AnyArg(), "OUTPATIENT", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SaveSummary(context.Background(), "missing", &domain.ExtractionSummary{Succeeded: 1}, domain.ClaimTypeOutpatient)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
