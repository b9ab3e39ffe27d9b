package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *BatchRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2024031201)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS extraction_batches (
	id TEXT PRIMARY KEY,
	client_id TEXT NOT NULL,
	files JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL,
	summary JSONB,
	claim_type TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extraction_batches_client ON extraction_batches(client_id);
CREATE INDEX IF NOT EXISTS idx_extraction_batches_status ON extraction_batches(status);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.ExtractionBatch) error {
	filesJSON, err := json.Marshal(batch.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO extraction_batches (
	id, client_id, files, status, claim_type, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		batch.ID, batch.ClientID, filesJSON, string(batch.Status), string(batch.ClaimType), batch.Error,
		batch.CreatedAt, batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert extraction batch: %w", err)
	}
	return nil
}

func (r *BatchRepository) GetByID(ctx context.Context, id string) (*domain.ExtractionBatch, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, client_id, files, status, summary, claim_type, error_message, created_at, updated_at
FROM extraction_batches
WHERE id = $1
`, id)

	var batch domain.ExtractionBatch
	var filesRaw, summaryRaw []byte
	var status string
	var claimType, errMessage sql.NullString

	err := row.Scan(
		&batch.ID, &batch.ClientID, &filesRaw, &status, &summaryRaw, &claimType, &errMessage,
		&batch.CreatedAt, &batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get extraction batch", fmt.Errorf("batch %s", id))
		}
		return nil, fmt.Errorf("scan extraction batch: %w", err)
	}

	if err := json.Unmarshal(filesRaw, &batch.Files); err != nil {
		return nil, fmt.Errorf("unmarshal files: %w", err)
	}
	if len(summaryRaw) > 0 {
		var summary domain.ExtractionSummary
		if err := json.Unmarshal(summaryRaw, &summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary: %w", err)
		}
		batch.Summary = &summary
	}
	batch.Status = domain.BatchStatus(status)
	batch.ClaimType = domain.ClaimType(claimType.String)
	batch.Error = errMessage.String
	return &batch, nil
}

func (r *BatchRepository) UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE extraction_batches
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update extraction batch status: %w", err)
	}
	return requireRow(res, "update extraction batch status", id)
}

func (r *BatchRepository) SaveSummary(ctx context.Context, id string, summary *domain.ExtractionSummary, claimType domain.ClaimType) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE extraction_batches
SET summary = $2, claim_type = $3, updated_at = $4
WHERE id = $1
`, id, summaryJSON, string(claimType), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save extraction summary: %w", err)
	}
	return requireRow(res, "save extraction summary", id)
}

func requireRow(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("batch %s", id))
	}
	return nil
}
