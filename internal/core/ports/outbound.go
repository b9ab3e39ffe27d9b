package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

// DocumentAnalyzer turns a receipt image or PDF into typed fields.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, filePath string) (*domain.AnalyzedDocument, error)
}

// ClaimBackend is the insurer's reference-data and submission API.
type ClaimBackend interface {
	EligiblePolicies(ctx context.Context, clientID string) ([]domain.EligiblePolicy, error)
	Currencies(ctx context.Context) ([]domain.Currency, error)
	RequiredDocuments(ctx context.Context, claimType domain.ClaimType) ([]domain.RequiredDocument, error)
	PayoutMethods(ctx context.Context, policyID string) ([]domain.PayoutMethod, error)
	SubmitClaim(ctx context.Context, submission domain.ClaimSubmission) (*domain.SubmissionResult, error)
}

// SchemaTemplates returns the claim form template for a claim type.
type SchemaTemplates interface {
	Template(ctx context.Context, claimType domain.ClaimType) (map[string]any, error)
}

// AssistantClient drives a remote reasoning job.
type AssistantClient interface {
	CreateThread(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, threadID, role, content string) error
	StartRun(ctx context.Context, threadID string) (*domain.Run, error)
	GetRun(ctx context.Context, threadID, runID string) (*domain.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (*domain.Run, error)
	LatestAssistantMessage(ctx context.Context, threadID string) (string, error)
}

// ObjectStorage stores uploaded files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Path(key string) string
}

// BatchRepository persists asynchronous extraction batches.
type BatchRepository interface {
	Create(ctx context.Context, batch *domain.ExtractionBatch) error
	GetByID(ctx context.Context, id string) (*domain.ExtractionBatch, error)
	UpdateStatus(ctx context.Context, id string, status domain.BatchStatus, errMessage string) error
	SaveSummary(ctx context.Context, id string, summary *domain.ExtractionSummary, claimType domain.ClaimType) error
}

// MessageQueue publishes and consumes extraction requests.
type MessageQueue interface {
	PublishExtractionRequested(ctx context.Context, batchID string) error
	SubscribeExtractionRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// EventPublisher announces claim lifecycle events.
type EventPublisher interface {
	PublishClaimSubmitted(ctx context.Context, event domain.ClaimSubmittedEvent) error
}

// SessionStore keeps claim sessions in memory for their lifetime.
type SessionStore interface {
	Put(session *domain.Session)
	Get(id string) (*domain.Session, bool)
	Delete(id string)
}

// PipelineObserver receives extraction pipeline measurements.
type PipelineObserver interface {
	StartFile()
	FinishFile(outcome string, duration time.Duration)
}

// RunObserver receives orchestrator measurements.
type RunObserver interface {
	RecordPoll()
	RecordToolCall(tool, outcome string)
	RecordRunSettled(status domain.RunStatus, duration time.Duration)
}

// ReceiptExporter renders receipts as a downloadable document.
type ReceiptExporter interface {
	ContentType() string
	ExportReceipts(w io.Writer, receipts []domain.Receipt) error
}
