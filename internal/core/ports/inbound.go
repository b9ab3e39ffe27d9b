package ports

import (
	"context"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

// BatchSubmitter is the inbound contract for asynchronous receipt extraction.
type BatchSubmitter interface {
	Submit(ctx context.Context, clientID string, uploads []domain.Upload) (*domain.ExtractionBatch, error)
}

// BatchProcessor runs a queued extraction batch.
type BatchProcessor interface {
	ProcessByID(ctx context.Context, batchID string) error
}

// BatchReader loads extraction batches for status queries.
type BatchReader interface {
	GetByID(ctx context.Context, id string) (*domain.ExtractionBatch, error)
}

// ClaimSessions is the inbound contract for the interactive claim flow.
type ClaimSessions interface {
	StartSession(ctx context.Context, clientID string) (*domain.Session, error)
	Session(ctx context.Context, sessionID string) (*domain.Session, error)
	SelectPolicy(ctx context.Context, sessionID, policyID, lifeAssuredID string) (*domain.ClaimDraft, error)
	SelectPayout(ctx context.Context, sessionID, payoutMethodID string) (*domain.ClaimDraft, error)
	ProcessReceipts(ctx context.Context, sessionID string, uploads []domain.Upload) (*domain.ExtractionSummary, error)
	AttachDocument(ctx context.Context, sessionID string, upload domain.Upload) (domain.DocumentRef, error)
	Ask(ctx context.Context, sessionID, message string) (*domain.AssistantReply, error)
	MissingItems(ctx context.Context, sessionID string) ([]string, error)
	Receipts(ctx context.Context, sessionID string) ([]domain.Receipt, error)
}
