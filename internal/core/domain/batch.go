package domain

import (
	"io"
	"time"

	"github.com/shopspring/decimal"
)

type BatchStatus string

const (
	BatchStatusQueued     BatchStatus = "queued"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusReady      BatchStatus = "ready"
	BatchStatusFailed     BatchStatus = "failed"
)

// Upload is an incoming file body before it reaches storage.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// UploadedFile is one file handed to the extraction pipeline.
type UploadedFile struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ExtractionSummary aggregates one pipeline run. Results follow input order,
// Receipts follow completion order.
type ExtractionSummary struct {
	Results     []ExtractionResult `json:"results"`
	Receipts    []Receipt          `json:"receipts"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	FinalAmount decimal.Decimal    `json:"final_amount"`
	Report      string             `json:"report,omitempty"`
}

// ExtractionBatch is an asynchronously processed set of uploaded files.
type ExtractionBatch struct {
	ID        string             `json:"id"`
	ClientID  string             `json:"client_id"`
	Files     []UploadedFile     `json:"files"`
	Status    BatchStatus        `json:"status"`
	Summary   *ExtractionSummary `json:"summary,omitempty"`
	ClaimType ClaimType          `json:"claim_type,omitempty"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
