package httpadapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/claim-assistant/internal/config"
	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

type sessionsFake struct {
	err      error
	session  *domain.Session
	uploads  []string
	bodies   []string
	messages []string
	missing  []string
	receipts []domain.Receipt
}

func newSessionsFake() *sessionsFake {
	return &sessionsFake{session: domain.NewSession("sess-1", "C111")}
}

func (f *sessionsFake) lookup(sessionID string) (*domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if sessionID != f.session.ID {
		return nil, domain.WrapError(domain.ErrNotFound, "get session", fmt.Errorf("session %s", sessionID))
	}
	return f.session, nil
}

func (f *sessionsFake) StartSession(_ context.Context, clientID string) (*domain.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(clientID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start session", fmt.Errorf("client id is required"))
	}
	return f.session, nil
}

func (f *sessionsFake) Session(_ context.Context, sessionID string) (*domain.Session, error) {
	return f.lookup(sessionID)
}

func (f *sessionsFake) SelectPolicy(_ context.Context, sessionID, policyID, lifeAssuredID string) (*domain.ClaimDraft, error) {
	session, err := f.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	session.Draft.PolicyID = policyID
	session.Draft.LifeAssuredID = lifeAssuredID
	return session.Draft, nil
}

func (f *sessionsFake) SelectPayout(_ context.Context, sessionID, payoutMethodID string) (*domain.ClaimDraft, error) {
	session, err := f.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	session.Draft.Payout = &domain.Payout{Mode: payoutMethodID}
	return session.Draft, nil
}

func (f *sessionsFake) ProcessReceipts(_ context.Context, sessionID string, uploads []domain.Upload) (*domain.ExtractionSummary, error) {
	if _, err := f.lookup(sessionID); err != nil {
		return nil, err
	}
	if err := f.consume(uploads); err != nil {
		return nil, err
	}
	return &domain.ExtractionSummary{Succeeded: len(uploads), FinalAmount: decimal.NewFromInt(100)}, nil
}

func (f *sessionsFake) AttachDocument(_ context.Context, sessionID string, upload domain.Upload) (domain.DocumentRef, error) {
	if _, err := f.lookup(sessionID); err != nil {
		return domain.DocumentRef{}, err
	}
	if err := f.consume([]domain.Upload{upload}); err != nil {
		return domain.DocumentRef{}, err
	}
	return domain.DocumentRef{ID: "doc-" + upload.Name, Type: domain.DocumentTypeOthers}, nil
}

func (f *sessionsFake) Ask(_ context.Context, sessionID, message string) (*domain.AssistantReply, error) {
	if _, err := f.lookup(sessionID); err != nil {
		return nil, err
	}
	f.messages = append(f.messages, message)
	return &domain.AssistantReply{
		ThreadID:  "thread_1",
		RunID:     "run_1",
		RunStatus: domain.RunStatusCompleted,
		Response:  &domain.ClaimResponse{ClaimData: map[string]any{}, Status: domain.ResponseCompleted, Message: "done"},
	}, nil
}

func (f *sessionsFake) MissingItems(_ context.Context, sessionID string) ([]string, error) {
	if _, err := f.lookup(sessionID); err != nil {
		return nil, err
	}
	return f.missing, nil
}

func (f *sessionsFake) Receipts(_ context.Context, sessionID string) ([]domain.Receipt, error) {
	if _, err := f.lookup(sessionID); err != nil {
		return nil, err
	}
	return f.receipts, nil
}

func (f *sessionsFake) consume(uploads []domain.Upload) error {
	for _, upload := range uploads {
		raw, err := io.ReadAll(upload.Body)
		if err != nil {
			return err
		}
		f.uploads = append(f.uploads, upload.Name)
		f.bodies = append(f.bodies, string(raw))
	}
	return nil
}

type batchesFake struct {
	err      error
	clientID string
	names    []string
}

func (f *batchesFake) Submit(_ context.Context, clientID string, uploads []domain.Upload) (*domain.ExtractionBatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.clientID = clientID
	files := make([]domain.UploadedFile, 0, len(uploads))
	for _, upload := range uploads {
		f.names = append(f.names, upload.Name)
		files = append(files, domain.UploadedFile{Name: upload.Name, Path: "batch-1_" + upload.Name})
	}
	now := time.Now().UTC()
	return &domain.ExtractionBatch{
		ID:        "batch-1",
		ClientID:  clientID,
		Files:     files,
		Status:    domain.BatchStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type batchReaderFake struct {
	err error
}

func (f batchReaderFake) GetByID(_ context.Context, id string) (*domain.ExtractionBatch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ExtractionBatch{ID: id, Status: domain.BatchStatusReady}, nil
}

type exporterFake struct {
	count int
}

func (f *exporterFake) ContentType() string { return "application/test" }

func (f *exporterFake) ExportReceipts(w io.Writer, receipts []domain.Receipt) error {
	f.count = len(receipts)
	_, err := fmt.Fprintf(w, "receipts=%d", len(receipts))
	return err
}

type routerFixture struct {
	sessions *sessionsFake
	batches  *batchesFake
	exporter *exporterFake
	handler  http.Handler
}

func newRouterFixture(cfg config.Config) *routerFixture {
	fx := &routerFixture{
		sessions: newSessionsFake(),
		batches:  &batchesFake{},
		exporter: &exporterFake{},
	}
	fx.handler = NewRouter(cfg, fx.sessions, fx.batches, batchReaderFake{}, fx.exporter).Handler()
	return fx
}
