package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
)

// ClaimService runs the interactive claim flow for one session at a time.
// Every mutation of a session happens under its lock.
type ClaimService struct {
	sessions     ports.SessionStore
	storage      ports.ObjectStorage
	pipeline     *ExtractionPipeline
	catalog      *ReferenceCatalog
	filler       *SchemaFiller
	orchestrator *RunOrchestrator
}

func NewClaimService(
	sessions ports.SessionStore,
	storage ports.ObjectStorage,
	pipeline *ExtractionPipeline,
	catalog *ReferenceCatalog,
	filler *SchemaFiller,
	orchestrator *RunOrchestrator,
) *ClaimService {
	return &ClaimService{
		sessions:     sessions,
		storage:      storage,
		pipeline:     pipeline,
		catalog:      catalog,
		filler:       filler,
		orchestrator: orchestrator,
	}
}

func (s *ClaimService) StartSession(ctx context.Context, clientID string) (*domain.Session, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "start session", errors.New("client_id is required"))
	}
	session := domain.NewSession(uuid.NewString(), clientID)
	ensurePolicies(ctx, s.catalog, session)
	session.Draft.EligibleTypes = domain.MergeClaimTypes(session.Policies)
	s.sessions.Put(session)
	slog.Info("claim_session_started", "session_id", session.ID, "client_id", clientID, "policies", len(session.Policies))
	return session, nil
}

func (s *ClaimService) Session(_ context.Context, sessionID string) (*domain.Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get session", fmt.Errorf("session %s", sessionID))
	}
	return session, nil
}

// SelectPolicy binds the draft to a policy. When lifeAssuredID is empty and
// the policy covers exactly one life, that life is selected.
func (s *ClaimService) SelectPolicy(ctx context.Context, sessionID, policyID, lifeAssuredID string) (*domain.ClaimDraft, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Lock()
	defer session.Unlock()

	ensurePolicies(ctx, s.catalog, session)
	policy, ok := domain.FindPolicy(session.Policies, strings.TrimSpace(policyID))
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "select policy", fmt.Errorf("policy %s is not eligible for client %s", policyID, session.ClientID))
	}

	draft := session.Draft
	lifeAssuredID = strings.TrimSpace(lifeAssuredID)
	var life *domain.Person
	for i := range policy.Policy.LivesAssured {
		candidate := policy.Policy.LivesAssured[i]
		if candidate.ID == lifeAssuredID || (lifeAssuredID == "" && len(policy.Policy.LivesAssured) == 1) {
			life = &candidate
			break
		}
	}
	if lifeAssuredID != "" && life == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "select policy", fmt.Errorf("life assured %s is not covered by policy %s", lifeAssuredID, policy.Policy.ID))
	}

	draft.PolicyID = policy.Policy.ID
	draft.PolicyName = policy.Policy.Name
	draft.EligibleTypes = policy.ClaimTypes
	draft.LifeAssuredID = ""
	draft.LifeAssuredName = ""
	if life != nil {
		draft.LifeAssuredID = life.ID
		draft.LifeAssuredName = life.Name
	}
	draft.Payout = nil
	if draft.ClaimType != "" && !draft.EligibleTypes.Contains(draft.ClaimType) {
		draft.ClaimType = ""
		session.Checklist = nil
	}
	return snapshotDraft(draft), nil
}

func (s *ClaimService) SelectPayout(ctx context.Context, sessionID, payoutMethodID string) (*domain.ClaimDraft, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Lock()
	defer session.Unlock()

	draft := session.Draft
	if draft.PolicyID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "select payout", errors.New("select a policy first"))
	}
	for _, method := range s.catalog.PayoutMethods(ctx, draft.PolicyID) {
		if method.ID == payoutMethodID {
			payout := method.Payout()
			draft.Payout = &payout
			return snapshotDraft(draft), nil
		}
	}
	return nil, domain.WrapError(domain.ErrNotFound, "select payout", fmt.Errorf("payout method %s on policy %s", payoutMethodID, draft.PolicyID))
}

// ProcessReceipts stores the uploads, extracts them in parallel and merges the
// resulting receipts into the draft. The claim type and form are refreshed
// whenever the draft holds at least one receipt.
func (s *ClaimService) ProcessReceipts(ctx context.Context, sessionID string, uploads []domain.Upload) (*domain.ExtractionSummary, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process receipts", errors.New("at least one file is required"))
	}

	files := make([]domain.UploadedFile, 0, len(uploads))
	for _, upload := range uploads {
		file, err := storeUpload(ctx, s.storage, session.ID, upload)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	summary := s.pipeline.Run(ctx, files, s.catalog.Currencies(ctx))

	session.Lock()
	defer session.Unlock()
	for _, receipt := range summary.Receipts {
		session.Draft.UpsertReceipt(receipt)
	}
	if len(session.Draft.Receipts) > 0 {
		if _, _, err := classifyAndFill(ctx, s.catalog, s.filler, session); err != nil {
			slog.Warn("claim_prefill_failed", "session_id", session.ID, "error", err)
		}
	}
	slog.Info("receipts_processed",
		"session_id", session.ID,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"final_amount", session.Draft.Details.FinalAmount.StringFixed(2),
	)
	return summary, nil
}

func (s *ClaimService) AttachDocument(ctx context.Context, sessionID string, upload domain.Upload) (domain.DocumentRef, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	file, err := storeUpload(ctx, s.storage, session.ID, upload)
	if err != nil {
		return domain.DocumentRef{}, err
	}
	ref := domain.DocumentRef{Type: InferDocumentType(file.Name), ID: file.Name}

	session.Lock()
	defer session.Unlock()
	session.Draft.AddDocument(ref)
	return ref, nil
}

// Ask sends one user message to the assistant together with the current
// draft. The session stays locked for the whole run since tool calls may
// update it.
func (s *ClaimService) Ask(ctx context.Context, sessionID, message string) (*domain.AssistantReply, error) {
	if strings.TrimSpace(message) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask assistant", errors.New("message is required"))
	}
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Lock()
	defer session.Unlock()

	contextMessage, err := buildContextMessage(message, session.Draft)
	if err != nil {
		return nil, err
	}
	reply, err := s.orchestrator.Converse(ctx, session, contextMessage)
	if err != nil {
		return nil, fmt.Errorf("assistant turn: %w", err)
	}
	return reply, nil
}

// MissingItems lists what the draft still needs before it can be submitted.
func (s *ClaimService) MissingItems(ctx context.Context, sessionID string) ([]string, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Lock()
	defer session.Unlock()

	if session.Draft.ClaimType != "" && len(session.Checklist) == 0 {
		session.Checklist = s.catalog.RequiredDocuments(ctx, session.Draft.ClaimType)
	}
	return session.Draft.MissingFields(session.Checklist), nil
}

func (s *ClaimService) Receipts(ctx context.Context, sessionID string) ([]domain.Receipt, error) {
	session, err := s.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Lock()
	defer session.Unlock()
	return append([]domain.Receipt(nil), session.Draft.Receipts...), nil
}

// InferDocumentType guesses a supporting document's type from its file name.
func InferDocumentType(fileName string) domain.DocumentType {
	name := strings.ToLower(fileName)
	switch {
	case strings.Contains(name, "specialist"):
		return domain.DocumentTypeSpecialistReport
	case strings.Contains(name, "referral"):
		return domain.DocumentTypeReferralLetter
	case strings.Contains(name, "discharge"):
		return domain.DocumentTypeDischargeSummary
	case strings.Contains(name, "medical"):
		return domain.DocumentTypeMedicalReport
	default:
		return domain.DocumentTypeOthers
	}
}

func buildContextMessage(message string, draft *domain.ClaimDraft) (string, error) {
	encoded, err := json.Marshal(draft)
	if err != nil {
		return "", fmt.Errorf("encode claim draft: %w", err)
	}
	return fmt.Sprintf("%s\n\nCurrent claim draft:\n%s", strings.TrimSpace(message), encoded), nil
}

func ensurePolicies(ctx context.Context, catalog *ReferenceCatalog, session *domain.Session) {
	if len(session.Policies) > 0 || session.ClientID == "" {
		return
	}
	session.Policies = catalog.EligiblePolicies(ctx, session.ClientID)
}

// classifyAndFill classifies the draft's receipts, stores the claim type and
// checklist on the session and returns the pre-filled form. The selected
// policy, if any, is preferred when filling.
func classifyAndFill(ctx context.Context, catalog *ReferenceCatalog, filler *SchemaFiller, session *domain.Session) (domain.ClaimType, map[string]any, error) {
	ensurePolicies(ctx, catalog, session)
	draft := session.Draft
	if len(draft.EligibleTypes) == 0 {
		draft.EligibleTypes = domain.MergeClaimTypes(session.Policies)
	}

	claimType := ClassifyClaim(draft.EligibleTypes, draft.Receipts)
	if err := draft.SetClaimType(claimType); err != nil {
		// Nothing is eligible; keep the default so the form can still be shown.
		draft.ClaimType = claimType
	}
	session.Checklist = catalog.RequiredDocuments(ctx, claimType)

	policies := session.Policies
	if selected, ok := domain.FindPolicy(policies, draft.PolicyID); ok {
		policies = append([]domain.EligiblePolicy{selected}, policies...)
	}
	schema, err := filler.Fill(ctx, claimType, policies, catalog.Currencies(ctx), draft.Receipts)
	if err != nil {
		return claimType, nil, err
	}
	session.Schema = schema
	return claimType, schema, nil
}

func snapshotDraft(draft *domain.ClaimDraft) *domain.ClaimDraft {
	out := *draft
	out.EligibleTypes = append(domain.EligibleClaimTypes(nil), draft.EligibleTypes...)
	out.Receipts = append([]domain.Receipt(nil), draft.Receipts...)
	out.Documents = append([]domain.DocumentRef(nil), draft.Documents...)
	if draft.Payout != nil {
		payout := *draft.Payout
		out.Payout = &payout
	}
	return &out
}
