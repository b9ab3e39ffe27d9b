package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
)

const (
	ToolGetEligiblePolicies  = "get_eligible_policies"
	ToolGetCurrencies        = "get_currencies"
	ToolGetClaimSchema       = "get_claim_schema"
	ToolGetRequiredDocuments = "get_required_documents"
	ToolGetPayoutMethods     = "get_payout_methods"
	ToolClassifyClaim        = "classify_claim"
	ToolSubmitClaim          = "submit_claim"
)

const claimTypeEnum = `["HOSPITALISATION","OUTPATIENT","ACCIDENT_HOSPITALISATION","ACCIDENT_NON_HOSPITALISATION","DENTAL","SHIELD"]`

// ClaimTools implements the tool table the reasoning job calls back into.
type ClaimTools struct {
	catalog *ReferenceCatalog
	filler  *SchemaFiller
	backend ports.ClaimBackend
	events  ports.EventPublisher
}

func NewClaimTools(catalog *ReferenceCatalog, filler *SchemaFiller, backend ports.ClaimBackend, events ports.EventPublisher) *ClaimTools {
	return &ClaimTools{
		catalog: catalog,
		filler:  filler,
		backend: backend,
		events:  events,
	}
}

// Register adds every claim tool to the registry.
func (t *ClaimTools) Register(registry *ToolRegistry) error {
	tools := []Tool{
		{
			Definition: ToolDefinition{
				Name:        ToolGetEligiblePolicies,
				Description: "List the client's policies that are eligible for health claims, with their claim types and lives assured.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"client_id":{"type":"string"}}}`),
			},
			Handler: t.getEligiblePolicies,
		},
		{
			Definition: ToolDefinition{
				Name:        ToolGetCurrencies,
				Description: "List the currencies a claim can be filed in.",
				Parameters:  json.RawMessage(emptyParameters),
			},
			Handler: t.getCurrencies,
		},
		{
			Definition: ToolDefinition{
				Name:        ToolGetClaimSchema,
				Description: "Return the claim form template for a claim type. Defaults to the draft's claim type.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"claim_type":{"type":"string","enum":` + claimTypeEnum + `}}}`),
			},
			Handler: t.getClaimSchema,
		},
		{
			Definition: ToolDefinition{
				Name:        ToolGetRequiredDocuments,
				Description: "Return the document checklist for a claim type. Defaults to the draft's claim type.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"claim_type":{"type":"string","enum":` + claimTypeEnum + `}}}`),
			},
			Handler: t.getRequiredDocuments,
		},
		{
			Definition: ToolDefinition{
				Name:        ToolGetPayoutMethods,
				Description: "List payout methods registered on a policy.",
				Parameters:  json.RawMessage(`{"type":"object","properties":{"policy_id":{"type":"string"}}}`),
			},
			Handler: t.getPayoutMethods,
		},
		{
			Definition: ToolDefinition{
				Name:        ToolClassifyClaim,
				Description: "Classify the uploaded receipts into a claim type and pre-fill the claim form.",
				Parameters:  json.RawMessage(emptyParameters),
			},
			Handler: t.classifyClaim,
		},
		{
			Definition: ToolDefinition{
				Name:        ToolSubmitClaim,
				Description: "Submit the assembled claim. Omitted fields are taken from the current claim draft.",
				Parameters: json.RawMessage(`{"type":"object","properties":{` +
					`"client_id":{"type":"string"},` +
					`"life_assured_id":{"type":"string"},` +
					`"claim_type":{"type":"string","enum":` + claimTypeEnum + `},` +
					`"policy_id":{"type":"string"},` +
					`"claim_details":{"type":"object"},` +
					`"receipts":{"type":"array"},` +
					`"payout":{"type":"object"}` +
					`},"required":["claim_type"]}`),
			},
			Handler: t.submitClaim,
		},
	}

	for _, tool := range tools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}

func (t *ClaimTools) getEligiblePolicies(ctx context.Context, session *domain.Session, args ToolArguments) (any, error) {
	clientID := args.String("client_id", session.ClientID)
	if clientID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, ToolGetEligiblePolicies, errors.New("client_id is required"))
	}
	policies := t.catalog.EligiblePolicies(ctx, clientID)
	if clientID == session.ClientID {
		session.Policies = policies
		if session.Draft.PolicyID == "" {
			session.Draft.EligibleTypes = domain.MergeClaimTypes(policies)
		}
	}
	return map[string]any{"policies": policies}, nil
}

func (t *ClaimTools) getCurrencies(ctx context.Context, _ *domain.Session, _ ToolArguments) (any, error) {
	return map[string]any{"currencies": t.catalog.Currencies(ctx)}, nil
}

func (t *ClaimTools) getClaimSchema(ctx context.Context, session *domain.Session, args ToolArguments) (any, error) {
	claimType, err := draftClaimType(ToolGetClaimSchema, session, args)
	if err != nil {
		return nil, err
	}
	return t.filler.Template(ctx, claimType)
}

func (t *ClaimTools) getRequiredDocuments(ctx context.Context, session *domain.Session, args ToolArguments) (any, error) {
	claimType, err := draftClaimType(ToolGetRequiredDocuments, session, args)
	if err != nil {
		return nil, err
	}
	documents := t.catalog.RequiredDocuments(ctx, claimType)
	if session.Draft.ClaimType == claimType {
		session.Checklist = documents
	}
	return map[string]any{"documents": documents}, nil
}

// draftClaimType reads claim_type from the arguments, falling back to the
// claim type already chosen on the draft.
func draftClaimType(tool string, session *domain.Session, args ToolArguments) (domain.ClaimType, error) {
	raw := args.String("claim_type", string(session.Draft.ClaimType))
	if raw == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, tool, errors.New("claim_type is required"))
	}
	return domain.ParseClaimType(raw)
}

func (t *ClaimTools) getPayoutMethods(ctx context.Context, session *domain.Session, args ToolArguments) (any, error) {
	policyID := args.String("policy_id", session.Draft.PolicyID)
	if policyID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, ToolGetPayoutMethods, errors.New("policy_id is required"))
	}
	return map[string]any{"methods": t.catalog.PayoutMethods(ctx, policyID)}, nil
}

func (t *ClaimTools) classifyClaim(ctx context.Context, session *domain.Session, _ ToolArguments) (any, error) {
	if len(session.Draft.Receipts) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, ToolClassifyClaim, errors.New("no receipts have been processed"))
	}
	claimType, schema, err := classifyAndFill(ctx, t.catalog, t.filler, session)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"claim_type":     claimType,
		"eligible_types": session.Draft.EligibleTypes,
		"schema":         schema,
	}, nil
}

func (t *ClaimTools) submitClaim(ctx context.Context, session *domain.Session, args ToolArguments) (any, error) {
	draft := session.Draft
	claimType, err := domain.ParseClaimType(args.String("claim_type", string(draft.ClaimType)))
	if err != nil {
		return nil, err
	}

	submission := domain.ClaimSubmission{
		ClientID:      args.String("client_id", session.ClientID),
		LifeAssuredID: args.String("life_assured_id", draft.LifeAssuredID),
		ClaimType:     claimType,
		PolicyID:      args.String("policy_id", draft.PolicyID),
		TotalAmount:   draft.Details.FinalAmount,
	}
	if submission.ClientID == "" || submission.LifeAssuredID == "" || submission.PolicyID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, ToolSubmitClaim, errors.New("client_id, life_assured_id and policy_id are required"))
	}

	ensurePolicies(ctx, t.catalog, session)
	policy, ok := domain.FindPolicy(session.Policies, submission.PolicyID)
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, ToolSubmitClaim, fmt.Errorf("policy %s is not eligible for client %s", submission.PolicyID, submission.ClientID))
	}
	if !policy.ClaimTypes.Contains(claimType) {
		return nil, domain.WrapError(domain.ErrNotEligible, ToolSubmitClaim, fmt.Errorf("policy %s does not cover %s", submission.PolicyID, claimType))
	}

	if details, ok := args.Object("claim_details"); ok {
		submission.ClaimDetails = details
	} else if submission.ClaimDetails, err = toJSONObject(draft.Details); err != nil {
		return nil, err
	}
	if receipts, ok := args.List("receipts"); ok {
		submission.Receipts = receipts
	} else if submission.Receipts, err = toJSONList(draft.Receipts); err != nil {
		return nil, err
	}
	if payout, ok := args.Object("payout"); ok {
		submission.Payout = payout
	} else if draft.Payout != nil {
		if submission.Payout, err = toJSONObject(draft.Payout); err != nil {
			return nil, err
		}
	}

	result, err := t.backend.SubmitClaim(ctx, submission)
	if err != nil {
		return nil, fmt.Errorf("submit claim: %w", err)
	}
	session.Submitted = result

	if t.events != nil {
		event := domain.ClaimSubmittedEvent{
			SessionID:   session.ID,
			ClientID:    submission.ClientID,
			PolicyID:    submission.PolicyID,
			ClaimType:   claimType,
			ClaimID:     result.ClaimID,
			TotalAmount: submission.TotalAmount,
			SubmittedAt: time.Now().UTC(),
		}
		if err := t.events.PublishClaimSubmitted(ctx, event); err != nil {
			slog.Warn("claim_event_publish_failed", "session_id", session.ID, "claim_id", result.ClaimID, "error", err)
		}
	}
	return result, nil
}

func toJSONObject(value any) (map[string]any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode claim field: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode claim field: %w", err)
	}
	return out, nil
}

func toJSONList(value any) ([]any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode claim field: %w", err)
	}
	out := []any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode claim field: %w", err)
	}
	return out, nil
}
