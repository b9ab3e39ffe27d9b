package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
)

// ReferenceCatalog reads backend reference data. Lookup failures are logged
// and surface as empty results.
type ReferenceCatalog struct {
	backend ports.ClaimBackend
}

func NewReferenceCatalog(backend ports.ClaimBackend) *ReferenceCatalog {
	return &ReferenceCatalog{backend: backend}
}

func (c *ReferenceCatalog) EligiblePolicies(ctx context.Context, clientID string) []domain.EligiblePolicy {
	policies, err := c.backend.EligiblePolicies(ctx, clientID)
	if err != nil {
		slog.Warn("backend_lookup_failed", "lookup", "eligible_policies", "client_id", clientID, "error", err)
		return []domain.EligiblePolicy{}
	}
	if policies == nil {
		return []domain.EligiblePolicy{}
	}
	return policies
}

func (c *ReferenceCatalog) Currencies(ctx context.Context) []domain.Currency {
	currencies, err := c.backend.Currencies(ctx)
	if err != nil {
		slog.Warn("backend_lookup_failed", "lookup", "currencies", "error", err)
		return []domain.Currency{}
	}
	if currencies == nil {
		return []domain.Currency{}
	}
	return currencies
}

func (c *ReferenceCatalog) RequiredDocuments(ctx context.Context, claimType domain.ClaimType) []domain.RequiredDocument {
	documents, err := c.backend.RequiredDocuments(ctx, claimType)
	if err != nil {
		slog.Warn("backend_lookup_failed", "lookup", "required_documents", "claim_type", claimType, "error", err)
		return []domain.RequiredDocument{}
	}
	if documents == nil {
		return []domain.RequiredDocument{}
	}
	return documents
}

func (c *ReferenceCatalog) PayoutMethods(ctx context.Context, policyID string) []domain.PayoutMethod {
	methods, err := c.backend.PayoutMethods(ctx, policyID)
	if err != nil {
		slog.Warn("backend_lookup_failed", "lookup", "payout_methods", "policy_id", policyID, "error", err)
		return []domain.PayoutMethod{}
	}
	if methods == nil {
		return []domain.PayoutMethod{}
	}
	return methods
}
