package claimsapi

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/httpclient"
	"github.com/kirillkom/claim-assistant/internal/infrastructure/resilience"
)

const (
	defaultLBUHeader = "COE"
	service          = "claims_backend"
)

var (
	opEligiblePolicies  = resilience.Lookup(service, "eligible_policies")
	opCurrencies        = resilience.Lookup(service, "currencies")
	opRequiredDocuments = resilience.Lookup(service, "required_documents")
	opPayoutMethods     = resilience.Lookup(service, "payout_methods")
	opSubmitClaim       = resilience.Submission(service, "submit_claim")
)

type Config struct {
	BaseURL   string
	APIKey    string
	LBUHeader string
	Timeout   time.Duration
}

// Client talks to the insurer's policy and claim services. Lookups are
// retried by the executor, claim submissions run once.
type Client struct {
	api *httpclient.Client
}

func New(cfg Config, executor *resilience.Executor) *Client {
	lbu := strings.TrimSpace(cfg.LBUHeader)
	if lbu == "" {
		lbu = defaultLBUHeader
	}
	headers := map[string]string{
		"Lbu-Header": lbu,
		"X-API-Key":  cfg.APIKey,
	}
	return &Client{
		api: httpclient.New(service, cfg.BaseURL, httpclient.Options{
			Timeout:  cfg.Timeout,
			Headers:  headers,
			Executor: executor,
		}),
	}
}

func (c *Client) EligiblePolicies(ctx context.Context, clientID string) ([]domain.EligiblePolicy, error) {
	var out []domain.EligiblePolicy
	_, err := c.api.Do(ctx, http.MethodGet, "/policy/v1/policies/eligible/health", url.Values{"client_id": {clientID}}, nil, &out, opEligiblePolicies)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Currencies(ctx context.Context) ([]domain.Currency, error) {
	var out []domain.Currency
	if _, err := c.api.Do(ctx, http.MethodGet, "/claim/v1/currencies", nil, nil, &out, opCurrencies); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RequiredDocuments(ctx context.Context, claimType domain.ClaimType) ([]domain.RequiredDocument, error) {
	var out []domain.RequiredDocument
	_, err := c.api.Do(ctx, http.MethodGet, "/claim/v1/claim-documents/checklist", url.Values{"claim_type": {string(claimType)}}, nil, &out, opRequiredDocuments)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PayoutMethods(ctx context.Context, policyID string) ([]domain.PayoutMethod, error) {
	var out []domain.PayoutMethod
	path := "/policy/" + url.PathEscape(policyID) + "/payouts/methods"
	_, err := c.api.Do(ctx, http.MethodGet, path, url.Values{"transaction_type": {"CLAIM"}}, nil, &out, opPayoutMethods)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SubmitClaim(ctx context.Context, submission domain.ClaimSubmission) (*domain.SubmissionResult, error) {
	var out domain.SubmissionResult
	if _, err := c.api.Do(ctx, http.MethodPost, "/claim/v1/claims", nil, submission, &out, opSubmitClaim); err != nil {
		return nil, err
	}
	return &out, nil
}
