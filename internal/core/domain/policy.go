package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PolicyStatus struct {
	Type     string `json:"type"`
	IsActive bool   `json:"isActive"`
}

type Policy struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"`
	Name         string       `json:"name"`
	Status       PolicyStatus `json:"status"`
	LivesAssured []Person     `json:"livesAssured"`
	Owner        Person       `json:"owner"`
}

// EligiblePolicy is a policy together with the claim types it allows.
type EligiblePolicy struct {
	Policy     Policy             `json:"policy"`
	Category   string             `json:"category"`
	ClaimTypes EligibleClaimTypes `json:"claimTypes"`
}

// FindPolicy returns the eligible policy with the given id.
func FindPolicy(policies []EligiblePolicy, policyID string) (EligiblePolicy, bool) {
	for _, candidate := range policies {
		if candidate.Policy.ID == policyID {
			return candidate, true
		}
	}
	return EligiblePolicy{}, false
}

// MergeClaimTypes returns the ordered union of claim types across policies.
func MergeClaimTypes(policies []EligiblePolicy) EligibleClaimTypes {
	out := make(EligibleClaimTypes, 0)
	for _, policy := range policies {
		for _, claimType := range policy.ClaimTypes {
			if !out.Contains(claimType) {
				out = append(out, claimType)
			}
		}
	}
	return out
}

type RequiredDocument struct {
	Code             string   `json:"code"`
	Category         string   `json:"category"`
	Required         bool     `json:"required"`
	MaxSizeAllowed   int64    `json:"maxSizeAllowed,omitempty"`
	FileTypesAllowed []string `json:"fileTypesAllowed,omitempty"`
}

type BankAccount struct {
	Name        string `json:"name"`
	BranchCode  string `json:"branch_code,omitempty"`
	AccountNo   string `json:"account_no"`
	AccountName string `json:"account_name,omitempty"`
	SwiftCode   string `json:"swift_code,omitempty"`
}

type PayoutMethod struct {
	ID       string      `json:"id"`
	Mode     string      `json:"mode"`
	Currency Currency    `json:"currency"`
	Account  BankAccount `json:"account"`
	Name     string      `json:"name"`
	Status   string      `json:"status"`
}

// Payout converts the method into the payout block of a claim.
func (m PayoutMethod) Payout() Payout {
	return Payout{Mode: m.Mode, Currency: m.Currency, Account: m.Account}
}

type ClaimSubmission struct {
	ClientID      string          `json:"clientId"`
	LifeAssuredID string          `json:"lifeAssuredId"`
	ClaimType     ClaimType       `json:"claimType"`
	PolicyID      string          `json:"policyId"`
	ClaimDetails  map[string]any  `json:"claimDetails"`
	Receipts      []any           `json:"receipts"`
	Payout        map[string]any  `json:"payout"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}

type SubmissionResult struct {
	ClaimID string `json:"claimId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type ClaimSubmittedEvent struct {
	SessionID   string          `json:"session_id"`
	ClientID    string          `json:"client_id"`
	PolicyID    string          `json:"policy_id"`
	ClaimType   ClaimType       `json:"claim_type"`
	ClaimID     string          `json:"claim_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	SubmittedAt time.Time       `json:"submitted_at"`
}
