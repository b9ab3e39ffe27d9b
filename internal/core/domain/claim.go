package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type ClaimType string

const (
	ClaimTypeHospitalisation            ClaimType = "HOSPITALISATION"
	ClaimTypeOutpatient                 ClaimType = "OUTPATIENT"
	ClaimTypeAccidentHospitalisation    ClaimType = "ACCIDENT_HOSPITALISATION"
	ClaimTypeAccidentNonHospitalisation ClaimType = "ACCIDENT_NON_HOSPITALISATION"
	ClaimTypeDental                     ClaimType = "DENTAL"
	ClaimTypeShield                     ClaimType = "SHIELD"
)

var claimTypes = []ClaimType{
	ClaimTypeHospitalisation,
	ClaimTypeOutpatient,
	ClaimTypeAccidentHospitalisation,
	ClaimTypeAccidentNonHospitalisation,
	ClaimTypeDental,
	ClaimTypeShield,
}

// ClaimTypes lists every supported claim type.
func ClaimTypes() []ClaimType {
	return append([]ClaimType(nil), claimTypes...)
}

func ParseClaimType(raw string) (ClaimType, error) {
	normalized := ClaimType(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range claimTypes {
		if known == normalized {
			return known, nil
		}
	}
	return "", WrapError(ErrInvalidInput, "parse claim type", fmt.Errorf("unknown claim type %q", raw))
}

// EligibleClaimTypes is an ordered set of claim types a policy allows.
type EligibleClaimTypes []ClaimType

func (s EligibleClaimTypes) Contains(claimType ClaimType) bool {
	for _, candidate := range s {
		if candidate == claimType {
			return true
		}
	}
	return false
}

type ClaimDetails struct {
	HospitalName              string          `json:"hospitalName"`
	ClaimingFromOtherInsurers bool            `json:"claimingFromOtherInsurers"`
	FinalAmount               decimal.Decimal `json:"finalAmount"`
}

type Payout struct {
	Mode     string      `json:"mode"`
	Currency Currency    `json:"currency"`
	Account  BankAccount `json:"account"`
}

type ClaimDraft struct {
	ClientID        string             `json:"clientId"`
	PolicyID        string             `json:"policyId,omitempty"`
	PolicyName      string             `json:"policyName,omitempty"`
	LifeAssuredID   string             `json:"lifeAssuredId,omitempty"`
	LifeAssuredName string             `json:"lifeAssuredName,omitempty"`
	ClaimType       ClaimType          `json:"claimType,omitempty"`
	EligibleTypes   EligibleClaimTypes `json:"eligibleTypes,omitempty"`
	Details         ClaimDetails       `json:"details"`
	Receipts        []Receipt          `json:"receipts"`
	Documents       []DocumentRef      `json:"documents"`
	Payout          *Payout            `json:"payout,omitempty"`
}

func NewClaimDraft(clientID string) *ClaimDraft {
	return &ClaimDraft{
		ClientID:  strings.TrimSpace(clientID),
		Details:   ClaimDetails{FinalAmount: decimal.Zero},
		Receipts:  []Receipt{},
		Documents: []DocumentRef{},
	}
}

// SetClaimType assigns a claim type after checking it against the policy's
// eligible set.
func (d *ClaimDraft) SetClaimType(claimType ClaimType) error {
	if !d.EligibleTypes.Contains(claimType) {
		return WrapError(ErrNotEligible, "set claim type", fmt.Errorf("%s not in %v", claimType, d.EligibleTypes))
	}
	d.ClaimType = claimType
	return nil
}

// UpsertReceipt replaces a receipt with the same number or appends it. A
// receipt with a generated number is always appended under a placeholder
// that is unique within the draft.
func (d *ClaimDraft) UpsertReceipt(receipt Receipt) {
	if receipt.NumberGenerated {
		receipt.Number = d.nextPlaceholderNumber()
		d.Receipts = append(d.Receipts, receipt)
		d.recomputeTotals()
		return
	}
	for i := range d.Receipts {
		if d.Receipts[i].Number == receipt.Number {
			d.Receipts[i] = receipt
			d.recomputeTotals()
			return
		}
	}
	d.Receipts = append(d.Receipts, receipt)
	d.recomputeTotals()
}

func (d *ClaimDraft) nextPlaceholderNumber() string {
	taken := make(map[string]struct{}, len(d.Receipts))
	for _, existing := range d.Receipts {
		taken[existing.Number] = struct{}{}
	}
	for n := len(d.Receipts) + 1; ; n++ {
		candidate := fmt.Sprintf("receipt_%d", n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// AddDocument records a supporting document unless the same id is present.
func (d *ClaimDraft) AddDocument(ref DocumentRef) {
	for _, existing := range d.Documents {
		if existing.ID == ref.ID && existing.Type == ref.Type {
			return
		}
	}
	d.Documents = append(d.Documents, ref)
}

func (d *ClaimDraft) recomputeTotals() {
	total := decimal.Zero
	for _, receipt := range d.Receipts {
		total = total.Add(receipt.Amount)
		if d.Details.HospitalName == "" && strings.TrimSpace(receipt.HospitalName) != "" {
			d.Details.HospitalName = strings.TrimSpace(receipt.HospitalName)
		}
	}
	d.Details.FinalAmount = total
}

// MissingFields returns the names of required draft fields that are unset and
// the checklist document codes that have not been provided.
func (d *ClaimDraft) MissingFields(checklist []RequiredDocument) []string {
	missing := make([]string, 0)
	if d.ClientID == "" {
		missing = append(missing, "clientId")
	}
	if d.PolicyID == "" {
		missing = append(missing, "policyId")
	}
	if d.LifeAssuredID == "" {
		missing = append(missing, "lifeAssuredId")
	}
	if d.ClaimType == "" {
		missing = append(missing, "claimType")
	}
	if len(d.Receipts) == 0 {
		missing = append(missing, "receipts")
	}
	if d.Payout == nil {
		missing = append(missing, "payout")
	}

	provided := make(map[DocumentType]struct{}, len(d.Documents))
	for _, ref := range d.Documents {
		provided[ref.Type] = struct{}{}
	}
	for _, receipt := range d.Receipts {
		for _, ref := range receipt.Documents {
			provided[ref.Type] = struct{}{}
		}
	}
	for _, doc := range checklist {
		if !doc.Required {
			continue
		}
		if _, ok := provided[DocumentType(doc.Code)]; !ok {
			missing = append(missing, "document:"+doc.Code)
		}
	}
	return missing
}

func (d *ClaimDraft) IsComplete(checklist []RequiredDocument) bool {
	return len(d.MissingFields(checklist)) == 0
}
