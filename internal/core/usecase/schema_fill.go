package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
	"github.com/kirillkom/claim-assistant/internal/core/ports"
)

// SchemaFiller pre-fills claim form templates. The template decides which
// keys exist; filling never adds keys.
type SchemaFiller struct {
	templates ports.SchemaTemplates
}

func NewSchemaFiller(templates ports.SchemaTemplates) *SchemaFiller {
	return &SchemaFiller{templates: templates}
}

func (f *SchemaFiller) Template(ctx context.Context, claimType domain.ClaimType) (map[string]any, error) {
	template, err := f.templates.Template(ctx, claimType)
	if err != nil {
		return nil, fmt.Errorf("load schema template: %w", err)
	}
	return cloneMap(template), nil
}

func (f *SchemaFiller) Fill(
	ctx context.Context,
	claimType domain.ClaimType,
	policies []domain.EligiblePolicy,
	currencies []domain.Currency,
	receipts []domain.Receipt,
) (map[string]any, error) {
	filled, err := f.Template(ctx, claimType)
	if err != nil {
		return nil, err
	}

	set := func(key string, value any) {
		if _, ok := filled[key]; ok {
			filled[key] = value
		}
	}

	if policy, ok := policyForClaim(policies, claimType); ok {
		if policy.Policy.ID != "" {
			set("policyNumber", policy.Policy.ID)
		}
		if len(policy.Policy.LivesAssured) > 0 && policy.Policy.LivesAssured[0].Name != "" {
			set("lifeAssured", policy.Policy.LivesAssured[0].Name)
		}
	}

	if len(receipts) == 0 {
		return filled, nil
	}

	first := receipts[0]
	if code := first.Currency.Code; code != "" {
		set("currency", code)
		for _, currency := range currencies {
			if strings.EqualFold(currency.Code, code) {
				set("currencyName", currency.Name)
				set("currencySymbol", currency.Symbol)
				break
			}
		}
	}
	if first.Number != "" {
		set("receiptNumber", first.Number)
	}
	if !first.ReceiptDate.IsZero() {
		set("receiptDate", first.ReceiptDate.String())
	}
	if first.HospitalName != "" {
		set("hospitalName", first.HospitalName)
	}
	if first.AdmissionDate != nil {
		set("admissionDate", first.AdmissionDate.String())
	}
	if first.DischargeDate != nil {
		set("dischargeDate", first.DischargeDate.String())
	}

	total := decimal.Zero
	for _, receipt := range receipts {
		total = total.Add(receipt.Amount)
	}
	set("claimAmount", amountValue(first.Amount))
	set("totalAmount", amountValue(total))
	return filled, nil
}

// policyForClaim returns the first policy that allows claimType, or the first
// policy when none does.
func policyForClaim(policies []domain.EligiblePolicy, claimType domain.ClaimType) (domain.EligiblePolicy, bool) {
	if len(policies) == 0 {
		return domain.EligiblePolicy{}, false
	}
	for _, policy := range policies {
		if policy.ClaimTypes.Contains(claimType) {
			return policy, true
		}
	}
	return policies[0], true
}

func amountValue(amount decimal.Decimal) float64 {
	value, _ := amount.Float64()
	return value
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneMap(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return typed
	}
}
