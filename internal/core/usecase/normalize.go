package usecase

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

const DefaultMinConfidence = 0.5

// Day-first layouts win over the US month-first layout, which is tried last.
var receiptDateLayouts = []string{
	"2/1/2006",
	"2-1-2006",
	"2006-1-2",
	"2006/1/2",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"1/2/2006",
}

var amountNoise = regexp.MustCompile(`[^0-9.\-]`)

// ParseReceiptDate tries each supported layout in order and returns the first
// match. The second result is false when no layout matches.
func ParseReceiptDate(raw string) (domain.Date, bool) {
	value := strings.Join(strings.Fields(raw), " ")
	if value == "" {
		return domain.Date{}, false
	}
	for _, layout := range receiptDateLayouts {
		parsed, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		return domain.NewDate(parsed.Year(), parsed.Month(), parsed.Day()), true
	}
	return domain.Date{}, false
}

// ParseAmount strips currency symbols and thousands separators and parses the
// remainder as a non-negative decimal.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	cleaned := amountNoise.ReplaceAllString(strings.TrimSpace(raw), "")
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return decimal.Zero, false
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil || value.IsNegative() {
		return decimal.Zero, false
	}
	return value, true
}

// ResolveCurrency maps an extracted currency code or symbol onto the catalog.
// Codes missing from the catalog get a synthesized entry.
func ResolveCurrency(raw string, catalog []domain.Currency) (domain.Currency, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return domain.Currency{}, false
	}
	for _, currency := range catalog {
		if strings.EqualFold(currency.Code, value) || (currency.Symbol != "" && currency.Symbol == value) {
			return currency, true
		}
	}
	code := strings.ToUpper(value)
	symbol := code
	if code == "SGD" {
		symbol = "$"
	}
	return domain.Currency{Code: code, Name: code + " Currency", Symbol: symbol}, true
}

// NormalizeReceipt converts a successful extraction into a Receipt. index is
// the 1-based position of the file in its batch. Only a missing currency is
// an error; every other gap falls back to a default and is tagged in Issues.
func NormalizeReceipt(index int, result domain.ExtractionResult, catalog []domain.Currency, minConfidence float64) (domain.Receipt, error) {
	if !result.Success {
		return domain.Receipt{}, domain.WrapError(domain.ErrInvalidInput, "normalize receipt", fmt.Errorf("extraction of %s did not succeed", result.FileName))
	}
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}

	n := receiptNormalizer{fields: result.Fields, minConfidence: minConfidence}

	currencyRaw := n.text(domain.FieldCurrency, true)
	currency, ok := ResolveCurrency(currencyRaw, catalog)
	if !ok {
		return domain.Receipt{}, domain.WrapError(
			domain.ErrMissingCurrency,
			"normalize receipt",
			fmt.Errorf("file %s has no currency", result.FileName),
		)
	}

	receipt := domain.Receipt{
		Number:       n.text(domain.FieldReceiptNumber, true),
		HospitalName: n.text(domain.FieldHospital, true),
		Currency:     currency,
		Documents:    []domain.DocumentRef{{Type: domain.DocumentTypeReceipt, ID: result.FileName}},
	}
	if receipt.Number == "" {
		receipt.Number = fmt.Sprintf("receipt_%d", index)
		receipt.NumberGenerated = true
	}

	if date, ok := n.date(domain.FieldReceiptDate, true); ok {
		receipt.ReceiptDate = date
	} else {
		receipt.ReceiptDate = domain.Today()
	}
	if date, ok := n.date(domain.FieldAdmissionDate, false); ok {
		receipt.AdmissionDate = &date
	}
	if date, ok := n.date(domain.FieldDischargeDate, false); ok {
		receipt.DischargeDate = &date
	}

	receipt.Amount = decimal.Zero
	if rawAmount := n.text(domain.FieldBillAmount, true); rawAmount != "" {
		if amount, ok := ParseAmount(rawAmount); ok {
			receipt.Amount = amount
		} else {
			n.flag(domain.FieldBillAmount, domain.IssueUnparseable, nil)
		}
	}

	receipt.Description = receiptDescription(result)
	receipt.Issues = n.issues
	return receipt, nil
}

type receiptNormalizer struct {
	fields        map[string]domain.ExtractedField
	minConfidence float64
	issues        []domain.FieldIssue
}

func (n *receiptNormalizer) text(name string, required bool) string {
	field, ok := n.fields[name]
	value := ""
	if ok {
		value = field.Text()
	}
	if value == "" {
		if required {
			n.flag(name, domain.IssueMissing, nil)
		}
		return ""
	}
	if field.Confidence != nil && *field.Confidence < n.minConfidence {
		n.flag(name, domain.IssueLowConfidence, field.Confidence)
	}
	return value
}

func (n *receiptNormalizer) date(name string, required bool) (domain.Date, bool) {
	raw := n.text(name, required)
	if raw == "" {
		return domain.Date{}, false
	}
	date, ok := ParseReceiptDate(raw)
	if !ok {
		n.flag(name, domain.IssueUnparseable, nil)
	}
	return date, ok
}

func (n *receiptNormalizer) flag(name, reason string, confidence *float64) {
	issue := domain.FieldIssue{Field: name, Reason: reason}
	if confidence != nil {
		issue.Confidence = *confidence
	}
	n.issues = append(n.issues, issue)
}

const maxDescriptionChars = 2000

func receiptDescription(result domain.ExtractionResult) string {
	parts := make([]string, 0)
	for _, item := range billItems(result.Fields) {
		line := strings.TrimSpace(strings.Join([]string{item.service, item.detail}, " "))
		if line != "" {
			parts = append(parts, line)
		}
	}
	if markdown := strings.Join(strings.Fields(result.Markdown), " "); markdown != "" {
		parts = append(parts, markdown)
	}
	description := strings.Join(parts, "; ")
	return truncateRunes(description, maxDescriptionChars)
}

// truncateRunes cuts s to at most limit bytes without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

type billItem struct {
	service string
	detail  string
	amount  string
}

func billItems(fields map[string]domain.ExtractedField) []billItem {
	items := fields[domain.FieldBillItems].ValueArray
	out := make([]billItem, 0, len(items))
	for _, item := range items {
		out = append(out, billItem{
			service: item.ValueObject[domain.FieldItemService].Text(),
			detail:  item.ValueObject[domain.FieldItemDetail].Text(),
			amount:  item.ValueObject[domain.FieldItemAmount].Text(),
		})
	}
	return out
}
