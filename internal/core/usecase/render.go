package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

var summaryFieldOrder = []string{
	domain.FieldReceiptNumber,
	domain.FieldReceiptDate,
	domain.FieldAdmissionDate,
	domain.FieldDischargeDate,
	domain.FieldHospital,
	domain.FieldCurrency,
	domain.FieldBillAmount,
	domain.FieldGST,
}

// RenderExtractionSummary renders analyzer fields as a markdown table.
func RenderExtractionSummary(fileName string, fields map[string]domain.ExtractedField) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", fileName)
	b.WriteString("| Field | Value | Confidence |\n|---|---|---|\n")
	for _, name := range summaryFieldOrder {
		field, ok := fields[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", name, escapeCell(field.Text()), formatConfidence(field.Confidence))
	}

	items := billItems(fields)
	if len(items) > 0 {
		b.WriteString("\n**Bill items**\n\n| Service | Detail | Amount |\n|---|---|---|\n")
		for _, item := range items {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", escapeCell(item.service), escapeCell(item.detail), escapeCell(item.amount))
		}
	}
	return b.String()
}

// RenderBatchReport renders the outcome of a pipeline run.
func RenderBatchReport(summary *domain.ExtractionSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Processed %d file(s): %d succeeded, %d failed.\n", len(summary.Results), summary.Succeeded, summary.Failed)
	if summary.Succeeded > 0 {
		currency := ""
		if len(summary.Receipts) > 0 {
			currency = summary.Receipts[0].Currency.Code + " "
		}
		fmt.Fprintf(&b, "Total amount: %s%s\n", currency, summary.FinalAmount.StringFixed(2))
	}
	for _, result := range summary.Results {
		if result.Success {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", result.FileName, result.Error, result.FailureKind)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatConfidence(confidence *float64) string {
	if confidence == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *confidence)
}

func escapeCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
