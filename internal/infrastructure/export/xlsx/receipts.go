package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

const receiptsSheet = "Receipts"

var receiptHeader = []any{
	"Receipt Number",
	"Receipt Date",
	"Hospital",
	"Admission Date",
	"Discharge Date",
	"Currency",
	"Amount",
	"Issues",
}

// ReceiptExporter writes claim receipts as a spreadsheet.
type ReceiptExporter struct{}

func NewReceiptExporter() *ReceiptExporter {
	return &ReceiptExporter{}
}

func (e *ReceiptExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *ReceiptExporter) ExportReceipts(w io.Writer, receipts []domain.Receipt) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), receiptsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(receiptsSheet, "A1", &receiptHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(receiptsSheet, "A1", "H1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	total := decimal.Zero
	for i, receipt := range receipts {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		amount, _ := receipt.Amount.Float64()
		row := []any{
			receipt.Number,
			receipt.ReceiptDate.String(),
			receipt.HospitalName,
			optionalDate(receipt.AdmissionDate),
			optionalDate(receipt.DischargeDate),
			receipt.Currency.Code,
			amount,
			issueList(receipt.Issues),
		}
		if err := f.SetSheetRow(receiptsSheet, cell, &row); err != nil {
			return fmt.Errorf("write receipt %s: %w", receipt.Number, err)
		}
		total = total.Add(receipt.Amount)
	}

	totalRow := len(receipts) + 2
	totalValue, _ := total.Float64()
	if err := f.SetCellValue(receiptsSheet, fmt.Sprintf("F%d", totalRow), "Total"); err != nil {
		return err
	}
	if err := f.SetCellValue(receiptsSheet, fmt.Sprintf("G%d", totalRow), totalValue); err != nil {
		return err
	}
	if err := f.SetCellStyle(receiptsSheet, fmt.Sprintf("F%d", totalRow), fmt.Sprintf("G%d", totalRow), bold); err != nil {
		return err
	}
	if err := f.SetColWidth(receiptsSheet, "A", "H", 18); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func optionalDate(d *domain.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func issueList(issues []domain.FieldIssue) string {
	if len(issues) == 0 {
		return ""
	}
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.Field+":"+issue.Reason)
	}
	return strings.Join(parts, ", ")
}
