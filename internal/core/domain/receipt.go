package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// Date is a calendar day serialized as YYYY-MM-DD.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(raw []byte) error {
	text := strings.TrimSpace(string(raw))
	if text == "null" || text == `""` {
		d.Time = time.Time{}
		return nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("decode date: %w", err)
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return fmt.Errorf("parse date %q: %w", value, err)
	}
	d.Time = parsed
	return nil
}

type Currency struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type DocumentType string

const (
	DocumentTypeReceipt          DocumentType = "RECEIPT"
	DocumentTypeMedicalReport    DocumentType = "MEDICAL_REPORT"
	DocumentTypeSpecialistReport DocumentType = "SPECIALIST_REPORT"
	DocumentTypeReferralLetter   DocumentType = "REFERRAL_LETTER"
	DocumentTypeDischargeSummary DocumentType = "DISCHARGE_SUMMARY"
	DocumentTypeHospitalBill     DocumentType = "HOSPITAL_BILL"
	DocumentTypeOthers           DocumentType = "OTHERS"
)

type DocumentRef struct {
	Type DocumentType `json:"type"`
	ID   string       `json:"id"`
}

// FieldIssue tags a receipt field that was missing, unparseable or extracted
// with low confidence.
type FieldIssue struct {
	Field      string  `json:"field"`
	Reason     string  `json:"reason"`
	Confidence float64 `json:"confidence,omitempty"`
}

const (
	IssueMissing       = "missing"
	IssueUnparseable   = "unparseable"
	IssueLowConfidence = "low_confidence"
)

type Receipt struct {
	Number        string          `json:"number"`
	ReceiptDate   Date            `json:"receiptDate"`
	AdmissionDate *Date           `json:"admissionDate"`
	DischargeDate *Date           `json:"dischargeDate"`
	HospitalName  string          `json:"hospitalName"`
	Currency      Currency        `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	Documents     []DocumentRef   `json:"documents"`
	Description   string          `json:"description,omitempty"`
	Issues        []FieldIssue    `json:"issues,omitempty"`

	// NumberGenerated marks a placeholder number assigned because none
	// could be read. Such receipts never replace an existing one.
	NumberGenerated bool `json:"-"`
}

// HasHospitalStay reports whether the receipt describes an inpatient stay.
func (r Receipt) HasHospitalStay() bool {
	return r.AdmissionDate != nil && r.DischargeDate != nil && strings.TrimSpace(r.HospitalName) != ""
}

// Analyzer field names.
const (
	FieldReceiptNumber = "ReceiptNumber"
	FieldReceiptDate   = "ReceiptDate"
	FieldAdmissionDate = "AdmissionDate"
	FieldDischargeDate = "DischargeDate"
	FieldHospital      = "Hospital"
	FieldCurrency      = "Currency"
	FieldBillAmount    = "BillAmount"
	FieldGST           = "GST"
	FieldBillItems     = "BillItems"
	FieldItemService   = "ItemService"
	FieldItemDetail    = "ItemDetail"
	FieldItemAmount    = "ItemAmount"
)

// ExtractedField is one typed value produced by the document analyzer.
type ExtractedField struct {
	Type        string                    `json:"type,omitempty"`
	ValueString string                    `json:"valueString,omitempty"`
	ValueNumber *float64                  `json:"valueNumber,omitempty"`
	ValueDate   string                    `json:"valueDate,omitempty"`
	ValueArray  []ExtractedField          `json:"valueArray,omitempty"`
	ValueObject map[string]ExtractedField `json:"valueObject,omitempty"`
	Content     string                    `json:"content,omitempty"`
	Confidence  *float64                  `json:"confidence,omitempty"`
}

// Text returns the best scalar rendering of the field.
func (f ExtractedField) Text() string {
	switch {
	case strings.TrimSpace(f.ValueString) != "":
		return strings.TrimSpace(f.ValueString)
	case strings.TrimSpace(f.ValueDate) != "":
		return strings.TrimSpace(f.ValueDate)
	case f.ValueNumber != nil:
		return decimal.NewFromFloat(*f.ValueNumber).String()
	default:
		return strings.TrimSpace(f.Content)
	}
}

// AnalyzedDocument is the raw analyzer output for one file.
type AnalyzedDocument struct {
	Markdown string                    `json:"markdown,omitempty"`
	Fields   map[string]ExtractedField `json:"fields"`
}

type FailureKind string

const (
	FailureNotFound      FailureKind = "not_found"
	FailureUnsupported   FailureKind = "unsupported"
	FailureAnalyzer      FailureKind = "analyzer"
	FailureTimeout       FailureKind = "timeout"
	FailureCancelled     FailureKind = "cancelled"
	FailureNormalization FailureKind = "normalization"
)

// ExtractionResult is either a success with fields and a rendered summary or
// a failure with an error description. Never both.
type ExtractionResult struct {
	FileName    string                    `json:"file_name"`
	FilePath    string                    `json:"-"`
	Success     bool                      `json:"success"`
	Fields      map[string]ExtractedField `json:"fields,omitempty"`
	Markdown    string                    `json:"-"`
	Summary     string                    `json:"summary,omitempty"`
	Error       string                    `json:"error,omitempty"`
	FailureKind FailureKind               `json:"failure_kind,omitempty"`
}

func FailedExtraction(fileName, filePath string, kind FailureKind, err error) ExtractionResult {
	msg := string(kind)
	if err != nil {
		msg = err.Error()
	}
	return ExtractionResult{
		FileName:    fileName,
		FilePath:    filePath,
		Success:     false,
		Error:       msg,
		FailureKind: kind,
	}
}
