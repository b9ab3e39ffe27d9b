package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertReceiptReplacesSameNumber(t *testing.T) {
	draft := &ClaimDraft{}
	draft.UpsertReceipt(Receipt{Number: "INV-1", Amount: decimal.NewFromInt(100)})
	draft.UpsertReceipt(Receipt{Number: "INV-1", Amount: decimal.NewFromInt(120)})

	require.Len(t, draft.Receipts, 1)
	assert.Equal(t, "120.00", draft.Details.FinalAmount.StringFixed(2))
}

func TestUpsertReceiptAppendsGeneratedNumbers(t *testing.T) {
	draft := &ClaimDraft{}
	draft.UpsertReceipt(Receipt{Number: "receipt_1", NumberGenerated: true, Amount: decimal.NewFromInt(100)})
	draft.UpsertReceipt(Receipt{Number: "receipt_1", NumberGenerated: true, Amount: decimal.NewFromInt(250)})
	draft.UpsertReceipt(Receipt{Number: "receipt_3", Amount: decimal.NewFromInt(5)})
	draft.UpsertReceipt(Receipt{Number: "receipt_1", NumberGenerated: true, Amount: decimal.NewFromInt(1)})

	require.Len(t, draft.Receipts, 4)
	numbers := make([]string, 0, len(draft.Receipts))
	for _, receipt := range draft.Receipts {
		numbers = append(numbers, receipt.Number)
	}
	assert.Equal(t, []string{"receipt_1", "receipt_2", "receipt_3", "receipt_4"}, numbers)
	assert.Equal(t, "356.00", draft.Details.FinalAmount.StringFixed(2))
}
