package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

func TestParseClaimResponseValid(t *testing.T) {
	raw := `{"claim_data":{"policyNumber":"P-100","totalAmount":1500},"status":"GATHERING_OPTIONAL","message":"Any other receipts?"}`

	got, err := ParseClaimResponse(raw)
	require.NoError(t, err)

	want := &domain.ClaimResponse{
		ClaimData: map[string]any{"policyNumber": "P-100", "totalAmount": 1500.0},
		Status:    domain.ResponseGatheringOptional,
		Message:   "Any other receipts?",
	}
	assert.Equal(t, want, got)
}

func TestParseClaimResponseEmptyClaimData(t *testing.T) {
	got, err := ParseClaimResponse("\n {\"claim_data\":{},\"status\":\"COMPLETED\",\"message\":\"\"} \n")
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseCompleted, got.Status)
	assert.NotNil(t, got.ClaimData)
}

func TestParseClaimResponseIgnoresExtraKeys(t *testing.T) {
	raw := `{"claim_data":{"a":1},"status":"COMPLETED","message":"done","claim_type":"HOSPITALISATION"}`

	got, err := ParseClaimResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseCompleted, got.Status)
	assert.Equal(t, "done", got.Message)
	assert.Equal(t, map[string]any{"a": 1.0}, got.ClaimData)
}

func TestParseClaimResponseInvalid(t *testing.T) {
	cases := map[string]string{
		"empty":              "   ",
		"truncated":          `{"claim_data":{},"status":"COMPLETED"`,
		"prose around json":  `Sure! {"claim_data":{},"status":"COMPLETED","message":"done"}`,
		"fenced json":        "```json\n{\"claim_data\":{},\"status\":\"COMPLETED\",\"message\":\"done\"}\n```",
		"missing message":    `{"claim_data":{},"status":"COMPLETED"}`,
		"unknown status":     `{"claim_data":{},"status":"DONE","message":"x"}`,
		"wrong type":         `{"claim_data":[],"status":"COMPLETED","message":"x"}`,
		"null claim data":    `{"claim_data":null,"status":"COMPLETED","message":"x"}`,
		"not an object":      `["COMPLETED"]`,
		"plain conversation": `What is your policy number?`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := ParseClaimResponse(raw)
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, domain.IsKind(err, domain.ErrInvalidResponse))
		})
	}
}
