package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

const claimResponseSchemaJSON = `{
  "type": "object",
  "properties": {
    "claim_data": {"type": "object"},
    "status": {"type": "string", "enum": ["GATHERING_REQUIRED", "GATHERING_OPTIONAL", "COMPLETED"]},
    "message": {"type": "string"}
  },
  "required": ["claim_data", "status", "message"]
}`

var claimResponseSchema = mustCompileSchema(claimResponseSchemaJSON)

func mustCompileSchema(raw string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(raw))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return schema
}

// ParseClaimResponse decodes the assistant's final message. The whole message
// must be a ClaimResponse object; no attempt is made to recover JSON embedded
// in surrounding prose.
func ParseClaimResponse(raw string) (*domain.ClaimResponse, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, domain.WrapError(domain.ErrInvalidResponse, "parse claim response", errors.New("empty message"))
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, domain.WrapError(domain.ErrInvalidResponse, "parse claim response", errors.New("message is not valid JSON"))
	}

	result, err := claimResponseSchema.Validate(gojsonschema.NewStringLoader(trimmed))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidResponse, "parse claim response", err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, domain.WrapError(domain.ErrInvalidResponse, "parse claim response", errors.New(strings.Join(problems, "; ")))
	}

	var response domain.ClaimResponse
	if err := json.Unmarshal([]byte(trimmed), &response); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidResponse, "parse claim response", err)
	}
	if response.ClaimData == nil {
		response.ClaimData = map[string]any{}
	}
	return &response, nil
}
