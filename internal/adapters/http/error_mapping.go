package httpadapter

import (
	"net/http"

	"github.com/kirillkom/claim-assistant/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound), domain.IsKind(err, domain.ErrSchemaNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrUnsupportedDocument):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrNotEligible), domain.IsKind(err, domain.ErrMissingCurrency):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrInvalidResponse):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrAnalyzerTimeout):
		return http.StatusGatewayTimeout
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
