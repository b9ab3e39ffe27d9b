package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrTemporary           = errors.New("temporary failure")
	ErrAnalyzerTimeout     = errors.New("analyzer timeout")
	ErrUnsupportedDocument = errors.New("unsupported document")
	ErrMissingCurrency     = errors.New("missing currency")
	ErrInvalidResponse     = errors.New("invalid assistant response")
	ErrNotEligible         = errors.New("claim type not eligible")
	ErrSchemaNotFound      = errors.New("claim schema not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
