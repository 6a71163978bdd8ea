package attrprovider

import "errors"

// Error kinds surfaced to the identity server. Use errors.Is to classify.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrAccessDenied = errors.New("access denied")
	ErrGeneric      = errors.New("generic error")
)

// Error codes returned to API clients and stored with audit records.
const (
	CodeInvalidInput = "invalid_input"
	CodeAccessDenied = "access_denied"
	CodeGeneric      = "generic_error"
)

// ErrorCode maps an error returned by the Provider to its error code.
// Unclassified errors are generic.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrAccessDenied):
		return CodeAccessDenied
	default:
		return CodeGeneric
	}
}
