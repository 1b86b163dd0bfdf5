package videogen

import (
	"errors"
	"fmt"
)

// ErrorCode classifies renderer failures. The set is closed: every error
// leaving this package carries exactly one of these codes.
type ErrorCode string

const (
	CodeInvalidProvider    ErrorCode = "INVALID_PROVIDER"
	CodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	CodeProviderError      ErrorCode = "PROVIDER_ERROR"
	CodeRateLimited        ErrorCode = "RATE_LIMITED"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodePersistenceError   ErrorCode = "PERSISTENCE_ERROR"
	CodeConfigurationError ErrorCode = "CONFIGURATION_ERROR"
	CodeAuthError          ErrorCode = "AUTH_ERROR"
)

// ErrorContext carries structured diagnostics so operators can tell what the
// provider actually returned without reproducing the call.
type ErrorContext struct {
	Provider     string `json:"provider,omitempty"`
	HTTPStatus   int    `json:"httpStatus,omitempty"`
	RetryAfterMs int64  `json:"retryAfterMs,omitempty"`
	Raw          string `json:"raw,omitempty"` // truncated response fragment
}

// RendererError is the only error type raised by provider clients and the
// renderer itself.
type RendererError struct {
	Message string
	Code    ErrorCode
	Context ErrorContext
}

func (e *RendererError) Error() string {
	if e.Context.Provider != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.Context.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a RendererError with the given code.
func NewError(code ErrorCode, format string, args ...interface{}) *RendererError {
	return &RendererError{
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// WithContext attaches diagnostic context and returns the same error.
func (e *RendererError) WithContext(ctx ErrorContext) *RendererError {
	e.Context = ctx
	return e
}

// maxRawFragment bounds the response fragment kept in error context so a
// multi-megabyte provider payload never ends up in a log line.
const maxRawFragment = 2048

// truncateRaw trims a raw response body for inclusion in error context.
func truncateRaw(body []byte) string {
	if len(body) <= maxRawFragment {
		return string(body)
	}
	return string(body[:maxRawFragment]) + "...(truncated)"
}

// AsRendererError unwraps err into a RendererError if possible.
func AsRendererError(err error) (*RendererError, bool) {
	var re *RendererError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// CodeOf returns the error code for err, or PROVIDER_ERROR for anything that
// somehow escaped untyped.
func CodeOf(err error) ErrorCode {
	if re, ok := AsRendererError(err); ok {
		return re.Code
	}
	return CodeProviderError
}
