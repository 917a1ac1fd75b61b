package engines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/genai"

	"github.com/ekaya-inc/ekaya-visibility/pkg/models"
)

// ErrorType classifies engine failures.
type ErrorType string

const (
	ErrorTypeAuth        ErrorType = "auth_error"
	ErrorTypeModel       ErrorType = "model_not_found"
	ErrorTypeEndpoint    ErrorType = "endpoint_error"
	ErrorTypeRateLimit   ErrorType = "rate_limited"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeServer      ErrorType = "server_error"
	ErrorTypeBadRequest  ErrorType = "bad_request"
	ErrorTypeEmpty       ErrorType = "empty_answer"
	ErrorTypeUnavailable ErrorType = "unavailable"
	ErrorTypeCanceled    ErrorType = "canceled"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error is a classified engine failure.
type Error struct {
	Type       ErrorType
	Engine     models.Engine
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Engine != "" {
		parts = append(parts, string(e.Engine))
	}
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// ClassifyError turns a provider error into an *Error. Status codes reported
// by the provider SDKs take precedence over message matching.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr
	}

	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Type: ErrorTypeCanceled, Message: "request canceled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Type: ErrorTypeTimeout, Message: "request timeout", Retryable: true, Cause: err}
	}

	if code := statusCode(err); code > 0 {
		classified := classifyStatus(code, err)
		classified.StatusCode = code
		return classified
	}

	return classifyMessage(err)
}

// statusCode extracts the HTTP status from the provider SDK error types.
func statusCode(err error) int {
	var oaiAPIErr *openai.APIError
	if errors.As(err, &oaiAPIErr) && oaiAPIErr.HTTPStatusCode > 0 {
		return oaiAPIErr.HTTPStatusCode
	}
	var oaiReqErr *openai.RequestError
	if errors.As(err, &oaiReqErr) && oaiReqErr.HTTPStatusCode > 0 {
		return oaiReqErr.HTTPStatusCode
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) && genaiErr.Code > 0 {
		return genaiErr.Code
	}
	var genaiPtrErr *genai.APIError
	if errors.As(err, &genaiPtrErr) && genaiPtrErr.Code > 0 {
		return genaiPtrErr.Code
	}
	return 0
}

func classifyStatus(code int, err error) *Error {
	lower := strings.ToLower(err.Error())
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &Error{Type: ErrorTypeAuth, Message: "authentication failed", Cause: err}
	case code == http.StatusNotFound:
		if strings.Contains(lower, "model") {
			return &Error{Type: ErrorTypeModel, Message: "model not found", Cause: err}
		}
		return &Error{Type: ErrorTypeEndpoint, Message: "endpoint not found", Cause: err}
	case code == http.StatusTooManyRequests:
		return &Error{Type: ErrorTypeRateLimit, Message: "rate limited", Retryable: true, Cause: err}
	case code == http.StatusRequestTimeout:
		return &Error{Type: ErrorTypeTimeout, Message: "request timeout", Retryable: true, Cause: err}
	case code >= 500:
		return &Error{Type: ErrorTypeServer, Message: "server error", Retryable: true, Cause: err}
	case code >= 400:
		return &Error{Type: ErrorTypeBadRequest, Message: "request rejected", Cause: err}
	}
	return &Error{Type: ErrorTypeUnknown, Message: "engine error", Cause: err}
}

// classifyMessage handles errors that carry no status code, such as the
// Anthropic client's or transport failures.
func classifyMessage(err error) *Error {
	errStr := err.Error()
	lower := strings.ToLower(errStr)

	switch {
	case strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "authentication_error"):
		return &Error{Type: ErrorTypeAuth, Message: "authentication failed", Cause: err}

	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist") || strings.Contains(lower, "not_found_error")):
		return &Error{Type: ErrorTypeModel, Message: "model not found", Cause: err}

	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "rate_limit_error"):
		return &Error{Type: ErrorTypeRateLimit, Message: "rate limited", Retryable: true, Cause: err}

	case strings.Contains(lower, "overloaded"):
		return &Error{Type: ErrorTypeServer, Message: "server overloaded", Retryable: true, Cause: err}

	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset"):
		return &Error{Type: ErrorTypeEndpoint, Message: "connection failed", Retryable: true, Cause: err}

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &Error{Type: ErrorTypeTimeout, Message: "request timeout", Retryable: true, Cause: err}

	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504"):
		return &Error{Type: ErrorTypeServer, Message: "server error", Retryable: true, Cause: err}

	case strings.Contains(errStr, "404"):
		return &Error{Type: ErrorTypeEndpoint, Message: "endpoint not found", Cause: err}
	}

	return &Error{Type: ErrorTypeUnknown, Message: "engine error", Cause: err}
}

// IsRetryable returns true if err is a retryable engine error.
func IsRetryable(err error) bool {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var engErr *Error
	if errors.As(err, &engErr) {
		return engErr.Type
	}
	return ErrorTypeUnknown
}
