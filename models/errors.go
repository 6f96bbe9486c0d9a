package models

import (
	"errors"
	"fmt"
)

// Error codes used in API responses and internal error handling.
const (
	ErrCodeInvalidURL       = "INVALID_URL"
	ErrCodeQuotaExceeded    = "QUOTA_EXCEEDED"
	ErrCodeQuotaUnavailable = "QUOTA_UNAVAILABLE"
	ErrCodeDNSFailure       = "DNS_FAILURE"
	ErrCodeTimeout          = "RENDER_TIMEOUT"
	ErrCodeNavigation       = "NAVIGATION_FAILED"
	ErrCodeHTTPStatus       = "HTTP_STATUS"
	ErrCodeBrowserCrash     = "BROWSER_CRASH"
	ErrCodeCancelled        = "CANCELLED"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AnalysisError is the internal error type carrying an error code.
// Message is safe to show to the caller; Err keeps the underlying cause.
type AnalysisError struct {
	Code    string
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// NewAnalysisError creates a new AnalysisError.
func NewAnalysisError(code, message string, err error) *AnalysisError {
	return &AnalysisError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *AnalysisError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// IsRenderFailure reports whether the error came from fetching or rendering
// the target page, as opposed to bad input or quota rejection.
func (e *AnalysisError) IsRenderFailure() bool {
	switch e.Code {
	case ErrCodeDNSFailure, ErrCodeTimeout, ErrCodeNavigation, ErrCodeHTTPStatus, ErrCodeBrowserCrash:
		return true
	}
	return false
}

// ErrorCode extracts the code from err, or ErrCodeInternal when err is not
// an *AnalysisError.
func ErrorCode(err error) string {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Code
	}
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return ErrCodeQuotaExceeded
	}
	return ErrCodeInternal
}

// QuotaExceededError is returned when an anonymous caller has used up the
// allowance for the current window.
type QuotaExceededError struct {
	Status QuotaStatus
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: %d of %d analyses used, resets at %s",
		ErrCodeQuotaExceeded, e.Status.Limit-e.Status.Remaining, e.Status.Limit,
		e.Status.ResetAt.Format("2006-01-02T15:04:05Z07:00"))
}

// ToDetail converts the quota error to an API-facing ErrorDetail.
func (e *QuotaExceededError) ToDetail() *ErrorDetail {
	return &ErrorDetail{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("daily limit of %d free analyses reached, sign in for unlimited analyses", e.Status.Limit),
	}
}
