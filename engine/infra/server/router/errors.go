package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Error codes returned in the error envelope.
const (
	ErrUnauthorizedCode       = "UNAUTHORIZED"
	ErrForbiddenCode          = "FORBIDDEN"
	ErrInsufficientScopeCode  = "INSUFFICIENT_SCOPE"
	ErrInvalidParamsCode      = "INVALID_PARAMS"
	ErrUserNotProvisionedCode = "USER_NOT_PROVISIONED"
	ErrInvalidBlockTypeCode   = "INVALID_BLOCK_TYPE"
	ErrMissingCredentialsCode = "MISSING_CREDENTIALS"
	ErrExecutionFailedCode    = "EXECUTION_FAILED"
	ErrTimeoutCode            = "TIMEOUT"
	ErrRateLimitedCode        = "RATE_LIMITED"
	ErrUserExistsCode         = "USER_EXISTS"
	ErrNotFoundCode           = "NOT_FOUND"
	ErrInternalCode           = "INTERNAL_ERROR"
)

var codeStatus = map[string]int{
	ErrUnauthorizedCode:       http.StatusUnauthorized,
	ErrForbiddenCode:          http.StatusForbidden,
	ErrInsufficientScopeCode:  http.StatusForbidden,
	ErrInvalidParamsCode:      http.StatusBadRequest,
	ErrUserNotProvisionedCode: http.StatusNotFound,
	ErrInvalidBlockTypeCode:   http.StatusBadRequest,
	ErrMissingCredentialsCode: http.StatusBadRequest,
	ErrExecutionFailedCode:    http.StatusInternalServerError,
	ErrTimeoutCode:            http.StatusGatewayTimeout,
	ErrRateLimitedCode:        http.StatusTooManyRequests,
	ErrUserExistsCode:         http.StatusConflict,
	ErrNotFoundCode:           http.StatusNotFound,
	ErrInternalCode:           http.StatusInternalServerError,
}

// StatusForCode returns the HTTP status bound to code; unknown codes map to 500.
func StatusForCode(code string) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// APIError is a terminal response for a request. It is safe to show verbatim.
type APIError struct {
	Code       string
	Message    string
	Details    any
	RetryAfter time.Duration
	Err        error
}

func NewAPIError(code, message string) *APIError {
	return &APIError{Code: code, Message: message}
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func (e *APIError) Status() int {
	return StatusForCode(e.Code)
}

func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

func (e *APIError) WithRetryAfter(d time.Duration) *APIError {
	e.RetryAfter = d
	return e
}

func (e *APIError) Wrap(err error) *APIError {
	e.Err = err
	return e
}

// Internal hides err behind a generic message.
func Internal(err error) *APIError {
	return &APIError{Code: ErrInternalCode, Message: "Internal server error", Err: err}
}

// InvalidParams reports a validation failure with per-field detail.
func InvalidParams(message string, fields map[string]string) *APIError {
	e := &APIError{Code: ErrInvalidParamsCode, Message: message}
	if len(fields) > 0 {
		e.Details = fields
	}
	return e
}

// AsAPIError unwraps err into an APIError, falling back to INTERNAL_ERROR.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}

var credentialMarkers = []string{"credential", "oauth", "api key"}

// IsCredentialFailure applies the text heuristic for downstream credential problems.
func IsCredentialFailure(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range credentialMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
