package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes shared by the HTTP layer and callers that branch on outcomes
const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeNotFound               = "NOT_FOUND"
	CodeConflict               = "CONFLICT"
	CodeDuplicateCommission    = "DUPLICATE_COMMISSION"
	CodeInsufficientBalance    = "INSUFFICIENT_BALANCE"
	CodeProvider               = "PROVIDER_ERROR"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeForbidden              = "FORBIDDEN"
	CodeRequestTimeout         = "REQUEST_TIMEOUT"
	CodeTooManyRequests        = "TOO_MANY_REQUESTS"
	CodeServiceUnavailable     = "SERVICE_UNAVAILABLE"
	CodeInternal               = "INTERNAL_ERROR"
)

// PayoutRetryMessage is what requesters see when the provider refused a payout
const PayoutRetryMessage = "payout could not be processed, it will be retried"

// ApplicationError represents a domain-specific error
type ApplicationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *ApplicationError) Error() string {
	return e.Message
}

// Unwrap exposes the cause for errors.Is/As
func (e *ApplicationError) Unwrap() error {
	return e.Err
}

// WithCause attaches the underlying error
func (e *ApplicationError) WithCause(err error) *ApplicationError {
	e.Err = err
	return e
}

// Error constructors
func NewValidationError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeValidation,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func NewNotFoundError(resource string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func NewConflictError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// NewDuplicateCommissionError reports an accrual that was already recorded
func NewDuplicateCommissionError(itemLineID string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeDuplicateCommission,
		Message: fmt.Sprintf("commission already recorded for item line %s", itemLineID),
		Status:  http.StatusConflict,
	}
}

// NewInsufficientBalanceError reports a payout larger than the available balance
func NewInsufficientBalanceError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeInsufficientBalance,
		Message: message,
		Status:  http.StatusUnprocessableEntity,
	}
}

// NewProviderError reports a payout provider failure. The provider message stays in Err.
func NewProviderError(message string, cause error) *ApplicationError {
	return &ApplicationError{
		Code:    CodeProvider,
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     cause,
	}
}

// NewInvalidStateTransitionError reports an operation on a terminal or incompatible state
func NewInvalidStateTransitionError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeInvalidStateTransition,
		Message: message,
		Status:  http.StatusConflict,
	}
}

func NewUnauthorizedError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeForbidden,
		Message: message,
		Status:  http.StatusForbidden,
	}
}

func NewRequestTimeoutError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeRequestTimeout,
		Message: message,
		Status:  http.StatusRequestTimeout,
	}
}

func NewTooManyRequestsError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeTooManyRequests,
		Message: message,
		Status:  http.StatusTooManyRequests,
	}
}

func NewServiceUnavailableError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeServiceUnavailable,
		Message: message,
		Status:  http.StatusServiceUnavailable,
	}
}

func NewInternalError(message string) *ApplicationError {
	return &ApplicationError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

// AsApplicationError finds an ApplicationError in err's chain
func AsApplicationError(err error) (*ApplicationError, bool) {
	var appErr *ApplicationError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries an ApplicationError with the given code
func IsCode(err error, code string) bool {
	appErr, ok := AsApplicationError(err)
	return ok && appErr.Code == code
}
