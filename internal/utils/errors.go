// internal/utils/errors.go
package utils

import (
	"errors"
	"net/http"
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindUnauthorized ErrorKind = "unauthorized"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindConflict     ErrorKind = "conflict"
	KindUnavailable  ErrorKind = "unavailable"
	KindInternal     ErrorKind = "internal"
)

// AppError carries the kind used to pick an HTTP status and a stable code
// clients can switch on. Two AppErrors match under errors.Is when their codes
// are equal, so call sites can attach their own message to a sentinel.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e with a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: message, Err: e.Err}
}

// Wrap returns a copy of e carrying the underlying cause.
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

func NewAppError(kind ErrorKind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

var (
	// Validation
	ErrInvalidInput       = NewAppError(KindValidation, "VALIDATION_ERROR", "invalid input")
	ErrInvalidQuantity    = NewAppError(KindValidation, "INVALID_QUANTITY", "quantity must be greater than zero")
	ErrVerificationFailed = NewAppError(KindValidation, "VERIFICATION_FAILED", "payment signature verification failed")

	// Authentication gate
	ErrMissingToken       = NewAppError(KindUnauthorized, "MISSING_TOKEN", "authentication token is required")
	ErrInvalidToken       = NewAppError(KindUnauthorized, "INVALID_TOKEN", "authentication token is invalid or expired")
	ErrUserNotFound       = NewAppError(KindUnauthorized, "USER_NOT_FOUND", "user not found")
	ErrInvalidCredentials = NewAppError(KindUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	ErrAccountBlocked     = NewAppError(KindForbidden, "ACCOUNT_BLOCKED", "account has been blocked")

	ErrForbidden = NewAppError(KindForbidden, "FORBIDDEN", "you are not allowed to perform this action")

	// Not found
	ErrCropNotFound   = NewAppError(KindNotFound, "CROP_NOT_FOUND", "crop not found")
	ErrOrderNotFound  = NewAppError(KindNotFound, "ORDER_NOT_FOUND", "order not found")
	ErrSchemeNotFound = NewAppError(KindNotFound, "SCHEME_NOT_FOUND", "scheme not found")
	ErrNotFound       = NewAppError(KindNotFound, "NOT_FOUND", "resource not found")

	// Conflict / invalid state
	ErrEmailTaken         = NewAppError(KindConflict, "EMAIL_TAKEN", "user with this email already exists")
	ErrCropInactive       = NewAppError(KindConflict, "CROP_INACTIVE", "crop is not available for ordering")
	ErrInsufficientStock  = NewAppError(KindConflict, "INSUFFICIENT_STOCK", "requested quantity exceeds available stock")
	ErrAlreadyPaid        = NewAppError(KindConflict, "ALREADY_PAID", "order has already been paid")
	ErrInvalidTransition  = NewAppError(KindConflict, "INVALID_TRANSITION", "order status transition is not allowed")
	ErrInvalidOrderState  = NewAppError(KindConflict, "INVALID_STATE", "order is not in a state that allows this action")
	ErrCropHasOpenOrders  = NewAppError(KindConflict, "CROP_HAS_OPEN_ORDERS", "crop has pending or confirmed orders")
	ErrStockChanged       = NewAppError(KindConflict, "STOCK_CHANGED", "crop stock changed since it was read, reload and retry")
	ErrCannotModerateUser = NewAppError(KindConflict, "CANNOT_MODERATE_USER", "admin accounts cannot be blocked")

	// Downstream
	ErrPaymentProvider = NewAppError(KindUnavailable, "PAYMENT_PROVIDER_UNAVAILABLE", "payment provider request failed")
	ErrStorage         = NewAppError(KindUnavailable, "STORAGE_UNAVAILABLE", "file storage request failed")

	ErrInternal = NewAppError(KindInternal, "INTERNAL_ERROR", "internal server error")
)

// AsAppError extracts an AppError from err, falling back to ErrInternal.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return ErrInternal, false
}

func StatusCodeFor(kind ErrorKind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
