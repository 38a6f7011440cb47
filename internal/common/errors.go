package common

import (
	"errors"
	"net/http"
)

// Canonical error codes surfaced by the pricing engine. Handlers translate
// these into HTTP responses; callers match on code, not message text.
const (
	CodeInvalidDimension      = "INVALID_DIMENSION"
	CodeNoPricingMatrixMatch  = "NO_PRICING_MATRIX_MATCH"
	CodePricingMatrixOverlap  = "PRICING_MATRIX_OVERLAP"
	CodeDiscountNotEligible   = "DISCOUNT_NOT_ELIGIBLE"
	CodeUsageLimitExceeded    = "USAGE_LIMIT_EXCEEDED"
	CodeCouponAlreadyRedeemed = "COUPON_ALREADY_REDEEMED"
	CodeCommissionRateMissing = "COMMISSION_RATE_MISSING"
	CodeConcurrencyConflict   = "CONCURRENCY_CONFLICT"
)

// AppError represents an error with an attached code and HTTP status.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}

// BadInput wraps a caller error (bad dimensions, malformed snapshot) that the
// UI should surface without retrying.
func BadInput(code, message string, err error) *AppError {
	return NewAppError(code, message, http.StatusUnprocessableEntity, err)
}

// Conflict wraps contention outcomes such as an exhausted coupon.
func Conflict(code, message string, err error) *AppError {
	return NewAppError(code, message, http.StatusConflict, err)
}
