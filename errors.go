package indietreat

import (
	"errors"
	"fmt"
)

// CheckoutError represents a checkout-specific error
type CheckoutError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Common error codes
const (
	ErrCodeInvalidInput              = "invalid_input"
	ErrCodeNotFound                  = "not_found"
	ErrCodeForwardFailed             = "forward_failed"
	ErrCodeTransferFailed            = "transfer_failed"
	ErrCodeInsufficientAuthorization = "insufficient_authorization"
	ErrCodeInvalidSignature          = "invalid_signature"
	ErrCodePermitExpired             = "permit_expired"
	ErrCodeRejectedPayment           = "rejected_payment"
	ErrCodePurchaseAborted           = "purchase_aborted"
)

// NewCheckoutError creates a new checkout error
func NewCheckoutError(code, message string, details map[string]interface{}) *CheckoutError {
	return &CheckoutError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrorCode extracts the checkout error code from err, or "" if err does not
// carry one.
func ErrorCode(err error) string {
	var ce *CheckoutError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// IsCode reports whether err carries the given checkout error code.
func IsCode(err error, code string) bool {
	return ErrorCode(err) == code
}
