package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error types that can be used across the application
var (
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = new(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict  = new(ErrCodeVersionConflict, "version conflict")
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrPermissionDenied = new(ErrCodePermissionDenied, "permission denied")
	ErrSystem           = new(ErrCodeSystemError, "system error")

	// Billing domain sentinels. These carry stable machine codes that callers
	// branch on; see the taxonomy in the package doc.
	ErrInvoiceNothingToDo = new(ErrCodeInvoiceNothingToDo, "no billable segment pending by target date")
	ErrDoubleBilling      = new(ErrCodeDoubleBilling, "double billing detected")
	ErrPlanNotFound       = new(ErrCodePlanNotFound, "plan not found in catalog version")
	ErrNoSuchProduct      = new(ErrCodeNoSuchProduct, "product not found in catalog version")
	ErrMultiplePlans      = new(ErrCodeMultiplePlans, "multiple matching plans for price list")
	ErrInvalidRequested   = new(ErrCodeInvalidRequestedDate, "requested date is invalid for subscription")
	ErrAccountParked      = new(ErrCodeAccountParked, "account is parked, auto invoicing suspended")
	ErrCreditNotReclaimed = new(ErrCodeCreditNotReclaimed, "invoice credit must be reclaimed before void")

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:           http.StatusNotFound,
		ErrAlreadyExists:      http.StatusConflict,
		ErrVersionConflict:    http.StatusConflict,
		ErrValidation:         http.StatusBadRequest,
		ErrInvalidOperation:   http.StatusBadRequest,
		ErrPermissionDenied:   http.StatusForbidden,
		ErrSystem:             http.StatusInternalServerError,
		ErrInvoiceNothingToDo: http.StatusNotFound,
		ErrDoubleBilling:      http.StatusConflict,
		ErrPlanNotFound:       http.StatusBadRequest,
		ErrNoSuchProduct:      http.StatusBadRequest,
		ErrMultiplePlans:      http.StatusBadRequest,
		ErrInvalidRequested:   http.StatusBadRequest,
		ErrAccountParked:      http.StatusConflict,
		ErrCreditNotReclaimed: http.StatusConflict,
	}
)

const (
	ErrCodeSystemError      = "system_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeVersionConflict  = "version_conflict"
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidOperation = "invalid_operation"
	ErrCodePermissionDenied = "permission_denied"

	ErrCodeInvoiceNothingToDo   = "invoice_nothing_to_do"
	ErrCodeDoubleBilling        = "double_billing_detected"
	ErrCodePlanNotFound         = "plan_not_found"
	ErrCodeNoSuchProduct        = "no_such_product"
	ErrCodeMultiplePlans        = "multiple_matching_plans_for_pricelist"
	ErrCodeInvalidRequestedDate = "sub_invalid_requested_date"
	ErrCodeAccountParked        = "account_parked"
	ErrCodeCreditNotReclaimed   = "credit_not_reclaimed"
)

// InternalError represents a domain error
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Op      string // Logical operation name
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

// new creates a new InternalError
func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func Is(err, target error) bool {
	return errors.Is(err, target)
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidOperation checks if an error is an invalid operation error
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrInvalidOperation)
}

// IsNothingToDo checks if an error signals that no invoice segment was pending.
// Callers use this to tell "nothing pending" apart from real failures.
func IsNothingToDo(err error) bool {
	return errors.Is(err, ErrInvoiceNothingToDo)
}

// IsDoubleBilling checks if an error is an internal consistency violation
// raised by the repair engine.
func IsDoubleBilling(err error) bool {
	return errors.Is(err, ErrDoubleBilling)
}

// IsAccountParked checks if an error was raised because the account is parked.
func IsAccountParked(err error) bool {
	return errors.Is(err, ErrAccountParked)
}

func HTTPStatusFromErr(err error) int {
	for e, status := range statusCodeMap {
		if errors.Is(err, e) {
			return status
		}
	}
	return http.StatusInternalServerError
}
