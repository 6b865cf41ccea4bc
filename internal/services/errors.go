package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every *ValidationError
	ErrValidation = errors.New("validation failed")

	ErrDuplicateBarcode  = errors.New("barcode already used by another active medicine")
	ErrDuplicateUsername = errors.New("username already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrMedicineExpired   = errors.New("medicine is expired")
	ErrLastAdmin         = errors.New("cannot remove the last active admin")
	ErrSelfDeletion      = errors.New("users cannot delete their own account")
	ErrForbidden         = errors.New("insufficient permissions")

	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")

	ErrMedicineNotFound = errors.New("medicine not found")
	ErrIssuanceNotFound = errors.New("issuance not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrAlertNotFound    = errors.New("alert not found")
)

// ValidationError reports the first invalid input field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InsufficientStockError is returned when an issuance asks for more than is on hand
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available, %d requested", e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
