package service

import (
	"errors"
	"fmt"
)

// ErrLockNotAcquired means another worker holds the per-sale lock. The
// caller can safely retry the whole operation without new input.
var ErrLockNotAcquired = errors.New("concurrent operation in progress, retry")

// ValidationError reports a malformed request (missing fields, non-positive
// quantities, discount exceeding the line price).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidReferenceError reports a return item naming a sale line that does
// not belong to the given sale.
type InvalidReferenceError struct {
	SaleID     string
	SaleItemID string
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("sale %s has no line %s", e.SaleID, e.SaleItemID)
}

// OverReturnError reports a requested quantity exceeding what is still
// returnable on a sale line. Remaining is surfaced so the caller can
// explain why the return was rejected.
type OverReturnError struct {
	SaleItemID string
	Requested  int
	Remaining  int
}

func (e *OverReturnError) Error() string {
	return fmt.Sprintf("line %s: requested %d exceeds remaining returnable quantity %d",
		e.SaleItemID, e.Requested, e.Remaining)
}
