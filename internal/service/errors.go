package service

import (
	"errors"
	"fmt"

	"github.com/campus-canteen/api/internal/database"
)

// Error categories. Every error returned by the services that a client can
// act on wraps exactly one of these; anything else is internal.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

// categorized is a specific error carrying its category.
type categorized struct {
	msg  string
	kind error
}

func (e *categorized) Error() string { return e.msg }
func (e *categorized) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &categorized{msg: msg, kind: kind}
}

// Errors returned by the order service.
var (
	ErrMissingName         = newError(ErrValidation, "studentName is required")
	ErrMissingPhone        = newError(ErrValidation, "studentPhone is required")
	ErrEmptyItems          = newError(ErrValidation, "items are required")
	ErrInvalidQuantity     = newError(ErrValidation, "quantity must be >= 1")
	ErrInvalidMenuItemID   = newError(ErrValidation, "invalid menuItemId")
	ErrMenuItemUnavailable = newError(ErrValidation, "menu item is not available")
	ErrInvalidStatus       = newError(ErrValidation, "invalid status")
	ErrInvalidAction       = newError(ErrValidation, "action must be approve or reject")
	ErrInvalidDateRange    = newError(ErrValidation, "startDate must be before endDate")
	ErrPageOutOfRange      = newError(ErrValidation, "page is out of range")

	ErrMenuItemNotFound = newError(ErrNotFound, "menu item not found")
	ErrOrderNotFound    = newError(ErrNotFound, "order not found")

	ErrForbiddenTransition = newError(ErrForbidden, "role may not set this status")

	ErrInvalidTransition = newError(ErrConflict, "invalid status transition")
)

// TransitionError reports a status change refused because the order was no
// longer in a state the rule accepts.
type TransitionError struct {
	From database.OrderStatus
	To   database.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
