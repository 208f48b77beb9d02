package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("product unavailable")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("concurrent update conflict")
	ErrForbidden         = errors.New("forbidden")
)

// LineItemError ties a failure to the position of the offending entry in order_items.
type LineItemError struct {
	Index     int
	ProductID int64
	Err       error
}

func (e *LineItemError) Error() string {
	return fmt.Sprintf("order_items[%d] (product %d): %v", e.Index, e.ProductID, e.Err)
}

func (e *LineItemError) Unwrap() error { return e.Err }

// Code is the machine readable name of the failure kind.
func (e *LineItemError) Code() string {
	return Code(e.Err)
}

// ValidationError carries every failing line item of a rejected order.
type ValidationError struct {
	Items []*LineItemError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		msgs = append(msgs, it.Error())
	}
	return "order validation failed: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, len(e.Items))
	for _, it := range e.Items {
		errs = append(errs, it)
	}
	return errs
}

// Code maps an error onto its taxonomy name.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
