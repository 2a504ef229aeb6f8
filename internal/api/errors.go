package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Category classifies a backend failure for the caller's retry and
// surfacing policy. Timeouts are expected long-poll behavior; auth failures
// are surfaced verbatim with no retry.
type Category string

const (
	CategoryAuth     Category = "auth"
	CategoryTimeout  Category = "timeout"
	CategoryNotFound Category = "not_found"
	CategoryOther    Category = "other"
)

// Error is a typed backend error carrying the HTTP status and its category.
type Error struct {
	Status   int
	Category Category
	Message  string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("backend error (%d %s): %s", e.Status, e.Category, e.Message)
	}
	return fmt.Sprintf("backend error (%s): %s", e.Category, e.Message)
}

func categoryForStatus(status int) Category {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return CategoryAuth
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return CategoryTimeout
	case http.StatusNotFound:
		return CategoryNotFound
	default:
		return CategoryOther
	}
}

// classify wraps transport-level failures into a typed Error. Network
// timeouts and exceeded deadlines fold into the timeout category so the
// polling engine treats them like a 504.
func classify(err error) error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &Error{Category: CategoryTimeout, Message: err.Error()}
	}
	return &Error{Category: CategoryOther, Message: err.Error()}
}

// IsTimeout reports whether err is a long-poll timeout or gateway timeout.
func IsTimeout(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Category == CategoryTimeout
}

// IsAuth reports whether err is a 401/403 from the backend.
func IsAuth(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Category == CategoryAuth
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Category == CategoryNotFound
}
