package lifecycle

import (
	"fmt"

	"github.com/example/dispatch-client/internal/models"
)

// ValidationError rejects a request before anything is sent.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid booking: %s %s", e.Field, e.Reason)
}

// StateError is an operation that the current booking state does not allow.
type StateError struct {
	Op        string
	BookingID string
	From      models.Status
	To        models.Status
	Reason    string
}

func (e *StateError) Error() string {
	msg := e.Op
	if e.BookingID != "" {
		msg += " " + e.BookingID
	}
	if e.From != "" || e.To != "" {
		msg += fmt.Sprintf(" (%q -> %q)", e.From, e.To)
	}
	return msg + ": " + e.Reason
}
