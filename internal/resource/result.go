package resource

import (
	"errors"

	"grimm.is/rampart/internal/client"
)

// ErrSubmitting is returned when a form is submitted while its previous
// submission is still in flight.
var ErrSubmitting = errors.New("submission already in progress")

// Result is the outcome of a controller operation: Value on success, Err
// otherwise. Notice is a localized message for a toast; Fields maps form
// inputs to localized problems; KeepOpen tells a dialog to stay open.
type Result[T any] struct {
	Value    T
	Err      *client.Error
	Notice   string
	Fields   map[string]string
	KeepOpen bool
}

// OK reports success.
func (r Result[T]) OK() bool {
	return r.Err == nil
}

// Silent reports a failure the view must not show. Authentication failures
// are handled by the session teardown and the navigation controller.
func (r Result[T]) Silent() bool {
	return r.Err != nil && r.Err.Kind == client.KindAuth
}

// AsError returns Err as an error, nil on success.
func (r Result[T]) AsError() error {
	if r.Err == nil {
		return nil
	}
	return r.Err
}
