package client

import (
	"errors"
	"fmt"
)

// Kind classifies a failed request.
type Kind int

const (
	// KindNetwork: no response was received (includes timeouts). Status is 0.
	KindNetwork Kind = iota
	// KindAuth: the server rejected the credentials (401).
	KindAuth
	// KindValidation: the server rejected the request (4xx other than 401),
	// or client-side validation failed before sending.
	KindValidation
	// KindServer: the server failed (5xx) or sent an unreadable success body.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Error is the only error type callers of the pipeline observe.
type Error struct {
	Status    int
	Message   string
	Kind      Kind
	Fields    map[string]string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a pipeline error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsAuth reports whether err is an authentication failure. Views must ignore
// these: the pipeline has already torn the session down.
func IsAuth(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindAuth
}

// AsError converts any error into an *Error, wrapping foreign errors as
// network failures.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindNetwork, Message: err.Error(), Err: err}
}

// kindForStatus classifies a non-2xx status. A 1xx or 3xx that reaches the
// pipeline (an interim response, or a redirect the transport did not follow)
// means the server did not answer the API contract, so it is a KindServer
// fault like any 5xx.
func kindForStatus(status int) Kind {
	switch {
	case status == 401:
		return KindAuth
	case status >= 400 && status < 500:
		return KindValidation
	default:
		return KindServer
	}
}
