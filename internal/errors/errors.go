// Package errors attaches component and operation context to failures that
// cross package boundaries, such as a rejected WebSocket handshake.
//
// Usage:
//
//	err := errors.New("streaming", "dial", cause).WithStatus(resp.StatusCode)
//	if code := errors.StatusOf(err); code == http.StatusUnauthorized { ... }
package errors

import (
	stderrors "errors"
	"fmt"
)

// OpError records where an error happened.
type OpError struct {
	// Component is the package that failed, e.g. "streaming".
	Component string
	// Op is the operation that failed, e.g. "dial".
	Op string
	// Status is the HTTP status of a failed handshake, zero otherwise.
	Status int
	Err    error
}

// New wraps err with component and operation context.
func New(component, op string, err error) *OpError {
	return &OpError{Component: component, Op: op, Err: err}
}

func (e *OpError) Error() string {
	s := fmt.Sprintf("%s %s", e.Component, e.Op)
	if e.Status != 0 {
		s += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the cause.
func (e *OpError) Unwrap() error {
	return e.Err
}

// WithStatus sets the HTTP status and returns e.
func (e *OpError) WithStatus(code int) *OpError {
	e.Status = code
	return e
}

// StatusOf returns the status of the first OpError in err's chain that has one.
func StatusOf(err error) int {
	for err != nil {
		var op *OpError
		if !stderrors.As(err, &op) {
			return 0
		}
		if op.Status != 0 {
			return op.Status
		}
		err = op.Err
	}
	return 0
}
