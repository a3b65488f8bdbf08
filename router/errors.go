package router

import (
	"errors"
	"fmt"
)

var (
	ErrNoRoute         = errors.New("no route for channel")
	ErrNextCalledTwice = errors.New("next called more than once")
	ErrHandlerPanic    = errors.New("handler panicked")
)

// Failure ends a chain with an explicit failure payload. The payload is what
// the caller receives; Cause, when set, is kept for local diagnostics.
type Failure struct {
	Data  any
	Cause error
}

// Fail returns a Failure carrying data.
func Fail(data any) error {
	return &Failure{Data: data}
}

// Failf wraps cause with a failure payload.
func Failf(data any, cause error) error {
	return &Failure{Data: data, Cause: cause}
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("handler failed: %v", f.Cause)
	}
	return fmt.Sprintf("handler failed: %v", f.Data)
}

func (f *Failure) Unwrap() error {
	return f.Cause
}

func asFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
