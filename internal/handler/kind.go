// ABOUTME: Error kinds used to route handler failures to exception handlers
// ABOUTME: Kinds form a lineage so lookups fall back to broader kinds

package handler

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a handler failure.
type Kind int

const (
	// KindAny catches every failure.
	KindAny Kind = iota
	// KindFailure is any ordinary error.
	KindFailure
	// KindAPI is a non-zero status from a platform API.
	KindAPI
	// KindTimeout is a handler that exceeded its deadline.
	KindTimeout
	// KindCanceled is a handler whose context was cancelled.
	KindCanceled
	// KindPanic is a recovered panic.
	KindPanic
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindFailure:
		return "failure"
	case KindAPI:
		return "api"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	case KindPanic:
		return "panic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Parent returns the next broader kind. KindAny has no parent.
func (k Kind) Parent() (Kind, bool) {
	switch k {
	case KindAny:
		return KindAny, false
	case KindAPI, KindTimeout, KindCanceled:
		return KindFailure, true
	default:
		return KindAny, true
	}
}

// apiCoder is implemented by platform API errors.
type apiCoder interface {
	APICode() int
}

// Classify returns the most specific kind for err.
func Classify(err error) Kind {
	var pe *PanicError
	var api apiCoder
	switch {
	case err == nil:
		return KindAny
	case errors.As(err, &pe):
		return KindPanic
	case errors.As(err, &api):
		return KindAPI
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindFailure
	}
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
