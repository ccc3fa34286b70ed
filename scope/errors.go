package scope

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"
)

var (
	// ErrCancelled matches every cancellation signal, including timeouts.
	ErrCancelled = errors.New("scope: job was cancelled")

	// ErrJoinCycle is returned when a job is joined from inside its own subtree.
	ErrJoinCycle = errors.New("scope: job joined from inside its own subtree")

	// ErrNestedRunBlocking is returned when RunBlocking is called from a job body.
	ErrNestedRunBlocking = errors.New("scope: RunBlocking called from inside a job")

	errParentDone = errors.New("parent job already completed")
)

// CancellationError is the cooperative cancellation signal. It is expected
// during normal shutdown and is never reported as an application failure.
type CancellationError struct {
	Cause error
}

func (e *CancellationError) Error() string {
	if e.Cause == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCancelled, e.Cause)
}

func (e *CancellationError) Unwrap() error { return e.Cause }

func (e *CancellationError) Is(target error) bool { return target == ErrCancelled }

// TimeoutError is the cancellation cause used by WithTimeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scope: timed out waiting for %v", e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrCancelled || target == context.DeadlineExceeded
}

// IsCancellation reports whether err is a cancellation signal rather than a
// failure of the body that returned it.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// asCancellation converts cause into a cancellation signal, keeping it as is
// when it already is one of ours.
func asCancellation(cause error) error {
	var ce *CancellationError
	var te *TimeoutError
	if errors.As(cause, &ce) || errors.As(cause, &te) {
		return cause
	}
	return &CancellationError{Cause: cause}
}

// cancellationOf returns the signal for a done context.
func cancellationOf(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = ctx.Err()
	}
	return asCancellation(cause)
}

// PanicError wraps a recovered panic value together with the goroutine
// stack trace captured at the point of the panic.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

func newPanicError(v any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{Value: v, Stack: string(buf[:n])}
}
