package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error carries the repository classification of a Firestore failure.
type Error struct {
	op    string
	err   error
	class errorClass
}

type errorClass uint8

const (
	classOther errorClass = iota
	classNotFound
	classConflict
	classUnavailable
)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.class == classNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.class == classConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.class == classUnavailable }

// NotFound reports a missing document under op.
func NotFound(op, format string, args ...any) error {
	return &Error{op: op, err: fmt.Errorf(format, args...), class: classNotFound}
}

// Conflict reports a failed precondition checked inside a transaction, such as a stale
// compare-and-set or an exhausted counter.
func Conflict(op, format string, args ...any) error {
	return &Error{op: op, err: fmt.Errorf(format, args...), class: classConflict}
}

func classify(code codes.Code) errorClass {
	switch code {
	case codes.NotFound:
		return classNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return classConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return classUnavailable
	default:
		return classOther
	}
}

// WrapError annotates err with repository semantics. Context cancellation is returned as-is so
// callers can tell it apart from backend failures.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		if repoErr.op == "" {
			repoErr.op = op
		}
		return repoErr
	}
	return &Error{op: op, err: err, class: classify(status.Code(err))}
}
