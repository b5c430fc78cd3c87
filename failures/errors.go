package failures

import (
	"errors"
	"fmt"
)

// Kind classifies why a job failed.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnsupported  Kind = "unsupported"
	KindToolNotFound Kind = "tool-not-found"
	KindToolFailed   Kind = "tool-failed"
	KindToolTimeout  Kind = "tool-timeout"
	KindDecode       Kind = "decode"
	KindIO           Kind = "io"
	KindInternal     Kind = "internal"
)

// Error is a failure with a kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with a kind. A nil err yields nil.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
