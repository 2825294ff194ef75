// Package apperr classifies errors into the kinds the core surfaces to its
// callers: Validation, Conflict, NotFound, Unauthorized, InvariantBreak,
// UpstreamTransient, InternalFatal. Handlers map Kind to an HTTP status;
// nothing else should inspect error strings.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	Unknown Kind = iota
	Validation
	Conflict
	NotFound
	Unauthorized
	InvariantBreak
	UpstreamTransient
	InternalFatal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Unauthorized:
		return "unauthorized"
	case InvariantBreak:
		return "invariant_break"
	case UpstreamTransient:
		return "upstream_transient"
	case InternalFatal:
		return "internal_fatal"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func Validationf(format string, args ...any) error {
	return New(Validation, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return New(Conflict, fmt.Sprintf(format, args...))
}

func NotFoundf(format string, args ...any) error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Invariantf(format string, args ...any) error {
	return New(InvariantBreak, fmt.Sprintf(format, args...))
}

// KindOf returns the classified kind of err, or Unknown if err was not
// produced by this package (callers should treat Unknown as InternalFatal
// for HTTP status purposes).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
