// Package apperr defines the error kinds surfaced by the engine and the HTTP
// status each one maps to.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names a class of failure. The string value is what clients see in the
// "code" field of an error response.
type Kind string

const (
	KindInvalidName            Kind = "InvalidName"
	KindInvalidOracleResponse  Kind = "InvalidOracleResponse"
	KindInvalidRequest         Kind = "InvalidRequest"
	KindInvalidSolutionPath    Kind = "InvalidSolutionPath"
	KindElementNotInBank       Kind = "ElementNotInBank"
	KindUnauthenticated        Kind = "Unauthenticated"
	KindPermissionDenied       Kind = "PermissionDenied"
	KindNotFound               Kind = "NotFound"
	KindDuplicateDate          Kind = "DuplicateDate"
	KindConflictingCombination Kind = "ConflictingCombination"
	KindSessionFinished        Kind = "SessionFinished"
	KindPathUnreachable        Kind = "PathUnreachable"
	KindBusyTryAgain           Kind = "BusyTryAgain"
	KindOracleUnavailable      Kind = "OracleUnavailable"
	KindInternal               Kind = "Internal"
)

// Sentinels for errors.Is. They carry no cause.
var (
	ErrInvalidName            = &Error{Kind: KindInvalidName}
	ErrInvalidOracleResponse  = &Error{Kind: KindInvalidOracleResponse}
	ErrInvalidRequest         = &Error{Kind: KindInvalidRequest}
	ErrInvalidSolutionPath    = &Error{Kind: KindInvalidSolutionPath}
	ErrElementNotInBank       = &Error{Kind: KindElementNotInBank}
	ErrUnauthenticated        = &Error{Kind: KindUnauthenticated}
	ErrPermissionDenied       = &Error{Kind: KindPermissionDenied}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrDuplicateDate          = &Error{Kind: KindDuplicateDate}
	ErrConflictingCombination = &Error{Kind: KindConflictingCombination}
	ErrSessionFinished        = &Error{Kind: KindSessionFinished}
	ErrPathUnreachable        = &Error{Kind: KindPathUnreachable}
	ErrBusyTryAgain           = &Error{Kind: KindBusyTryAgain}
	ErrOracleUnavailable      = &Error{Kind: KindOracleUnavailable}
	ErrInternal               = &Error{Kind: KindInternal}
)

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Err.Error())
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so wrapped causes still satisfy
// errors.Is(err, apperr.ErrOracleUnavailable).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the outermost kind in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return KindInternal
}

// Message returns the human-readable part of err without the kind prefix.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e != nil && e.Err != nil {
		return e.Err.Error()
	}
	if e != nil {
		return string(e.Kind)
	}
	return err.Error()
}

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case KindInvalidName, KindInvalidOracleResponse, KindInvalidRequest,
		KindInvalidSolutionPath, KindElementNotInBank:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindDuplicateDate, KindConflictingCombination, KindSessionFinished:
		return http.StatusConflict
	case KindPathUnreachable:
		return http.StatusUnprocessableEntity
	case KindBusyTryAgain:
		return http.StatusLocked
	case KindOracleUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
