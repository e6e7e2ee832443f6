package enroll

import (
	"errors"
	"fmt"
)

// Kind classifies enrollment failures.
type Kind int

const (
	// KindUnexpected marks programmer or environment bugs: nil
	// arguments, states that should be unreachable. Non-recoverable.
	KindUnexpected Kind = iota + 1

	// KindFail is a generic failure that fits no other category,
	// such as keytab I/O problems.
	KindFail

	// KindDirectory means the directory or the KDC said no, or the
	// data it returned is malformed.
	KindDirectory

	// KindConfig means caller-provided or discovered configuration is
	// internally inconsistent: invalid OU, unparseable service
	// principal, missing host name.
	KindConfig

	// KindCredentials means the caller's credentials are invalid or
	// lack the necessary access rights.
	KindCredentials
)

// String returns the short name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnexpected:
		return "unexpected"
	case KindFail:
		return "fail"
	case KindDirectory:
		return "directory"
	case KindConfig:
		return "config"
	case KindCredentials:
		return "credentials"
	default:
		return "unknown"
	}
}

// Error is an enrollment failure with its classification.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is allows errors.Is comparisons against a bare-kind error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind && other.msg == ""
	}
	return false
}

// ErrKind builds a bare error of the given kind, for use with errors.Is.
func ErrKind(kind Kind) error {
	return &Error{Kind: kind}
}

// KindOf extracts the kind from an error, or 0 for nil/foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{
		Kind:  kind,
		msg:   fmt.Sprintf(format, args...),
		cause: cause,
	}
}

func configError(cause error, format string, args ...any) *Error {
	return newError(KindConfig, cause, format, args...)
}

func directoryError(cause error, format string, args ...any) *Error {
	return newError(KindDirectory, cause, format, args...)
}

func credentialsError(cause error, format string, args ...any) *Error {
	return newError(KindCredentials, cause, format, args...)
}

func failError(cause error, format string, args ...any) *Error {
	return newError(KindFail, cause, format, args...)
}

func unexpectedError(cause error, format string, args ...any) *Error {
	return newError(KindUnexpected, cause, format, args...)
}
