package blamerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an engine failure so callers can decide how to react
// without string-matching messages.
type Kind int

const (
	// KindNotARepository - no enclosing git repository; fatal for the session
	KindNotARepository Kind = iota
	// KindToolExecutionFailed - git exited non-zero; recoverable, retryable
	KindToolExecutionFailed
	// KindPathNotFound - the file does not exist at the requested revision;
	// a normal outcome, not logged as an error
	KindPathNotFound
	// KindParseAnomaly - a blame report line did not match the expected grammar
	KindParseAnomaly
	// KindNavigationBoundary - back/forward attempted past the history edge;
	// informational only
	KindNavigationBoundary
)

// Error is a structured engine error with a kind, an optional wrapped
// cause, and any stderr git produced.
type Error struct {
	Kind    Kind
	Message string
	Stderr  []string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Message
	if len(e.Stderr) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Stderr, "; "))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by kind, so errors.Is(err, &Error{Kind: k}) works
// across wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func kindString(k Kind) string {
	switch k {
	case KindNotARepository:
		return "NOT_A_REPOSITORY"
	case KindToolExecutionFailed:
		return "TOOL_EXECUTION_FAILED"
	case KindPathNotFound:
		return "PATH_NOT_FOUND_AT_REVISION"
	case KindParseAnomaly:
		return "PARSE_ANOMALY"
	case KindNavigationBoundary:
		return "NAVIGATION_BOUNDARY"
	default:
		return "UNKNOWN"
	}
}

// String returns the wire-stable name of the kind.
func (k Kind) String() string { return kindString(k) }

// New creates an error with the given kind and message
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error with the given kind and a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a kind and message
func Wrap(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// Convenience constructors for the engine's taxonomy

// NotARepository creates the fatal no-repository error
func NotARepository(message string) *Error {
	return New(KindNotARepository, message)
}

// ToolExecutionFailed creates a non-zero-exit error carrying captured stderr
func ToolExecutionFailed(message string, stderr []string) *Error {
	return &Error{Kind: KindToolExecutionFailed, Message: message, Stderr: stderr}
}

// PathNotFound reports that a path does not exist at a revision
func PathNotFound(path, revision string) *Error {
	return Newf(KindPathNotFound, "%s does not exist at %s", path, revision)
}

// NavigationBoundary reports a back/forward attempt past the history edge
func NavigationBoundary(message string) *Error {
	return New(KindNavigationBoundary, message)
}

// KindOf returns the kind of an error, or ok=false for foreign errors.
// The error chain is searched so wrapping does not hide the kind.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is an *Error of the given kind
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
