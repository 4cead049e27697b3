// Package apperr implements the error taxonomy of spec.md §7: a small set
// of kinds, each carrying a client-safe message and an optionally wrapped
// internal cause. Orchestrator and tool code only ever returns *Error so
// the server layer can map kind to wire behavior without inspecting raw
// upstream errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one row of the error taxonomy table in spec.md §7.
type Kind string

const (
	KindValidation           Kind = "validation"
	KindToolTransient        Kind = "tool_transient"
	KindToolPermanent        Kind = "tool_permanent"
	KindUpstreamRateLimited  Kind = "upstream_rate_limited"
	KindUpstreamUnavailable  Kind = "upstream_unavailable"
	KindCancelled            Kind = "cancelled"
	KindInternal             Kind = "internal"
)

// Error is a client-safe, kind-tagged error.
type Error struct {
	Kind       Kind
	Message    string // short, non-leaking, shown to the client
	CorrelationID string
	// Code carries an upstream protocol error code (e.g. a JSON-RPC error
	// code) when the cause had one, kept separate from Message so call
	// sites can record it without leaking the upstream's full payload.
	Code  int
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a client-safe message,
// optionally wrapping an internal cause (never surfaced to the client).
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// Validation builds a validation-kind error.
func Validation(message string) *Error {
	return New(KindValidation, message, nil)
}

// ToolTransient builds a tool_transient-kind error.
func ToolTransient(message string, cause error) *Error {
	return New(KindToolTransient, message, cause)
}

// ToolPermanent builds a tool_permanent-kind error.
func ToolPermanent(message string, cause error) *Error {
	return New(KindToolPermanent, message, cause)
}

// UpstreamRateLimited builds an upstream_rate_limited-kind error.
func UpstreamRateLimited(message string, cause error) *Error {
	return New(KindUpstreamRateLimited, message, cause)
}

// UpstreamUnavailable builds an upstream_unavailable-kind error.
func UpstreamUnavailable(message string, cause error) *Error {
	return New(KindUpstreamUnavailable, message, cause)
}

// Cancelled builds a cancelled-kind error.
func Cancelled(message string) *Error {
	return New(KindCancelled, message, nil)
}

// Internal builds an internal-kind error and stamps it with a correlation
// id so the log line and the generic client-facing frame can be joined
// later (spec.md §7: "log with correlation id").
func Internal(message string, cause error, correlationID string) *Error {
	e := New(KindInternal, message, cause)
	e.CorrelationID = correlationID
	return e
}

// As extracts an *Error from err, following the standard Unwrap chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to KindInternal when err is
// not an *Error (e.g. an unexpected panic-recovered error).
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Persists reports whether an error of this kind should still result in
// history persistence of whatever assistant output was produced so far
// (spec.md §7 propagation policy).
func (k Kind) Persists() bool {
	switch k {
	case KindUpstreamUnavailable:
		return false
	case KindValidation:
		return false
	default:
		return true
	}
}
