// Package apperr defines the error taxonomy surfaced to users.
//
// Every failure that crosses the workflow boundary is an *E carrying a Kind.
// Front ends switch on the Kind to choose a banner; the Message is shown
// verbatim and the wrapped Err is kept for logs and errors.Is checks.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// AuthError indicates the LLM provider rejected the key or could not be reached.
	AuthError Kind = "auth_error"
	// ConnectionError indicates bad DB credentials or an unreachable server.
	ConnectionError Kind = "connection_error"
	// ProtocolError indicates the bridge subprocess misbehaved.
	ProtocolError Kind = "protocol_error"
	// EmptyInput indicates a required field was missing before an action.
	EmptyInput Kind = "empty_input"
	// ParseError indicates result text was not valid row JSON. Recovered locally.
	ParseError Kind = "parse_error"
	// Locked indicates a privileged action was attempted before both validations.
	Locked Kind = "locked"
	// Busy indicates another action is already running in the same session.
	Busy Kind = "busy"
	// Internal is anything unexpected.
	Internal Kind = "internal"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

// Wrap returns an *E of the given kind around err.
func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }

// New returns an *E without an underlying cause.
func New(kind Kind, msg string) *E { return &E{Kind: kind, Message: msg} }

// KindOf returns the Kind of the first *E in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *E
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage renders err as the banner text shown to the user.
func UserMessage(err error) string {
	var e *E
	if !errors.As(err, &e) {
		return "❌ Unexpected error: " + err.Error()
	}
	switch e.Kind {
	case AuthError:
		if errors.Is(e.Err, context.DeadlineExceeded) {
			return "⏱️ LLM provider timed out: " + e.Message
		}
		return "❌ Invalid API key: " + e.Message
	case ConnectionError:
		return "❌ Database connection failed: " + e.Message
	case ProtocolError:
		return "❌ SQL bridge error: " + e.Message
	case EmptyInput:
		return "⚠️ " + e.Message
	case Locked:
		return "🔒 " + e.Message
	case Busy:
		return "⏳ " + e.Message
	default:
		return "❌ " + e.Message
	}
}
