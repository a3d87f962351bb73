// Package errkind declares the error kinds shared across the orchestrator
// core: configuration validation, module lifecycle, thread management, and
// the remote transport all report failures through these sentinels so
// callers can classify an error with errors.Is/errors.As regardless of
// which component raised it.
package errkind

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel kinds. Components wrap one of these in a typed error so callers
// can branch on kind via errors.Is without depending on the component's
// concrete error type.
var (
	Duplicate  = errors.New("duplicate name")
	NotFound   = errors.New("not found")
	Timeout    = errors.New("timeout exceeded")
	Validation = errors.New("validation failed")
	State      = errors.New("invalid state transition")
	Connection = errors.New("connector resolution failed")
	Config     = errors.New("required option missing")
	Remote     = errors.New("remote peer reported an error")
	IO         = errors.New("i/o failure")
	Parse      = errors.New("malformed document")
	Permission = errors.New("permission denied")
)

// ParseError wraps a document-parsing failure (malformed YAML, wrong
// top-level shape) with the path that triggered it, distinct from
// ValidationError which reports a syntactically valid document that fails
// schema checks.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse error: %v", e.Err)
	}
	return fmt.Sprintf("parse error in %q: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return Parse }

// PermissionError reports a remote request for a module that is
// unconfigured, not remote-shareable, or otherwise off limits to the
// requesting peer.
type PermissionError struct {
	Module string
	Reason string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("module %q: %s", e.Module, e.Reason)
}

func (e *PermissionError) Unwrap() error { return Permission }

// ValidationError accumulates every schema violation found in a single
// pass rather than failing on the first one.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 1 {
		return "validation failed: " + e.Messages[0]
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(e.Messages, "\n  - "))
}

func (e *ValidationError) Unwrap() error { return Validation }

// NewValidation builds a ValidationError from one or more messages.
func NewValidation(messages ...string) *ValidationError {
	return &ValidationError{Messages: messages}
}

// Builder accumulates validation failures across a multi-field check.
type Builder struct {
	messages []string
}

func (b *Builder) Require(condition bool, message string) *Builder {
	if !condition {
		b.messages = append(b.messages, message)
	}
	return b
}

func (b *Builder) Addf(format string, args ...interface{}) *Builder {
	b.messages = append(b.messages, fmt.Sprintf(format, args...))
	return b
}

func (b *Builder) HasErrors() bool { return len(b.messages) > 0 }

func (b *Builder) Build() error {
	if len(b.messages) == 0 {
		return nil
	}
	return &ValidationError{Messages: b.messages}
}

// StateError reports that the FSM rejected an event or that an operation
// required a module to be in a different ModuleState.
type StateError struct {
	Module string
	From   string
	Event  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("module %q: event %q not valid from state %q", e.Module, e.Event, e.From)
}

func (e *StateError) Unwrap() error { return State }

// ConnectionError reports a mandatory connector with no resolvable target,
// or an activation that would close a dependency cycle.
type ConnectionError struct {
	Module    string
	Connector string
	Reason    string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("module %q: connector %q: %s", e.Module, e.Connector, e.Reason)
}

func (e *ConnectionError) Unwrap() error { return Connection }

// ConfigError reports a mandatory option absent from a module descriptor.
type ConfigError struct {
	Module string
	Option string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("module %q: required option %q not configured", e.Module, e.Option)
}

func (e *ConfigError) Unwrap() error { return Config }

// RemoteError wraps a peer-reported failure, carrying the kind the peer
// originally raised so the caller can still classify it.
type RemoteError struct {
	Peer    string
	Kind    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s: %s", e.Peer, e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() error { return Remote }

// IOError wraps a filesystem read/write/rename failure with the path that
// triggered it.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io failure at %q: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, errkind.IO) match any *IOError, since *IOError
// unwraps to the underlying os error rather than the IO sentinel.
func (e *IOError) Is(target error) bool { return target == IO }
