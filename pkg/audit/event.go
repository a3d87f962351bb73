// Package audit provides an append-only, queryable log of module lifecycle
// events: activations, deactivations, reloads, and appdata clears.
package audit

import (
	"fmt"
	"time"
)

// Event records one lifecycle action taken against a module handle.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Module    string        `json:"module"`
	Base      string        `json:"base"`
	Operation EventType     `json:"operation"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Remote    bool          `json:"remote"`
}

// EventType categorizes lifecycle audit events.
type EventType string

const (
	EventActivate     EventType = "activate"
	EventDeactivate   EventType = "deactivate"
	EventReload       EventType = "reload"
	EventClearAppdata EventType = "clear_appdata"
	EventLock         EventType = "lock"
	EventUnlock       EventType = "unlock"
)

// Severity indicates the importance of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Filter defines criteria for querying audit events.
type Filter struct {
	Module      string
	Base        string
	Operation   EventType
	StartTime   time.Time
	EndTime     time.Time
	SuccessOnly bool
	FailureOnly bool
	Limit       int
	Offset      int
}

// NewEvent creates a new audit event for the given module and operation.
func NewEvent(module, base string, op EventType) *Event {
	return &Event{
		ID:        generateID(),
		Timestamp: time.Now(),
		Module:    module,
		Base:      base,
		Operation: op,
	}
}

func (e *Event) WithSuccess() *Event {
	e.Success = true
	return e
}

func (e *Event) WithError(err error) *Event {
	e.Success = false
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func (e *Event) WithDuration(d time.Duration) *Event {
	e.Duration = d
	return e
}

func (e *Event) WithRemote(remote bool) *Event {
	e.Remote = remote
	return e
}

func generateID() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
