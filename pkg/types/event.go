package types

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventKind tags a journal entry.
type EventKind string

const (
	EventSessionStarted      EventKind = "session.started"
	EventArgumentPrompted    EventKind = "argument.prompted"
	EventArgumentResolved    EventKind = "argument.resolved"
	EventEnumCommandExecuted EventKind = "enum.executed"
	EventResolutionFailed    EventKind = "resolution.failed"
	EventCommandFinalized    EventKind = "command.finalized"
)

// FailureKind classifies why a session failed.
type FailureKind string

const (
	FailureEnumCommand        FailureKind = "EnumCommandFailed"
	FailureUnboundPlaceholder FailureKind = "UnboundPlaceholder"
	FailureCancelled          FailureKind = "Cancelled"
	FailureInternal           FailureKind = "Internal"
)

// Event is an immutable journal entry. Exactly one payload field is set,
// matching Kind. Sequence is assigned by the journal on append and is
// strictly increasing within a session.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionID"`
	Sequence  int64     `json:"sequence"`
	Kind      EventKind `json:"kind"`
	Time      int64     `json:"time"`

	Started      *SessionStartedData      `json:"started,omitempty"`
	Prompted     *ArgumentPromptedData    `json:"prompted,omitempty"`
	Resolved     *ArgumentResolvedData    `json:"resolved,omitempty"`
	EnumExecuted *EnumCommandExecutedData `json:"enumExecuted,omitempty"`
	Failed       *ResolutionFailedData    `json:"failed,omitempty"`
	Finalized    *CommandFinalizedData    `json:"finalized,omitempty"`
}

// SessionStartedData records everything replay needs about the workflow.
type SessionStartedData struct {
	WorkflowID    string   `json:"workflowID"`
	WorkflowName  string   `json:"workflowName"`
	Template      string   `json:"template"`
	Arguments     []string `json:"arguments"`
	ParentSession string   `json:"parentSession,omitempty"`
	Depth         int      `json:"depth"`
	User          string   `json:"user,omitempty"`
	Hostname      string   `json:"hostname,omitempty"`
	Directory     string   `json:"directory,omitempty"`
}

// ArgumentPromptedData describes a prompt shown to the user.
type ArgumentPromptedData struct {
	Index   int          `json:"index"`
	Name    string       `json:"name"`
	Type    ArgumentType `json:"type"`
	Default *string      `json:"default,omitempty"`
	Options []string     `json:"options,omitempty"`
	Attempt int          `json:"attempt"`
}

// ArgumentResolvedData records an accepted argument value.
type ArgumentResolvedData struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Value       string `json:"value"`
	FromDefault bool   `json:"fromDefault,omitempty"`
}

// EnumCommandExecutedData records a dynamic enum sub-command run.
type EnumCommandExecutedData struct {
	Index    int      `json:"index"`
	Name     string   `json:"name"`
	Command  string   `json:"command"`
	ExitCode int      `json:"exitCode"`
	Options  []string `json:"options,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
	Duration int64    `json:"durationMs"`
}

// ResolutionFailedData records the point and cause of a failure.
// Index is -1 when the failure happened while finalizing.
type ResolutionFailedData struct {
	Kind     FailureKind `json:"kind"`
	Index    int         `json:"index"`
	Argument string      `json:"argument,omitempty"`
	Error    string      `json:"error"`
}

// CommandFinalizedData carries the fully substituted command.
type CommandFinalizedData struct {
	Command string `json:"command"`
}

func newEvent(sessionID string, kind EventKind) Event {
	return Event{
		ID:        ulid.Make().String(),
		SessionID: sessionID,
		Kind:      kind,
		Time:      time.Now().UnixMilli(),
	}
}

// NewSessionStarted creates a SessionStarted event.
func NewSessionStarted(sessionID string, data SessionStartedData) Event {
	e := newEvent(sessionID, EventSessionStarted)
	e.Started = &data
	return e
}

// NewArgumentPrompted creates an ArgumentPrompted event.
func NewArgumentPrompted(sessionID string, data ArgumentPromptedData) Event {
	e := newEvent(sessionID, EventArgumentPrompted)
	e.Prompted = &data
	return e
}

// NewArgumentResolved creates an ArgumentResolved event.
func NewArgumentResolved(sessionID string, data ArgumentResolvedData) Event {
	e := newEvent(sessionID, EventArgumentResolved)
	e.Resolved = &data
	return e
}

// NewEnumCommandExecuted creates an EnumCommandExecuted event.
func NewEnumCommandExecuted(sessionID string, data EnumCommandExecutedData) Event {
	e := newEvent(sessionID, EventEnumCommandExecuted)
	e.EnumExecuted = &data
	return e
}

// NewResolutionFailed creates a ResolutionFailed event.
func NewResolutionFailed(sessionID string, data ResolutionFailedData) Event {
	e := newEvent(sessionID, EventResolutionFailed)
	e.Failed = &data
	return e
}

// NewCommandFinalized creates a CommandFinalized event.
func NewCommandFinalized(sessionID string, command string) Event {
	e := newEvent(sessionID, EventCommandFinalized)
	e.Finalized = &CommandFinalizedData{Command: command}
	return e
}
