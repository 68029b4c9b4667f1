package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opencode-ai/wflow/internal/manager"
	"github.com/opencode-ai/wflow/internal/workflow"
	"github.com/opencode-ai/wflow/pkg/types"
)

// OutputFormat selects how results and events are printed.
type OutputFormat string

const (
	// OutputText is human-readable progress plus the command on stdout.
	OutputText OutputFormat = "text"
	// OutputJSON is a single JSON result.
	OutputJSON OutputFormat = "json"
	// OutputJSONL streams journal events as JSON lines, then the result.
	OutputJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat parses a format name case-insensitively.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	case OutputJSONL:
		return OutputJSONL, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (must be text, json, or jsonl)", s)
	}
}

// ExitCode is the process exit status of a run.
type ExitCode int

const (
	ExitSuccess            ExitCode = 0
	ExitError              ExitCode = 1
	ExitEnumCommand        ExitCode = 2
	ExitUnboundPlaceholder ExitCode = 3
	ExitNotFound           ExitCode = 4
	ExitInvalidWorkflow    ExitCode = 5
	ExitChainRefused       ExitCode = 6
	ExitCancelled          ExitCode = 130
)

// ExitCodeFor maps a failure kind to its exit status.
func ExitCodeFor(kind types.FailureKind) ExitCode {
	switch kind {
	case types.FailureEnumCommand:
		return ExitEnumCommand
	case types.FailureUnboundPlaceholder:
		return ExitUnboundPlaceholder
	case types.FailureCancelled:
		return ExitCancelled
	default:
		return ExitError
	}
}

// Result is the printable outcome of `wflow run`.
type Result struct {
	SessionID   string                   `json:"session_id,omitempty"`
	WorkflowID  string                   `json:"workflow_id"`
	Status      string                   `json:"status"`
	Command     string                   `json:"command,omitempty"`
	Delivered   bool                     `json:"delivered"`
	Arguments   []types.ResolvedArgument `json:"arguments,omitempty"`
	Chain       []string                 `json:"chain,omitempty"`
	FailureKind types.FailureKind        `json:"failure_kind,omitempty"`
	Error       string                   `json:"error,omitempty"`
	DurationMS  int64                    `json:"duration_ms"`
	ExitCode    ExitCode                 `json:"exit_code"`
}

// Result statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusError     = "error"
)

// NewResult summarizes a manager run. When the selection chained, the
// command, delivery and exit code come from the last session in the chain.
func NewResult(workflowID string, out *manager.Outcome, err error, elapsed time.Duration) *Result {
	r := &Result{WorkflowID: workflowID, DurationMS: elapsed.Milliseconds()}

	if out == nil || out.Result == nil {
		r.Status = StatusError
		r.ExitCode = ExitError
		if err != nil {
			r.Error = err.Error()
		}
		var parseErr *workflow.ParseError
		var dupErr *workflow.DuplicateArgumentError
		switch {
		case errors.Is(err, manager.ErrWorkflowNotFound):
			r.ExitCode = ExitNotFound
		case errors.As(err, &parseErr), errors.As(err, &dupErr):
			r.ExitCode = ExitInvalidWorkflow
		}
		return r
	}

	r.SessionID = out.SessionID
	final := out
	for final.Chain != nil {
		final = final.Chain
		r.Chain = append(r.Chain, final.SessionID)
	}

	r.Arguments = final.Arguments
	r.Command = final.Command
	r.Delivered = final.Delivered

	switch {
	case final.State == types.StateFailed:
		r.Status = StatusFailed
		if final.Failure != nil {
			r.FailureKind = final.Failure.Kind
			r.Error = final.Failure.Error
		}
		r.ExitCode = ExitCodeFor(r.FailureKind)
	case final.ChainErr != nil:
		r.Status = StatusFailed
		r.Error = final.ChainErr.Error()
		r.ExitCode = ExitChainRefused
		if errors.Is(final.ChainErr, manager.ErrWorkflowNotFound) {
			r.ExitCode = ExitNotFound
		}
	default:
		r.Status = StatusCompleted
		r.ExitCode = ExitSuccess
	}
	return r
}
