package journal

import (
	"errors"
	"fmt"

	"github.com/opencode-ai/wflow/internal/command"
	"github.com/opencode-ai/wflow/pkg/types"
)

var (
	// ErrEmptyLog is returned when a session has no events.
	ErrEmptyLog = errors.New("journal: no events for session")
)

// CorruptLogError reports an event sequence that a session could not have
// produced.
type CorruptLogError struct {
	Sequence int64
	Reason   string
}

func (e *CorruptLogError) Error() string {
	return fmt.Sprintf("journal: corrupt log at event %d: %s", e.Sequence, e.Reason)
}

// Outcome is what a session's log says happened, reconstructed without
// re-running prompts or sub-commands.
type Outcome struct {
	SessionID     string
	WorkflowID    string
	WorkflowName  string
	Template      string
	ParentSession string
	Depth         int

	State     types.State
	Arguments []types.ResolvedArgument

	// Command is the recorded finalized command (Completed only).
	Command string
	// Rendered is the template re-rendered from the recorded arguments,
	// available once every argument is resolved.
	Rendered string
	// Failure is the recorded failure (Failed only).
	Failure *types.ResolutionFailedData

	Prompts      int
	EnumCommands int
}

// Values returns the resolved arguments as a name to value map.
func (o *Outcome) Values() map[string]string {
	values := make(map[string]string, len(o.Arguments))
	for _, arg := range o.Arguments {
		values[arg.Name] = arg.Value
	}
	return values
}

// Verified reports whether the re-rendered command matches the recorded one.
func (o *Outcome) Verified() bool {
	return o.State == types.StateCompleted && o.Command == o.Rendered
}

// Replay folds a session's events, in append order, into its outcome.
// A log that stops before a terminal event yields the last reached state.
func Replay(events []types.Event) (*Outcome, error) {
	if len(events) == 0 {
		return nil, ErrEmptyLog
	}

	first := events[0]
	if first.Kind != types.EventSessionStarted || first.Started == nil {
		return nil, &CorruptLogError{Sequence: first.Sequence, Reason: "log does not begin with session.started"}
	}

	o := &Outcome{
		SessionID:     first.SessionID,
		WorkflowID:    first.Started.WorkflowID,
		WorkflowName:  first.Started.WorkflowName,
		Template:      first.Started.Template,
		ParentSession: first.Started.ParentSession,
		Depth:         first.Started.Depth,
	}
	argNames := first.Started.Arguments
	o.State = advance(0, len(argNames))

	var lastSeq = first.Sequence
	for _, e := range events[1:] {
		if e.SessionID != o.SessionID {
			return nil, &CorruptLogError{Sequence: e.Sequence, Reason: "event from session " + e.SessionID}
		}
		if e.Sequence <= lastSeq {
			return nil, &CorruptLogError{Sequence: e.Sequence, Reason: "sequence is not increasing"}
		}
		lastSeq = e.Sequence
		if o.State.Terminal() {
			return nil, &CorruptLogError{Sequence: e.Sequence, Reason: "event after terminal state"}
		}

		switch e.Kind {
		case types.EventArgumentPrompted:
			o.Prompts++
		case types.EventEnumCommandExecuted:
			o.EnumCommands++
		case types.EventArgumentResolved:
			r := e.Resolved
			if r == nil || o.State.Phase != types.PhaseResolving || r.Index != o.State.Index {
				return nil, &CorruptLogError{Sequence: e.Sequence, Reason: "argument resolved out of order"}
			}
			if r.Name != argNames[r.Index] {
				return nil, &CorruptLogError{Sequence: e.Sequence, Reason: "resolved argument " + r.Name + " was not declared at that position"}
			}
			o.Arguments = append(o.Arguments, types.ResolvedArgument{Name: r.Name, Value: r.Value})
			o.State = advance(r.Index+1, len(argNames))
		case types.EventResolutionFailed:
			if e.Failed == nil {
				return nil, &CorruptLogError{Sequence: e.Sequence, Reason: "failure without payload"}
			}
			o.Failure = e.Failed
			o.State = types.StateFailed
		case types.EventCommandFinalized:
			if e.Finalized == nil || o.State != types.StateFinalizing {
				return nil, &CorruptLogError{Sequence: e.Sequence, Reason: "command finalized before all arguments resolved"}
			}
			o.Command = e.Finalized.Command
			o.State = types.StateCompleted
		default:
			return nil, &CorruptLogError{Sequence: e.Sequence, Reason: "unexpected " + string(e.Kind)}
		}
	}

	if o.State == types.StateFinalizing || o.State == types.StateCompleted {
		rendered, err := command.Render(o.Template, o.Values())
		if err == nil {
			o.Rendered = rendered
		}
	}
	return o, nil
}

func advance(next, total int) types.State {
	if next >= total {
		return types.StateFinalizing
	}
	return types.Resolving(next)
}
