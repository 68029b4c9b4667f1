package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/wflow/internal/clipboard"
	"github.com/opencode-ai/wflow/internal/command"
	"github.com/opencode-ai/wflow/internal/journal"
	"github.com/opencode-ai/wflow/internal/logging"
	"github.com/opencode-ai/wflow/internal/resolver"
	"github.com/opencode-ai/wflow/pkg/types"
)

var (
	ErrSessionTerminal = errors.New("session already finished")
	ErrSessionRunning  = errors.New("session is already running")
)

// PanicError is a panic recovered while a session was running.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("session panicked: %v", e.Value)
}

// Result is the outcome of a session run.
type Result struct {
	SessionID  string
	WorkflowID string
	State      types.State
	Arguments  []types.ResolvedArgument
	// Command is the finalized command. Empty unless Completed.
	Command string
	// Delivered is false when the clipboard could not take the command; the
	// caller then shows Command instead.
	Delivered bool
	// Failure is set when State is Failed.
	Failure *types.ResolutionFailedData
	Err     error
}

// Processor drives a single session.
type Processor struct {
	id       string
	wf       *types.Workflow
	journal  journal.Journal
	resolver *resolver.Resolver
	sink     clipboard.Sink
	parent   string
	depth    int
	env      Environment
	log      zerolog.Logger

	mu       sync.Mutex
	state    types.State
	resolved []types.ResolvedArgument
	command  string
	started  bool
}

// Environment is recorded in the SessionStarted event.
type Environment struct {
	User      string
	Hostname  string
	Directory string
}

// CurrentEnvironment reads the user, host and working directory of this
// process. Lookups that fail are left empty.
func CurrentEnvironment() Environment {
	var env Environment
	if u, err := user.Current(); err == nil {
		env.User = u.Username
	}
	env.Hostname, _ = os.Hostname()
	env.Directory, _ = os.Getwd()
	return env
}

// Option configures a Processor.
type Option func(*Processor)

// WithID sets the session id instead of generating one.
func WithID(id string) Option {
	return func(p *Processor) { p.id = id }
}

// WithParent marks the session as chained from parent at the given depth.
func WithParent(parent string, depth int) Option {
	return func(p *Processor) {
		p.parent = parent
		p.depth = depth
	}
}

// WithEnvironment overrides the recorded environment.
func WithEnvironment(env Environment) Option {
	return func(p *Processor) { p.env = env }
}

// NewID returns a fresh session id.
func NewID() string {
	return "ses_" + ulid.Make().String()
}

// New creates an idle session for wf.
func New(wf *types.Workflow, j journal.Journal, r *resolver.Resolver, sink clipboard.Sink, opts ...Option) *Processor {
	p := &Processor{
		wf:       wf,
		journal:  j,
		resolver: r,
		sink:     sink,
		state:    types.StateIdle,
		env:      CurrentEnvironment(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.id == "" {
		p.id = NewID()
	}
	if p.sink == nil {
		p.sink = clipboard.Disabled{}
	}
	p.log = logging.ForSession(p.id, wf.ID)
	return p
}

// ID returns the session id.
func (p *Processor) ID() string { return p.id }

// Workflow returns the workflow being resolved.
func (p *Processor) Workflow() *types.Workflow { return p.wf }

// Parent returns the chaining parent session id, if any.
func (p *Processor) Parent() string { return p.parent }

// Depth returns the chain depth; top-level sessions are 0.
func (p *Processor) Depth() int { return p.depth }

// State returns the current state.
func (p *Processor) State() types.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Resolved returns a copy of the arguments resolved so far.
func (p *Processor) Resolved() []types.ResolvedArgument {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.ResolvedArgument, len(p.resolved))
	copy(out, p.resolved)
	return out
}

// Run resolves every argument, finalizes the command and hands it to the
// clipboard. A failed session returns its Result together with the cause.
func (p *Processor) Run(ctx context.Context) (res *Result, err error) {
	p.mu.Lock()
	switch {
	case p.state.Terminal():
		p.mu.Unlock()
		return nil, ErrSessionTerminal
	case p.started:
		p.mu.Unlock()
		return nil, ErrSessionRunning
	}
	p.started = true
	p.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("session panicked")
			// The terminal event is already journaled; appending a failure
			// after it would corrupt the log.
			switch p.State() {
			case types.StateCompleted:
				res, err = p.completed(false), nil
				return
			case types.StateFailed:
				res = &Result{
					SessionID:  p.id,
					WorkflowID: p.wf.ID,
					State:      types.StateFailed,
					Arguments:  p.Resolved(),
					Err:        &PanicError{Value: r},
				}
				err = res.Err
				return
			}
			res, err = p.fail(ctx, types.FailureInternal, -1, "", &PanicError{Value: r})
		}
	}()

	return p.run(ctx)
}

func (p *Processor) run(ctx context.Context) (*Result, error) {
	names := make([]string, len(p.wf.Arguments))
	for i, arg := range p.wf.Arguments {
		names[i] = arg.Name
	}
	_, err := p.append(ctx, types.NewSessionStarted(p.id, types.SessionStartedData{
		WorkflowID:    p.wf.ID,
		WorkflowName:  p.wf.Name,
		Template:      p.wf.Command,
		Arguments:     names,
		ParentSession: p.parent,
		Depth:         p.depth,
		User:          p.env.User,
		Hostname:      p.env.Hostname,
		Directory:     p.env.Directory,
	}))
	if err != nil {
		return p.fail(ctx, types.FailureInternal, -1, "", err)
	}
	p.setState(advance(0, len(p.wf.Arguments)))
	p.log.Debug().Int("arguments", len(names)).Msg("session started")

	_, err = p.resolver.Resolve(ctx, p.wf, observer{p})
	if err != nil {
		index, name := -1, ""
		var step *resolver.StepError
		if errors.As(err, &step) {
			index, name = step.Index, step.Argument
		}
		return p.fail(ctx, FailureKindOf(err), index, name, err)
	}

	values := make(map[string]string, len(p.wf.Arguments))
	for _, arg := range p.Resolved() {
		values[arg.Name] = arg.Value
	}
	cmd, err := command.Render(p.wf.Command, values)
	if err != nil {
		return p.fail(ctx, FailureKindOf(err), -1, "", err)
	}
	if _, err := p.append(ctx, types.NewCommandFinalized(p.id, cmd)); err != nil {
		return p.fail(ctx, types.FailureInternal, -1, "", err)
	}
	p.mu.Lock()
	p.command = cmd
	p.mu.Unlock()
	p.setState(types.StateCompleted)

	delivered := p.deliver(cmd)
	p.log.Info().Bool("delivered", delivered).Msg("command finalized")

	return p.completed(delivered), nil
}

func (p *Processor) completed(delivered bool) *Result {
	p.mu.Lock()
	cmd := p.command
	p.mu.Unlock()
	return &Result{
		SessionID:  p.id,
		WorkflowID: p.wf.ID,
		State:      types.StateCompleted,
		Arguments:  p.Resolved(),
		Command:    cmd,
		Delivered:  delivered,
	}
}

// deliver hands cmd to the clipboard sink. It is only reached once per
// session, on the transition to Completed.
func (p *Processor) deliver(cmd string) bool {
	err := p.sink.Write(cmd)
	if err == nil {
		return true
	}
	if errors.Is(err, clipboard.ErrUnavailable) {
		p.log.Warn().Err(err).Msg("clipboard unavailable")
	} else {
		p.log.Error().Err(err).Msg("clipboard write failed")
	}
	return false
}

// fail journals a ResolutionFailed event and moves the session to Failed.
func (p *Processor) fail(ctx context.Context, kind types.FailureKind, index int, argument string, cause error) (*Result, error) {
	data := types.ResolutionFailedData{
		Kind:     kind,
		Index:    index,
		Argument: argument,
		Error:    cause.Error(),
	}
	if _, err := p.append(ctx, types.NewResolutionFailed(p.id, data)); err != nil {
		p.log.Error().Err(err).Msg("failed to journal failure")
	}
	p.setState(types.StateFailed)
	p.log.Warn().Str("kind", string(kind)).Err(cause).Msg("session failed")

	return &Result{
		SessionID:  p.id,
		WorkflowID: p.wf.ID,
		State:      types.StateFailed,
		Arguments:  p.Resolved(),
		Failure:    &data,
		Err:        cause,
	}, cause
}

// append writes e to the journal. The write is detached from ctx
// cancellation so a cancelled session still records why it stopped.
func (p *Processor) append(ctx context.Context, e types.Event) (types.Event, error) {
	stored, err := p.journal.Append(context.WithoutCancel(ctx), e)
	if err != nil {
		return stored, fmt.Errorf("journal %s: %w", e.Kind, err)
	}
	return stored, nil
}

func (p *Processor) setState(s types.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

func advance(next, total int) types.State {
	if next >= total {
		return types.StateFinalizing
	}
	return types.Resolving(next)
}

// FailureKindOf classifies a session-ending error.
func FailureKindOf(err error) types.FailureKind {
	var (
		enumErr   *resolver.EnumCommandError
		unbound   *command.UnboundPlaceholderError
		cancelled *resolver.CancelledError
	)
	switch {
	case errors.As(err, &enumErr):
		return types.FailureEnumCommand
	case errors.As(err, &unbound):
		return types.FailureUnboundPlaceholder
	case errors.As(err, &cancelled), errors.Is(err, context.Canceled):
		return types.FailureCancelled
	default:
		return types.FailureInternal
	}
}

// observer journals resolver progress and advances the state.
type observer struct {
	p *Processor
}

func (o observer) Prompted(ctx context.Context, data types.ArgumentPromptedData) error {
	_, err := o.p.append(ctx, types.NewArgumentPrompted(o.p.id, data))
	return err
}

func (o observer) EnumExecuted(ctx context.Context, data types.EnumCommandExecutedData) error {
	_, err := o.p.append(ctx, types.NewEnumCommandExecuted(o.p.id, data))
	return err
}

func (o observer) Resolved(ctx context.Context, data types.ArgumentResolvedData) error {
	if _, err := o.p.append(ctx, types.NewArgumentResolved(o.p.id, data)); err != nil {
		return err
	}

	p := o.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resolved = append(p.resolved, types.ResolvedArgument{Name: data.Name, Value: data.Value})
	p.state = advance(data.Index+1, len(p.wf.Arguments))
	return nil
}
