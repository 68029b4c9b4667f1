// Package manager supervises sessions: it spawns one session per workflow
// selection, follows chain references, and keeps one session's failure
// from reaching any other.
package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/opencode-ai/wflow/internal/clipboard"
	"github.com/opencode-ai/wflow/internal/executor"
	"github.com/opencode-ai/wflow/internal/journal"
	"github.com/opencode-ai/wflow/internal/logging"
	"github.com/opencode-ai/wflow/internal/prompt"
	"github.com/opencode-ai/wflow/internal/resolver"
	"github.com/opencode-ai/wflow/internal/session"
	"github.com/opencode-ai/wflow/internal/workflow"
	"github.com/opencode-ai/wflow/pkg/types"
)

// DefaultMaxDepth bounds how many chained sessions may hang below a
// top-level one.
const DefaultMaxDepth = 4

var (
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrChainDepthExceeded = errors.New("chain depth exceeded")
	ErrChainCycle         = errors.New("chain cycle")
)

// NotFoundError is an unknown workflow id with the closest known ids.
type NotFoundError struct {
	ID          string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("workflow %q not found", e.ID)
	if len(e.Suggestions) > 0 {
		msg += "; did you mean " + strings.Join(e.Suggestions, ", ") + "?"
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrWorkflowNotFound }

// Catalog is where the manager looks workflows up. *workflow.Catalog
// satisfies it.
type Catalog interface {
	Get(id string) (*types.Workflow, error)
	Suggest(id string) []string
}

// PrompterFunc returns the prompter for a new session.
type PrompterFunc func(wf *types.Workflow) prompt.Prompter

// Outcome is a session result plus whatever it chained into.
type Outcome struct {
	*session.Result
	// Chain is the chained child session, if one was spawned.
	Chain *Outcome
	// ChainErr is why the chained child was refused or failed.
	ChainErr error
}

// Final returns the last outcome along the chain.
func (o *Outcome) Final() *Outcome {
	for o.Chain != nil {
		o = o.Chain
	}
	return o
}

// Stats counts sessions over the manager's lifetime.
type Stats struct {
	Created   int `json:"created"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Active    int `json:"active"`
	Chained   int `json:"chained"`
}

// Report is the result of one selection in StartAll.
type Report struct {
	WorkflowID string
	Outcome    *Outcome
	Err        error
}

// Manager owns every session it spawns, chained children included.
type Manager struct {
	catalog     Catalog
	journal     journal.Journal
	prompter    PrompterFunc
	runner      executor.Runner
	sink        clipboard.Sink
	maxDepth    int
	concurrency int
	sessionOpts []session.Option

	mu      sync.Mutex
	active  map[string]*session.Processor
	parents map[string]string
	stats   Stats
}

// Option configures a Manager.
type Option func(*Manager)

// WithPrompter sets how sessions ask for input.
func WithPrompter(fn PrompterFunc) Option {
	return func(m *Manager) { m.prompter = fn }
}

// WithRunner sets the executor for dynamic enum commands.
func WithRunner(r executor.Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithSink sets where finalized commands are delivered.
func WithSink(s clipboard.Sink) Option {
	return func(m *Manager) { m.sink = s }
}

// WithMaxDepth bounds chaining. Values below 1 keep the default.
func WithMaxDepth(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxDepth = n
		}
	}
}

// WithConcurrency limits how many selections StartAll runs at once.
func WithConcurrency(n int) Option {
	return func(m *Manager) { m.concurrency = n }
}

// WithSessionOptions passes options to every session.
func WithSessionOptions(opts ...session.Option) Option {
	return func(m *Manager) { m.sessionOpts = append(m.sessionOpts, opts...) }
}

// New creates a manager reading workflows from c and journaling to j.
func New(c Catalog, j journal.Journal, opts ...Option) *Manager {
	m := &Manager{
		catalog:  c,
		journal:  j,
		runner:   executor.New(),
		sink:     clipboard.Disabled{},
		maxDepth: DefaultMaxDepth,
		active:   make(map[string]*session.Processor),
		parents:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.prompter == nil {
		tui := prompt.NewTUI()
		m.prompter = func(*types.Workflow) prompt.Prompter { return tui }
	}
	return m
}

// Start spawns a top-level session for workflowID and runs it, following
// chain references. The error is the top-level session's failure; chained
// failures are reported on the Outcome.
func (m *Manager) Start(ctx context.Context, workflowID string) (*Outcome, error) {
	return m.start(ctx, workflowID, "", nil)
}

// StartAll runs several top-level selections concurrently. Each selection
// gets its own session; one failing does not cancel the others.
func (m *Manager) StartAll(ctx context.Context, workflowIDs []string) []Report {
	reports := make([]Report, len(workflowIDs))

	var g errgroup.Group
	if m.concurrency > 0 {
		g.SetLimit(m.concurrency)
	}
	for i, id := range workflowIDs {
		i, id := i, id
		g.Go(func() error {
			out, err := m.Start(ctx, id)
			reports[i] = Report{WorkflowID: id, Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return reports
}

func (m *Manager) start(ctx context.Context, id, parent string, path []string) (*Outcome, error) {
	wf, err := m.lookup(id)
	if err != nil {
		return nil, err
	}

	res, err := m.spawn(ctx, wf, parent, len(path))
	out := &Outcome{Result: res}
	if err != nil {
		return out, err
	}

	if target, ok := ChainTarget(res.Command); ok {
		out.Chain, out.ChainErr = m.chain(ctx, res.SessionID, target, append(slices.Clone(path), wf.ID))
	}
	return out, nil
}

func (m *Manager) chain(ctx context.Context, parent, target string, path []string) (*Outcome, error) {
	log := logging.With().Str("session", parent).Str("chain", target).Logger()

	if len(path) > m.maxDepth {
		log.Warn().Int("depth", len(path)).Msg("chain refused")
		return nil, fmt.Errorf("%w: %s would run at depth %d (max %d)", ErrChainDepthExceeded, target, len(path), m.maxDepth)
	}
	if slices.Contains(path, target) {
		log.Warn().Strs("path", path).Msg("chain refused")
		return nil, fmt.Errorf("%w: %s -> %s", ErrChainCycle, strings.Join(path, " -> "), target)
	}

	m.mu.Lock()
	m.stats.Chained++
	m.mu.Unlock()

	log.Info().Int("depth", len(path)).Msg("starting chained workflow")
	return m.start(ctx, target, parent, path)
}

func (m *Manager) lookup(id string) (*types.Workflow, error) {
	wf, err := m.catalog.Get(id)
	if errors.Is(err, workflow.ErrNotFound) {
		return nil, &NotFoundError{ID: id, Suggestions: m.catalog.Suggest(id)}
	}
	return wf, err
}

// spawn creates and runs one session. A panic anywhere in it fails that
// session only.
func (m *Manager) spawn(ctx context.Context, wf *types.Workflow, parent string, depth int) (res *session.Result, err error) {
	id := session.NewID()
	m.track(id, parent)
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("session", id).Interface("panic", r).Msg("session crashed")
			err = &session.PanicError{Value: r}
			res = &session.Result{
				SessionID:  id,
				WorkflowID: wf.ID,
				State:      types.StateFailed,
				Failure:    &types.ResolutionFailedData{Kind: types.FailureInternal, Index: -1, Error: err.Error()},
				Err:        err,
			}
		}
		m.finish(id, res)
	}()

	opts := append(slices.Clone(m.sessionOpts), session.WithID(id), session.WithParent(parent, depth))
	p := session.New(wf, m.journal, resolver.New(m.prompter(wf), m.runner), m.sink, opts...)

	m.mu.Lock()
	m.active[id] = p
	m.mu.Unlock()

	return p.Run(ctx)
}

func (m *Manager) track(id, parent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Created++
	m.stats.Active++
	if parent != "" {
		m.parents[id] = parent
	}
}

func (m *Manager) finish(id string, res *session.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, id)
	m.stats.Active--
	if res != nil && res.State == types.StateCompleted {
		m.stats.Completed++
	} else {
		m.stats.Failed++
	}
}

// Stats returns a snapshot of the session counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Active returns the sessions currently running.
func (m *Manager) Active() []*session.Processor {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*session.Processor, 0, len(m.active))
	for _, p := range m.active {
		out = append(out, p)
	}
	return out
}

// Parent returns the session that chained into sessionID.
func (m *Manager) Parent(sessionID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parents[sessionID]
	return p, ok
}

// ChainTarget reports whether cmd is a chain reference of the form
// "@<workflow-id>" and returns the id.
func ChainTarget(cmd string) (string, bool) {
	cmd = strings.TrimSpace(cmd)
	if !strings.HasPrefix(cmd, "@") {
		return "", false
	}
	id := cmd[1:]
	if id == "" || strings.ContainsAny(id, " \t\n") {
		return "", false
	}
	return id, true
}
