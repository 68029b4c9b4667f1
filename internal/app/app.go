// Package app wires configuration, the workflow catalog, the journal and
// the session manager together for the command line.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/opencode-ai/wflow/internal/clipboard"
	"github.com/opencode-ai/wflow/internal/event"
	"github.com/opencode-ai/wflow/internal/executor"
	"github.com/opencode-ai/wflow/internal/journal"
	"github.com/opencode-ai/wflow/internal/logging"
	"github.com/opencode-ai/wflow/internal/manager"
	"github.com/opencode-ai/wflow/internal/prompt"
	"github.com/opencode-ai/wflow/internal/session"
	"github.com/opencode-ai/wflow/internal/workflow"
	"github.com/opencode-ai/wflow/pkg/types"
)

// Prompt modes.
const (
	PromptTUI   = "tui"
	PromptPlain = "plain"
)

// Options are per-invocation overrides on top of the loaded config.
type Options struct {
	// Directory is the working directory for enum commands.
	Directory string
	// PromptMode overrides config prompt.mode.
	PromptMode string
	// NoClipboard disables clipboard delivery.
	NoClipboard bool
	// In and Out are the terminal streams for plain prompts.
	In  io.Reader
	Out io.Writer
	// Journal, when set, replaces the configured backend.
	Journal journal.Journal
	// Prompter, when set, replaces the configured prompter.
	Prompter prompt.Prompter
	// Runner, when set, replaces the shell executor.
	Runner executor.Runner
	// Sink, when set, replaces the clipboard.
	Sink clipboard.Sink
	// Concurrency bounds how many workflows RunAll resolves at once.
	// Zero means no limit.
	Concurrency int
}

// App holds the long-lived components of one wflow invocation.
type App struct {
	Config  *types.Config
	Catalog *workflow.Catalog
	Journal journal.Journal
	Bus     *event.Bus
	Manager *manager.Manager

	closers []func() error
}

// New builds an App from cfg. The catalog is loaded eagerly; a missing
// workflows directory yields an empty catalog.
func New(ctx context.Context, cfg *types.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Bus: event.NewBus()}
	a.closers = append(a.closers, a.Bus.Close)

	a.Catalog = workflow.NewOsCatalog(cfg.WorkflowsDir)
	if err := a.Catalog.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			a.Close()
			return nil, fmt.Errorf("load workflows: %w", err)
		}
		logging.Warn().Str("dir", cfg.WorkflowsDir).Msg("workflows directory does not exist")
	}

	store := opts.Journal
	if store == nil {
		j, closeJournal, err := journal.Open(ctx, cfg.Journal)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.closers = append(a.closers, closeJournal)
		store = j
	}
	a.Journal = journal.NewPublishing(store, a.Bus)

	runner := opts.Runner
	if runner == nil {
		runner = executor.New(
			executor.WithShell(cfg.Executor.Shell),
			executor.WithTimeout(time.Duration(cfg.Executor.Timeout)),
			executor.WithWorkDir(opts.Directory),
		)
	}

	sink := opts.Sink
	if sink == nil {
		sink = NewSink(cfg.Clipboard, opts.NoClipboard)
	}

	prompter := opts.Prompter
	if prompter == nil {
		mode := cfg.Prompt.Mode
		if opts.PromptMode != "" {
			mode = opts.PromptMode
		}
		p, err := NewPrompter(mode, opts.In, opts.Out)
		if err != nil {
			a.Close()
			return nil, err
		}
		prompter = p
	}

	a.Manager = manager.New(a.Catalog, a.Journal,
		manager.WithPrompter(func(*types.Workflow) prompt.Prompter { return prompter }),
		manager.WithRunner(runner),
		manager.WithSink(sink),
		manager.WithMaxDepth(cfg.Chain.MaxDepth),
		manager.WithConcurrency(opts.Concurrency),
		manager.WithSessionOptions(session.WithEnvironment(environment(opts.Directory))),
	)
	return a, nil
}

// Close releases the journal and the event bus.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Run resolves one workflow with printer attached to the event bus.
func (a *App) Run(ctx context.Context, workflowID string, printer *Printer) *Result {
	printer.Subscribe(a.Bus)
	defer printer.Unsubscribe()

	out, err := a.Manager.Start(ctx, workflowID)
	result := NewResult(workflowID, out, err, printer.Elapsed())

	log := logging.With().Str("workflow", workflowID).Logger()
	if err != nil {
		log.Warn().Err(err).Int("exit", int(result.ExitCode)).Msg("run failed")
	} else {
		log.Info().Str("session", result.SessionID).Msg("run completed")
	}
	return result
}

// RunAll resolves several workflows as independent top-level sessions.
// Results are in the order of workflowIDs; one failure never affects the
// others.
func (a *App) RunAll(ctx context.Context, workflowIDs []string, printer *Printer) []*Result {
	printer.Subscribe(a.Bus)
	defer printer.Unsubscribe()

	reports := a.Manager.StartAll(ctx, workflowIDs)
	results := make([]*Result, len(reports))
	for i, r := range reports {
		results[i] = NewResult(r.WorkflowID, r.Outcome, r.Err, printer.Elapsed())
	}

	stats := a.Manager.Stats()
	logging.Info().
		Int("created", stats.Created).
		Int("completed", stats.Completed).
		Int("failed", stats.Failed).
		Msg("batch finished")
	return results
}

// NewPrompter returns the prompter for mode. Plain prompts read in and
// write out, defaulting to stdin and stderr.
func NewPrompter(mode string, in io.Reader, out io.Writer) (prompt.Prompter, error) {
	switch strings.ToLower(mode) {
	case PromptTUI, "":
		return prompt.NewTUI(), nil
	case PromptPlain:
		if in == nil {
			in = os.Stdin
		}
		if out == nil {
			out = os.Stderr
		}
		return prompt.NewPlain(in, out), nil
	default:
		return nil, fmt.Errorf("invalid prompt mode: %s (must be tui or plain)", mode)
	}
}

// NewSink returns the clipboard sink for cfg.
func NewSink(cfg types.ClipboardConfig, disabled bool) clipboard.Sink {
	if disabled || (cfg.Enabled != nil && !*cfg.Enabled) {
		return clipboard.Disabled{}
	}
	return clipboard.NewSystem(cfg.Retries)
}

func environment(dir string) session.Environment {
	env := session.CurrentEnvironment()
	if dir != "" {
		env.Directory = dir
	}
	return env
}
