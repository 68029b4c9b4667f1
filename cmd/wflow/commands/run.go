package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/wflow/internal/app"
)

var (
	runPlain       bool
	runFormat      string
	runQuiet       bool
	runVerbose     bool
	runNoClipboard bool
	runEvents      string
	runParallel    int
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>...",
	Short: "Resolve a workflow into a command",
	Long: `Resolve a workflow into a command.

wflow asks for each argument in order, then prints the finished command
and copies it to the clipboard. The exit status is 0 on success and
non-zero when resolution fails.

Several workflows run as independent sessions, one after another. With
--plain they may overlap (--parallel); prompts from different sessions
are then asked one at a time. The exit status is that of the first
workflow that failed.

Examples:
  wflow run k8s/logs
  wflow run --plain git/checkout
  wflow run -o json docker/prune | jq -r .command
  wflow run --events - k8s/logs 2>events.jsonl
  wflow run --plain --parallel 4 -o jsonl docker/prune git/gc`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Use line-based prompts instead of the TUI")
	runCmd.Flags().StringVarP(&runFormat, "output-format", "o", "text", "Output format: text, json, jsonl")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Suppress progress output, only show result")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Show every resolution step")
	runCmd.Flags().BoolVar(&runNoClipboard, "no-clipboard", false, "Do not copy the command to the clipboard")
	runCmd.Flags().StringVar(&runEvents, "events", "", "Also write journal events as JSON lines to this file (- for stderr)")
	runCmd.Flags().IntVar(&runParallel, "parallel", 1, "Resolve up to this many workflows at once (requires --plain)")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	format, err := app.ParseOutputFormat(runFormat)
	if err != nil {
		return err
	}

	if runParallel != 1 && !runPlain {
		return fmt.Errorf("--parallel requires --plain")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	finish := func() {}
	if runEvents != "" {
		finish, err = streamEvents(ctx, a, runEvents)
		if err != nil {
			return err
		}
	}

	printer := app.NewPrinter(os.Stdout, os.Stderr, format, runQuiet, runVerbose)
	var results []*app.Result
	if len(args) == 1 {
		results = []*app.Result{a.Run(ctx, args[0], printer)}
	} else {
		results = a.RunAll(ctx, args, printer)
	}

	code := app.ExitSuccess
	for _, result := range results {
		printer.PrintResult(result)
		if code == app.ExitSuccess {
			code = result.ExitCode
		}
	}

	// os.Exit skips deferred calls.
	finish()
	a.Close()
	if code != app.ExitSuccess {
		if logCloser != nil {
			logCloser.Close()
		}
		os.Exit(int(code))
	}
	return nil
}

func newApp(ctx context.Context) (*app.App, error) {
	opts := app.Options{
		Directory:   workDir,
		NoClipboard: runNoClipboard,
		Concurrency: runParallel,
	}
	if runPlain {
		opts.PromptMode = app.PromptPlain
	}
	return app.New(ctx, appConfig, opts)
}

// streamEvents copies bus events to path. The returned func stops the
// copy once everything published so far is written.
func streamEvents(ctx context.Context, a *app.App, path string) (func(), error) {
	w := os.Stderr
	closeFile := func() error { return nil }
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("open events file: %w", err)
		}
		w = f
		closeFile = f.Close
	}

	streamCtx, cancel := context.WithCancel(ctx)
	wait, err := app.StreamEvents(streamCtx, a.Bus, w)
	if err != nil {
		cancel()
		closeFile()
		return nil, err
	}
	return func() {
		cancel()
		wait()
		closeFile()
	}, nil
}
