package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/wflow/internal/app"
	"github.com/opencode-ai/wflow/internal/journal"
)

var (
	replayVerify bool
	replayJSON   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <session>",
	Short: "Reconstruct a session from its journal",
	Long: `Reconstruct a session from its journal without prompting or running
any enum command.

With --verify, the command is re-rendered from the recorded arguments and
compared with the recorded command; a mismatch exits non-zero.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayVerify, "verify", false, "Re-render the command and compare it with the recorded one")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Output as JSON")
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	j, closeJournal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	outcome, err := app.Replay(ctx, j, args[0])
	if err != nil {
		if errors.Is(err, journal.ErrSessionNotFound) || errors.Is(err, journal.ErrEmptyLog) {
			return fmt.Errorf("session %s not found", args[0])
		}
		return err
	}

	if replayJSON {
		data, err := json.MarshalIndent(outcome, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	} else {
		printOutcome(outcome)
	}

	if !replayVerify {
		return nil
	}
	if outcome.Command == "" {
		return fmt.Errorf("session %s did not complete (%s)", outcome.SessionID, outcome.State)
	}
	if !outcome.Verified() {
		fmt.Fprintln(os.Stderr, app.Diff(outcome.Command, outcome.Rendered))
		return fmt.Errorf("session %s: re-rendered command differs from the recorded one", outcome.SessionID)
	}
	if !replayJSON {
		color.New(color.FgGreen).Fprintln(os.Stderr, "Verified.")
	}
	return nil
}

func printOutcome(o *journal.Outcome) {
	bold := color.New(color.Bold)
	bold.Printf("%s", o.SessionID)
	fmt.Printf("  %s (%s)\n", o.WorkflowID, o.State)
	if o.ParentSession != "" {
		fmt.Printf("  chained from %s at depth %d\n", o.ParentSession, o.Depth)
	}
	fmt.Printf("  template: %s\n", o.Template)
	for _, arg := range o.Arguments {
		fmt.Printf("  %s = %s\n", arg.Name, arg.Value)
	}
	fmt.Printf("  prompts: %d, enum commands: %d\n", o.Prompts, o.EnumCommands)
	if o.Command != "" {
		fmt.Printf("  command: %s\n", o.Command)
	}
	if o.Failure != nil {
		color.New(color.FgRed).Printf("  failed: %s: %s\n", o.Failure.Kind, o.Failure.Error)
	}
}

// openJournal opens the configured journal backend directly, without the
// event bus or catalog.
func openJournal(ctx context.Context) (journal.Journal, func() error, error) {
	if appConfig.Journal.Backend == journal.BackendMemory {
		return nil, nil, errors.New("the memory journal does not outlive a run; configure the file or postgres backend")
	}
	return journal.Open(ctx, appConfig.Journal)
}
