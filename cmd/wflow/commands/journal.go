package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/wflow/internal/app"
	"github.com/opencode-ai/wflow/internal/journal"
	"github.com/opencode-ai/wflow/pkg/types"
)

var (
	journalLimit int
	journalSeq   int64
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the session journal",
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List journaled sessions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJournalList,
}

var journalShowCmd = &cobra.Command{
	Use:   "show <session>",
	Short: "Print a session's events as JSON lines",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalShow,
}

func init() {
	journalListCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "Show at most this many sessions (0 for all)")
	journalShowCmd.Flags().Int64Var(&journalSeq, "seq", 0, "Print only the event with this sequence number")
	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalShowCmd)
}

func runJournalList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	j, closeJournal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	ids, err := journal.Sessions(ctx, j)
	if err != nil {
		return err
	}

	// Session ids embed a ULID, so lexical order is creation order.
	var newest []string
	for i := len(ids) - 1; i >= 0; i-- {
		if journalLimit > 0 && len(newest) == journalLimit {
			break
		}
		newest = append(newest, ids[i])
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, id := range newest {
		outcome, err := app.Replay(ctx, j, id)
		if err != nil {
			fmt.Fprintf(w, "%s\t?\t%v\n", id, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", id, outcome.WorkflowID, outcome.State, outcome.Command)
	}
	return w.Flush()
}

func runJournalShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	j, closeJournal, err := openJournal(ctx)
	if err != nil {
		return err
	}
	defer closeJournal()

	ok, err := journal.Exists(ctx, j, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s not found", args[0])
	}

	var events []types.Event
	if journalSeq > 0 {
		e, err := journal.EventAt(ctx, j, args[0], journalSeq)
		if err != nil {
			return err
		}
		events = []types.Event{e}
	} else if events, err = j.ReadAll(ctx, args[0]); err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
