package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/wflow/internal/workflow"
)

var (
	listJSON     bool
	listFailures bool
)

var listCmd = &cobra.Command{
	Use:   "list [query]",
	Short: "List available workflows",
	Long: `List the workflows in the workflows directory.

With a query, workflows are fuzzy-matched on id, name and tags and listed
best match first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output as JSON")
	listCmd.Flags().BoolVar(&listFailures, "failures", false, "Also show workflows that failed to load")
}

func runList(cmd *cobra.Command, args []string) error {
	catalog := workflow.NewOsCatalog(appConfig.WorkflowsDir)
	if err := catalog.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	query := ""
	if len(args) > 0 {
		query = args[0]
	}
	summaries := catalog.Search(query)

	if listJSON {
		data, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(summaries) == 0 {
		fmt.Fprintf(os.Stderr, "No workflows found in %s\n", catalog.Root())
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, s := range summaries {
		count := fmt.Sprintf("%d args", s.ArgumentCount)
		if s.HasRequiredArgs {
			count += "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Name, count, strings.Join(s.Tags, ","))
	}
	w.Flush()

	if listFailures {
		failures := catalog.Failures()
		ids := make([]string, 0, len(failures))
		for id := range failures {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		red := color.New(color.FgRed)
		for _, id := range ids {
			red.Fprintf(os.Stderr, "%s: %v\n", id, failures[id])
		}
	}
	return nil
}
