package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/opencode-ai/wflow/internal/workflow"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show <workflow>",
	Short: "Show a workflow and its arguments",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")
}

func runShow(cmd *cobra.Command, args []string) error {
	catalog := workflow.NewOsCatalog(appConfig.WorkflowsDir)
	if err := catalog.Load(); err != nil {
		return err
	}

	wf, err := catalog.Get(args[0])
	if err != nil {
		if suggestions := catalog.Suggest(args[0]); len(suggestions) > 0 {
			return fmt.Errorf("%w; did you mean %s?", err, strings.Join(suggestions, ", "))
		}
		return err
	}

	if showJSON {
		data, err := json.MarshalIndent(wf, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	bold := color.New(color.Bold)
	bold.Printf("%s", wf.Name)
	fmt.Printf(" (%s)\n", wf.ID)
	if wf.Description != "" {
		fmt.Println(wf.Description)
	}
	fmt.Println()
	fmt.Printf("  %s\n", wf.Command)

	if len(wf.Arguments) > 0 {
		fmt.Println()
		bold.Println("Arguments:")
	}
	for _, arg := range wf.Arguments {
		line := fmt.Sprintf("  %-16s %-6s", arg.Name, arg.Type)
		if arg.Default != nil {
			line += fmt.Sprintf(" [default: %s]", *arg.Default)
		}
		switch {
		case len(arg.EnumVariants) > 0:
			line += " one of " + strings.Join(arg.EnumVariants, ", ")
		case arg.EnumCommand != "":
			line += " from `" + arg.EnumCommand + "`"
		}
		if arg.Description != "" {
			line += "  " + arg.Description
		}
		fmt.Println(line)
	}

	yellow := color.New(color.FgYellow)
	for _, name := range workflow.Undeclared(wf) {
		yellow.Fprintf(os.Stderr, "warning: {{%s}} has no matching argument\n", name)
	}
	return nil
}
