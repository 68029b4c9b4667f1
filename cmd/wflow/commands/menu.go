package commands

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/wflow/internal/app"
)

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Pick workflows interactively (the default command)",
	Args:  cobra.NoArgs,
	RunE:  runMenu,
}

// runMenu is the root command: pick workflows from the catalog until the
// user quits.
func runMenu(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	chooser, err := app.NewPrompter(appConfig.Prompt.Mode, os.Stdin, os.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	printer := app.NewPrinter(os.Stdout, os.Stderr, app.OutputText, false, false)
	return a.Menu(ctx, chooser, printer)
}
