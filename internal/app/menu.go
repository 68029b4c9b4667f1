package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/opencode-ai/wflow/internal/logging"
	"github.com/opencode-ai/wflow/internal/prompt"
	"github.com/opencode-ai/wflow/internal/workflow"
)

// Menu lets the user pick workflows one after another until they abort.
// A Watcher keeps the catalog current between selections.
func (a *App) Menu(ctx context.Context, chooser prompt.Prompter, printer *Printer) error {
	watcher, err := workflow.NewWatcher(a.Catalog, func(err error) {
		if err != nil {
			logging.Warn().Err(err).Msg("workflow reload failed")
			return
		}
		logging.Debug().Int("workflows", len(a.Catalog.List())).Msg("workflows reloaded")
	})
	if err != nil {
		return fmt.Errorf("watch workflows: %w", err)
	}
	watcher.Start()
	defer watcher.Stop()

	for {
		summaries := a.Catalog.List()
		if len(summaries) == 0 {
			return fmt.Errorf("no workflows found in %s", a.Catalog.Root())
		}
		ids := make([]string, len(summaries))
		for i, s := range summaries {
			ids[i] = s.ID
		}

		id, err := chooser.Prompt(ctx, prompt.Spec{
			Label:   fmt.Sprintf("Workflow (%d available)", len(ids)),
			Kind:    prompt.KindSelect,
			Options: ids,
		})
		if errors.Is(err, prompt.ErrAborted) {
			return nil
		}
		if err != nil {
			return err
		}

		printer.PrintResult(a.Run(ctx, id, printer))
	}
}
