package workflow

import (
	"github.com/opencode-ai/wflow/internal/command"
	"github.com/opencode-ai/wflow/pkg/types"
)

// Undeclared returns the placeholders in the workflow's command that no
// argument supplies. Such a workflow loads, but every session of it fails
// with an unbound placeholder once all arguments are resolved.
func Undeclared(wf *types.Workflow) []string {
	declared := make(map[string]bool, len(wf.Arguments))
	for _, arg := range wf.Arguments {
		declared[arg.Name] = true
	}
	var missing []string
	for _, name := range command.Placeholders(wf.Command) {
		if !declared[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
