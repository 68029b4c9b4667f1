package app

import (
	"context"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/opencode-ai/wflow/internal/journal"
)

// Replay reads a session's events from j and reconstructs its outcome.
func Replay(ctx context.Context, j journal.Journal, sessionID string) (*journal.Outcome, error) {
	ok, err := journal.Exists(ctx, j, sessionID)
	if err != nil {
		return nil, fmt.Errorf("look up session %s: %w", sessionID, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", journal.ErrSessionNotFound, sessionID)
	}
	events, err := j.ReadAll(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", sessionID, err)
	}
	return journal.Replay(events)
}

// Diff renders the character-level difference between the recorded and
// the re-rendered command. It is empty when they match.
func Diff(recorded, rendered string) string {
	if recorded == rendered {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(recorded, rendered, false)
	return dmp.DiffPrettyText(dmp.DiffCleanupSemantic(diffs))
}
