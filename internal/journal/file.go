package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opencode-ai/wflow/internal/storage"
	"github.com/opencode-ai/wflow/pkg/types"
)

// File is the durable backend on top of append-only record storage. Each
// session is a directory of sequence-numbered JSON records.
type File struct {
	store *storage.Storage
}

// NewFile creates a file journal rooted at the storage base path.
func NewFile(store *storage.Storage) *File {
	return &File{store: store}
}

func sessionPath(id string) []string {
	return []string{"sessions", id}
}

func (f *File) Append(ctx context.Context, e types.Event) (types.Event, error) {
	if err := validateSession(e.SessionID); err != nil {
		return types.Event{}, err
	}

	seq, err := f.store.Append(ctx, sessionPath(e.SessionID), func(seq int64) any {
		e.Sequence = seq
		return e
	})
	if err != nil {
		return types.Event{}, fmt.Errorf("append %s event: %w", e.Kind, err)
	}
	e.Sequence = seq
	return e, nil
}

func (f *File) ReadAll(ctx context.Context, sessionID string) ([]types.Event, error) {
	if err := validateSession(sessionID); err != nil {
		return nil, err
	}

	events := []types.Event{}
	err := f.store.Scan(ctx, sessionPath(sessionID), func(seq int64, data json.RawMessage) error {
		var e types.Event
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("decode event %d: %w", seq, err)
		}
		events = append(events, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Sessions returns session ids. ULIDs sort by creation time.
func (f *File) Sessions(ctx context.Context) ([]string, error) {
	return f.store.List(ctx, []string{"sessions"})
}

// Has reports whether the session directory holds any records.
func (f *File) Has(ctx context.Context, sessionID string) (bool, error) {
	if err := validateSession(sessionID); err != nil {
		return false, err
	}
	return f.store.Exists(ctx, sessionPath(sessionID)), nil
}

// Event reads a single record by sequence number.
func (f *File) Event(ctx context.Context, sessionID string, seq int64) (types.Event, error) {
	if err := validateSession(sessionID); err != nil {
		return types.Event{}, err
	}
	var e types.Event
	if err := f.store.Get(ctx, sessionPath(sessionID), seq, &e); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return types.Event{}, fmt.Errorf("%w: %s #%d", ErrEventNotFound, sessionID, seq)
		}
		return types.Event{}, err
	}
	return e, nil
}
