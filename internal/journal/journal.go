// Package journal is the append-only, per-session event log.
//
// A Journal only grows: Append assigns the next per-session sequence number
// and stores the event, ReadAll returns a session's events in append order.
// There is no update or delete. Appends from distinct sessions may
// interleave freely; each session's own sub-sequence stays totally ordered.
package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/opencode-ai/wflow/internal/storage"
	"github.com/opencode-ai/wflow/pkg/types"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

var (
	// ErrInvalidSession is returned for an empty or unsafe session id.
	ErrInvalidSession = errors.New("journal: invalid session id")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("journal: unknown backend")
	// ErrSessionNotFound is returned when a session has no events.
	ErrSessionNotFound = errors.New("journal: session not found")
	// ErrEventNotFound is returned by EventAt for a missing sequence number.
	ErrEventNotFound = errors.New("journal: event not found")
)

// Journal is the append/read contract every backend implements.
type Journal interface {
	// Append stores e at the end of its session's log and returns it with
	// Sequence set.
	Append(ctx context.Context, e types.Event) (types.Event, error)
	// ReadAll returns the session's events in append order. An unknown
	// session yields an empty slice.
	ReadAll(ctx context.Context, sessionID string) ([]types.Event, error)
}

// Lister is implemented by backends that can enumerate sessions.
type Lister interface {
	Sessions(ctx context.Context) ([]string, error)
}

// Sessions lists the sessions in j, or returns an error if the backend
// cannot enumerate them.
func Sessions(ctx context.Context, j Journal) ([]string, error) {
	l, ok := j.(Lister)
	if !ok {
		return nil, fmt.Errorf("journal: %T cannot list sessions", j)
	}
	return l.Sessions(ctx)
}

// Finder is implemented by backends that can tell whether a session has
// any events without reading them.
type Finder interface {
	Has(ctx context.Context, sessionID string) (bool, error)
}

// Getter is implemented by backends that can read a single event.
type Getter interface {
	Event(ctx context.Context, sessionID string, seq int64) (types.Event, error)
}

// Exists reports whether sessionID has at least one event in j.
func Exists(ctx context.Context, j Journal, sessionID string) (bool, error) {
	if err := validateSession(sessionID); err != nil {
		return false, err
	}
	if f, ok := j.(Finder); ok {
		return f.Has(ctx, sessionID)
	}
	events, err := j.ReadAll(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return len(events) > 0, nil
}

// EventAt returns the event with sequence number seq in sessionID.
func EventAt(ctx context.Context, j Journal, sessionID string, seq int64) (types.Event, error) {
	if err := validateSession(sessionID); err != nil {
		return types.Event{}, err
	}
	if g, ok := j.(Getter); ok {
		return g.Event(ctx, sessionID, seq)
	}
	events, err := j.ReadAll(ctx, sessionID)
	if err != nil {
		return types.Event{}, err
	}
	for _, e := range events {
		if e.Sequence == seq {
			return e, nil
		}
	}
	return types.Event{}, fmt.Errorf("%w: %s #%d", ErrEventNotFound, sessionID, seq)
}

// Open creates the backend selected by cfg. The returned func releases
// backend resources and is never nil.
func Open(ctx context.Context, cfg types.JournalConfig) (Journal, func() error, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendMemory:
		return NewMemory(), noClose, nil
	case BackendFile, "":
		if cfg.Dir == "" {
			return nil, nil, errors.New("journal: file backend needs a directory")
		}
		return NewFile(storage.New(cfg.Dir)), noClose, nil
	case BackendPostgres:
		pg, err := OpenPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() error { pg.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func noClose() error { return nil }

func validateSession(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidSession, id)
	}
	return nil
}
