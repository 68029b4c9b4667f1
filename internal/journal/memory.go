package journal

import (
	"context"
	"sync"

	"github.com/opencode-ai/wflow/pkg/types"
)

// Memory is the volatile reference backend.
type Memory struct {
	mu     sync.RWMutex
	events map[string][]types.Event
	order  []string
}

// NewMemory creates an empty in-memory journal.
func NewMemory() *Memory {
	return &Memory{events: make(map[string][]types.Event)}
}

func (m *Memory) Append(ctx context.Context, e types.Event) (types.Event, error) {
	if err := ctx.Err(); err != nil {
		return types.Event{}, err
	}
	if err := validateSession(e.SessionID); err != nil {
		return types.Event{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	log, ok := m.events[e.SessionID]
	if !ok {
		m.order = append(m.order, e.SessionID)
	}
	e.Sequence = int64(len(log)) + 1
	m.events[e.SessionID] = append(log, e)
	return e, nil
}

func (m *Memory) ReadAll(ctx context.Context, sessionID string) ([]types.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.events[sessionID]
	out := make([]types.Event, len(log))
	copy(out, log)
	return out, nil
}

// Sessions returns session ids in order of first append.
func (m *Memory) Sessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

func (m *Memory) Has(ctx context.Context, sessionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events[sessionID]) > 0, nil
}
