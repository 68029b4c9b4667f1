package journal

import (
	"context"

	"github.com/opencode-ai/wflow/pkg/types"
)

// Publisher receives every successfully appended event.
// *event.Bus satisfies it.
type Publisher interface {
	PublishSync(e types.Event)
}

// Publishing decorates a Journal and publishes each appended event.
type Publishing struct {
	Journal
	bus Publisher
}

// NewPublishing wraps j so appends are published on bus.
func NewPublishing(j Journal, bus Publisher) *Publishing {
	return &Publishing{Journal: j, bus: bus}
}

func (p *Publishing) Append(ctx context.Context, e types.Event) (types.Event, error) {
	stored, err := p.Journal.Append(ctx, e)
	if err != nil {
		return stored, err
	}
	p.bus.PublishSync(stored)
	return stored, nil
}

// Sessions delegates to the wrapped journal.
func (p *Publishing) Sessions(ctx context.Context) ([]string, error) {
	return Sessions(ctx, p.Journal)
}

// Has delegates to the wrapped journal.
func (p *Publishing) Has(ctx context.Context, sessionID string) (bool, error) {
	return Exists(ctx, p.Journal, sessionID)
}
