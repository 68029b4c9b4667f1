package app

import (
	"context"
	"encoding/json"
	"io"

	"github.com/opencode-ai/wflow/internal/event"
)

// StreamEvents copies every event published on bus to w as JSON lines
// until ctx is done. The returned func blocks until the copy has drained.
func StreamEvents(ctx context.Context, bus *event.Bus, w io.Writer) (func(), error) {
	events, err := bus.Stream(ctx)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		enc := json.NewEncoder(w)
		for e := range events {
			_ = enc.Encode(e)
		}
	}()
	return func() { <-done }, nil
}
