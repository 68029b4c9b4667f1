// Package event fans journal events out to in-process subscribers using watermill.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/opencode-ai/wflow/internal/logging"
	"github.com/opencode-ai/wflow/pkg/types"
)

// Topic is the watermill topic journal events are published on.
const Topic = "wflow.journal"

// Subscriber is a function that receives events.
type Subscriber func(event types.Event)

// subscriberEntry wraps a subscriber with an ID.
type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is the event bus. Direct subscribers receive the typed event; every
// event is also published as a JSON message on Topic for Stream consumers.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[types.EventKind][]subscriberEntry
	global      []subscriberEntry

	nextID uint64
	closed bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
				// Keeps Stream consumers in publish order.
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NopLogger{},
		),
		subscribers: make(map[types.EventKind][]subscriberEntry),
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a subscriber for a specific event kind.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(kind types.EventKind, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[kind] = append(b.subscribers[kind], subscriberEntry{id: id, fn: fn})

	return func() {
		b.unsubscribe(kind, id)
	}
}

// SubscribeAll registers a subscriber for all events.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() {
		b.unsubscribeGlobal(id)
	}
}

func (b *Bus) unsubscribe(kind types.EventKind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[kind]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// collect returns the subscribers for kind, or nil when the bus is closed.
func (b *Bus) collect(kind types.EventKind) ([]Subscriber, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, false
	}

	subs := make([]Subscriber, 0, len(b.subscribers[kind])+len(b.global))
	for _, entry := range b.subscribers[kind] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs, true
}

// PublishSync sends an event to all subscribers synchronously.
// All subscribers are called in the current goroutine before returning.
func (b *Bus) PublishSync(event types.Event) {
	subs, ok := b.collect(event.Kind)
	if !ok {
		return
	}
	b.forward(event)
	for _, sub := range subs {
		sub(event)
	}
}

// forward publishes the event on the watermill topic. Without a Stream
// consumer gochannel drops the message.
func (b *Bus) forward(event types.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Str("event", event.ID).Str("kind", string(event.Kind)).Msg("failed to encode event")
		return
	}
	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("kind", string(event.Kind))
	msg.Metadata.Set("session", event.SessionID)
	if err := b.pubsub.Publish(Topic, msg); err != nil {
		logging.Warn().Err(err).Str("event", event.ID).Str("session", event.SessionID).Msg("failed to forward event")
	}
}

// Stream returns a channel of events decoded from the watermill topic.
// The channel closes when ctx is done or the bus is closed. Publishing
// waits for each event to be queued, so consumers must keep reading or
// cancel ctx.
func (b *Bus) Stream(ctx context.Context) (<-chan types.Event, error) {
	messages, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, err
	}

	out := make(chan types.Event, 16)
	go func() {
		defer close(out)
		for msg := range messages {
			var e types.Event
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				logging.Warn().Err(err).Str("message", msg.UUID).Msg("dropping undecodable event")
				msg.Ack()
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				msg.Ack()
				return
			}
			msg.Ack()
		}
	}()
	return out, nil
}

// Close closes the bus and all its subscribers.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	b.subscribers = make(map[types.EventKind][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
