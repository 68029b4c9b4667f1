package event

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/opencode-ai/wflow/internal/logging"
	"github.com/opencode-ai/wflow/pkg/types"
)

func started(session string) types.Event {
	return types.NewSessionStarted(session, types.SessionStartedData{WorkflowID: "wf"})
}

func finalized(session string) types.Event {
	return types.NewCommandFinalized(session, "echo hi")
}

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	received := make(chan types.Event, 1)
	unsub := bus.Subscribe(types.EventSessionStarted, func(e types.Event) {
		received <- e
	})
	defer unsub()

	bus.PublishSync(started("s1"))

	select {
	case e := <-received:
		if e.Kind != types.EventSessionStarted {
			t.Errorf("Expected SessionStarted, got %v", e.Kind)
		}
		if e.SessionID != "s1" {
			t.Errorf("Expected session s1, got %v", e.SessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestBus_SubscribeAll(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup
	wg.Add(3)

	unsub := bus.SubscribeAll(func(e types.Event) {
		atomic.AddInt32(&count, 1)
		wg.Done()
	})
	defer unsub()

	bus.PublishSync(started("s1"))
	bus.PublishSync(finalized("s1"))
	bus.PublishSync(types.NewResolutionFailed("s2", types.ResolutionFailedData{Kind: types.FailureCancelled}))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if atomic.LoadInt32(&count) != 3 {
			t.Errorf("Expected 3 events, got %d", count)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for events")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	unsub := bus.Subscribe(types.EventSessionStarted, func(e types.Event) {
		atomic.AddInt32(&count, 1)
	})

	bus.PublishSync(started("s1"))
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected 1 event before unsub, got %d", count)
	}

	unsub()

	bus.PublishSync(started("s1"))
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("Expected still 1 event after unsub, got %d", count)
	}
}

func TestBus_KindFiltering(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var startedCount, finalizedCount int32
	bus.Subscribe(types.EventSessionStarted, func(e types.Event) {
		atomic.AddInt32(&startedCount, 1)
	})
	bus.Subscribe(types.EventCommandFinalized, func(e types.Event) {
		atomic.AddInt32(&finalizedCount, 1)
	})

	bus.PublishSync(started("a"))
	bus.PublishSync(started("b"))
	bus.PublishSync(finalized("a"))

	if atomic.LoadInt32(&startedCount) != 2 {
		t.Errorf("Expected 2 started events, got %d", startedCount)
	}
	if atomic.LoadInt32(&finalizedCount) != 1 {
		t.Errorf("Expected 1 finalized event, got %d", finalizedCount)
	}
}

func TestBus_Stream(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.Stream(ctx)
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	want := finalized("s9")
	bus.PublishSync(want)

	select {
	case got := <-events:
		if got.ID != want.ID || got.Finalized == nil || got.Finalized.Command != "echo hi" {
			t.Errorf("unexpected streamed event: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for streamed event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// A buffered event may still drain; the channel must close after it.
			<-events
		}
	case <-time.After(time.Second):
		t.Fatal("stream did not close after cancel")
	}
}

func TestBus_ClosedDropsEvents(t *testing.T) {
	bus := NewBus()

	var count int32
	bus.SubscribeAll(func(e types.Event) { atomic.AddInt32(&count, 1) })
	if err := bus.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	bus.PublishSync(started("s1"))
	if atomic.LoadInt32(&count) != 0 {
		t.Errorf("closed bus delivered %d events", count)
	}
	if unsub := bus.Subscribe(types.EventSessionStarted, func(types.Event) {}); unsub == nil {
		t.Error("Subscribe on closed bus should return a no-op func")
	}
}

func TestBus_LogsForwardFailures(t *testing.T) {
	var buf bytes.Buffer
	prev := logging.Logger
	logging.Logger = zerolog.New(&buf)
	t.Cleanup(func() { logging.Logger = prev })

	bus := NewBus()
	var count int32
	bus.SubscribeAll(func(e types.Event) { atomic.AddInt32(&count, 1) })
	// Only the watermill side is closed; direct subscribers still run.
	if err := bus.pubsub.Close(); err != nil {
		t.Fatalf("closing pubsub failed: %v", err)
	}

	e := started("s1")
	bus.PublishSync(e)
	if atomic.LoadInt32(&count) != 1 {
		t.Errorf("subscriber called %d times, want 1", count)
	}
	out := buf.String()
	if !strings.Contains(out, "failed to forward event") || !strings.Contains(out, e.ID) {
		t.Errorf("publish failure not logged: %q", out)
	}
}

func TestBus_ConcurrentSubscribePublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := bus.Subscribe(types.EventSessionStarted, func(e types.Event) {
				atomic.AddInt32(&count, 1)
			})
			defer unsub()

			for j := 0; j < 10; j++ {
				bus.PublishSync(started("c"))
			}
		}()
	}

	wg.Wait()
	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&count) == 0 {
		t.Log("Warning: no events received, but no panic occurred")
	}
}
