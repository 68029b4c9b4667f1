package journal

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/opencode-ai/wflow/internal/storage"
	"github.com/opencode-ai/wflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Journal {
	return map[string]Journal{
		"memory": NewMemory(),
		"file":   NewFile(storage.New(t.TempDir())),
	}
}

// testContract exercises the behavior every backend shares.
func testContract(t *testing.T, j Journal) {
	ctx := context.Background()

	t.Run("AppendAssignsSequence", func(t *testing.T) {
		e1, err := j.Append(ctx, types.NewSessionStarted("s-seq", types.SessionStartedData{WorkflowID: "wf"}))
		require.NoError(t, err)
		e2, err := j.Append(ctx, types.NewCommandFinalized("s-seq", "echo"))
		require.NoError(t, err)

		assert.Equal(t, int64(1), e1.Sequence)
		assert.Equal(t, int64(2), e2.Sequence)
	})

	t.Run("ReadAllInAppendOrder", func(t *testing.T) {
		kinds := []types.Event{
			types.NewSessionStarted("s-order", types.SessionStartedData{WorkflowID: "wf", Arguments: []string{"a"}}),
			types.NewArgumentPrompted("s-order", types.ArgumentPromptedData{Name: "a"}),
			types.NewArgumentResolved("s-order", types.ArgumentResolvedData{Name: "a", Value: "1"}),
			types.NewCommandFinalized("s-order", "echo 1"),
		}
		for _, e := range kinds {
			_, err := j.Append(ctx, e)
			require.NoError(t, err)
		}

		events, err := j.ReadAll(ctx, "s-order")
		require.NoError(t, err)
		require.Len(t, events, len(kinds))
		for i, e := range events {
			assert.Equal(t, kinds[i].ID, e.ID)
			assert.Equal(t, kinds[i].Kind, e.Kind)
			assert.Equal(t, int64(i+1), e.Sequence)
		}
		assert.Equal(t, "1", events[2].Resolved.Value)
	})

	t.Run("UnknownSessionIsEmpty", func(t *testing.T) {
		events, err := j.ReadAll(ctx, "never-written")
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("RejectsInvalidSession", func(t *testing.T) {
		_, err := j.Append(ctx, types.NewCommandFinalized("", "x"))
		assert.ErrorIs(t, err, ErrInvalidSession)
		_, err = j.Append(ctx, types.NewCommandFinalized("../escape", "x"))
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("InterleavedSessionsKeepOwnOrder", func(t *testing.T) {
		const sessions, perSession = 4, 25
		var wg sync.WaitGroup
		for s := 0; s < sessions; s++ {
			wg.Add(1)
			go func(s int) {
				defer wg.Done()
				id := fmt.Sprintf("s-conc-%d", s)
				for i := 0; i < perSession; i++ {
					_, err := j.Append(ctx, types.NewArgumentResolved(id, types.ArgumentResolvedData{Index: i, Value: fmt.Sprint(i)}))
					assert.NoError(t, err)
				}
			}(s)
		}
		wg.Wait()

		for s := 0; s < sessions; s++ {
			events, err := j.ReadAll(ctx, fmt.Sprintf("s-conc-%d", s))
			require.NoError(t, err)
			require.Len(t, events, perSession)
			for i, e := range events {
				assert.Equal(t, int64(i+1), e.Sequence)
				assert.Equal(t, i, e.Resolved.Index)
			}
		}
	})

	t.Run("ExistsAndEventAt", func(t *testing.T) {
		ok, err := Exists(ctx, j, "s-order")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = Exists(ctx, j, "never-written")
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = Exists(ctx, j, "../escape")
		assert.ErrorIs(t, err, ErrInvalidSession)

		e, err := EventAt(ctx, j, "s-order", 3)
		require.NoError(t, err)
		assert.Equal(t, types.EventArgumentResolved, e.Kind)
		assert.Equal(t, int64(3), e.Sequence)

		_, err = EventAt(ctx, j, "s-order", 99)
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	t.Run("Sessions", func(t *testing.T) {
		ids, err := Sessions(ctx, j)
		require.NoError(t, err)
		assert.Contains(t, ids, "s-seq")
		assert.Contains(t, ids, "s-order")
	})
}

func TestBackends(t *testing.T) {
	for name, j := range backends(t) {
		t.Run(name, func(t *testing.T) {
			testContract(t, j)
		})
	}
}

func TestFile_Durable(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewFile(storage.New(dir))
	_, err := first.Append(ctx, types.NewCommandFinalized("s1", "echo hi"))
	require.NoError(t, err)

	reopened := NewFile(storage.New(dir))
	events, err := reopened.ReadAll(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "echo hi", events[0].Finalized.Command)

	e, err := reopened.Append(ctx, types.NewCommandFinalized("s1", "again"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Sequence)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	j, closeFn, err := Open(ctx, types.JournalConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, j)
	assert.NoError(t, closeFn())

	j, _, err = Open(ctx, types.JournalConfig{Backend: "file", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &File{}, j)

	_, _, err = Open(ctx, types.JournalConfig{Backend: "file"})
	assert.Error(t, err)

	_, _, err = Open(ctx, types.JournalConfig{Backend: "kafka"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, _, err = Open(ctx, types.JournalConfig{Backend: "postgres"})
	assert.Error(t, err)
}

type recordingBus struct {
	mu     sync.Mutex
	events []types.Event
}

func (b *recordingBus) PublishSync(e types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func TestPublishing(t *testing.T) {
	ctx := context.Background()
	bus := &recordingBus{}
	j := NewPublishing(NewMemory(), bus)

	stored, err := j.Append(ctx, types.NewCommandFinalized("s1", "echo"))
	require.NoError(t, err)

	_, err = j.Append(ctx, types.NewCommandFinalized("", "bad"))
	require.Error(t, err)

	require.Len(t, bus.events, 1, "failed appends are not published")
	assert.Equal(t, stored, bus.events[0])
	assert.Equal(t, int64(1), bus.events[0].Sequence)

	ids, err := j.Sessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, ids)
}

type appendOnly struct{ Journal }

func TestSessions_Unsupported(t *testing.T) {
	_, err := Sessions(context.Background(), appendOnly{NewMemory()})
	assert.Error(t, err)
}

func TestExists_FallsBackToReadAll(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()
	_, err := mem.Append(ctx, types.NewCommandFinalized("s1", "echo"))
	require.NoError(t, err)
	j := appendOnly{mem}

	ok, err := Exists(ctx, j, "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Exists(ctx, j, "s2")
	require.NoError(t, err)
	assert.False(t, ok)

	e, err := EventAt(ctx, j, "s1", 1)
	require.NoError(t, err)
	assert.Equal(t, "echo", e.Finalized.Command)
}
