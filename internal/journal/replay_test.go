package journal

import (
	"testing"

	"github.com/opencode-ai/wflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequenced(events ...types.Event) []types.Event {
	for i := range events {
		events[i].Sequence = int64(i + 1)
	}
	return events
}

func TestReplay_Completed(t *testing.T) {
	const sid = "s1"
	events := sequenced(
		types.NewSessionStarted(sid, types.SessionStartedData{
			WorkflowID: "k8s/logs",
			Template:   "kubectl logs -n {{ns}} {{pod}}",
			Arguments:  []string{"ns", "pod"},
		}),
		types.NewArgumentPrompted(sid, types.ArgumentPromptedData{Index: 0, Name: "ns"}),
		types.NewArgumentResolved(sid, types.ArgumentResolvedData{Index: 0, Name: "ns", Value: "default", FromDefault: true}),
		types.NewEnumCommandExecuted(sid, types.EnumCommandExecutedData{Index: 1, Name: "pod", Options: []string{"api-0"}}),
		types.NewArgumentPrompted(sid, types.ArgumentPromptedData{Index: 1, Name: "pod", Attempt: 1}),
		types.NewArgumentResolved(sid, types.ArgumentResolvedData{Index: 1, Name: "pod", Value: "api-0"}),
		types.NewCommandFinalized(sid, "kubectl logs -n default api-0"),
	)

	o, err := Replay(events)
	require.NoError(t, err)

	assert.Equal(t, types.StateCompleted, o.State)
	assert.Equal(t, "kubectl logs -n default api-0", o.Command)
	assert.Equal(t, o.Command, o.Rendered)
	assert.True(t, o.Verified())
	assert.Equal(t, 2, o.Prompts)
	assert.Equal(t, 1, o.EnumCommands)
	assert.Equal(t, map[string]string{"ns": "default", "pod": "api-0"}, o.Values())
	assert.Nil(t, o.Failure)
}

func TestReplay_NoArguments(t *testing.T) {
	events := sequenced(
		types.NewSessionStarted("s", types.SessionStartedData{Template: "uptime"}),
		types.NewCommandFinalized("s", "uptime"),
	)

	o, err := Replay(events)
	require.NoError(t, err)
	assert.Equal(t, "uptime", o.Command)
	assert.True(t, o.Verified())
}

func TestReplay_Failed(t *testing.T) {
	events := sequenced(
		types.NewSessionStarted("s", types.SessionStartedData{Template: "ls {{dir}}", Arguments: []string{"dir"}}),
		types.NewEnumCommandExecuted("s", types.EnumCommandExecutedData{Index: 0, Name: "dir", ExitCode: 2, Stderr: "boom"}),
		types.NewResolutionFailed("s", types.ResolutionFailedData{Kind: types.FailureEnumCommand, Index: 0, Argument: "dir", Error: "boom"}),
	)

	o, err := Replay(events)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, o.State)
	require.NotNil(t, o.Failure)
	assert.Equal(t, types.FailureEnumCommand, o.Failure.Kind)
	assert.Equal(t, "dir", o.Failure.Argument)
	assert.Empty(t, o.Command)
	assert.False(t, o.Verified())
}

func TestReplay_Interrupted(t *testing.T) {
	events := sequenced(
		types.NewSessionStarted("s", types.SessionStartedData{Template: "{{a}} {{b}}", Arguments: []string{"a", "b"}}),
		types.NewArgumentResolved("s", types.ArgumentResolvedData{Index: 0, Name: "a", Value: "x"}),
	)

	o, err := Replay(events)
	require.NoError(t, err)
	assert.Equal(t, types.Resolving(1), o.State)
	assert.Empty(t, o.Rendered)
}

func TestReplay_Corrupt(t *testing.T) {
	started := types.NewSessionStarted("s", types.SessionStartedData{Template: "{{a}}", Arguments: []string{"a"}})

	tests := []struct {
		name   string
		events []types.Event
	}{
		{"missing start", sequenced(types.NewCommandFinalized("s", "x"))},
		{"finalized early", sequenced(started, types.NewCommandFinalized("s", "x"))},
		{"out of order", sequenced(started, types.NewArgumentResolved("s", types.ArgumentResolvedData{Index: 1, Name: "a"}))},
		{"wrong name", sequenced(started, types.NewArgumentResolved("s", types.ArgumentResolvedData{Index: 0, Name: "b"}))},
		{"foreign session", sequenced(started, types.NewArgumentResolved("other", types.ArgumentResolvedData{Name: "a"}))},
		{"after terminal", sequenced(started,
			types.NewResolutionFailed("s", types.ResolutionFailedData{Kind: types.FailureCancelled}),
			types.NewArgumentResolved("s", types.ArgumentResolvedData{Name: "a"}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Replay(tt.events)
			var corrupt *CorruptLogError
			assert.ErrorAs(t, err, &corrupt)
		})
	}

	_, err := Replay(nil)
	assert.ErrorIs(t, err, ErrEmptyLog)

	dup := sequenced(started, types.NewArgumentResolved("s", types.ArgumentResolvedData{Name: "a"}))
	dup[1].Sequence = 1
	_, err = Replay(dup)
	var corrupt *CorruptLogError
	assert.ErrorAs(t, err, &corrupt)
}
