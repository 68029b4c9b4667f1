package clipboard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSystem(retries int, failures int) (*System, *int) {
	calls := 0
	s := NewSystem(retries)
	s.unsupported = func() bool { return false }
	s.write = func(string) error {
		calls++
		if calls <= failures {
			return errors.New("xclip: cannot open display")
		}
		return nil
	}
	return s, &calls
}

func TestSystem_RetriesTransientFailure(t *testing.T) {
	s, calls := fakeSystem(2, 1)
	require.NoError(t, s.Write("echo hi"))
	assert.Equal(t, 2, *calls)
}

func TestSystem_GivesUp(t *testing.T) {
	s, calls := fakeSystem(2, 10)
	err := s.Write("echo hi")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "cannot open display")
	assert.Equal(t, 3, *calls)
}

func TestSystem_Unsupported(t *testing.T) {
	s, calls := fakeSystem(2, 0)
	s.unsupported = func() bool { return true }
	assert.ErrorIs(t, s.Write("x"), ErrUnavailable)
	assert.Equal(t, 0, *calls)
}

func TestDisabled(t *testing.T) {
	assert.ErrorIs(t, Disabled{}.Write("x"), ErrUnavailable)
}

func TestMemory(t *testing.T) {
	var m Memory
	_, ok := m.Last()
	assert.False(t, ok)

	require.NoError(t, m.Write("a"))
	require.NoError(t, m.Write("b"))
	last, ok := m.Last()
	assert.True(t, ok)
	assert.Equal(t, "b", last)
	assert.Equal(t, []string{"a", "b"}, m.Writes())
}
