package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_HappyPath(t *testing.T) {
	m := New(true)
	assert.Equal(t, Uninitialized, m.Status())

	require.True(t, m.Load())
	assert.Equal(t, Loaded, m.Status())
	assert.False(t, m.Load(), "second load is ignored")

	require.True(t, m.Idle())
	assert.Equal(t, Idle, m.Status())
	assert.False(t, m.Idle(), "second idle is ignored")

	snap := m.Snapshot()
	assert.True(t, snap.Loaded)
	assert.True(t, snap.Idle)
	assert.True(t, snap.Attached)
}

func TestMachine_IdleRequiresLoad(t *testing.T) {
	m := New(true)
	assert.False(t, m.Idle())
	assert.Equal(t, Uninitialized, m.Status())
}

func TestMachine_InitializationErrors(t *testing.T) {
	m := New(true)
	boom := errors.New("style failed")

	require.True(t, m.Fail(boom))
	assert.Equal(t, Error, m.Status())

	// Loading after an init error keeps the Error status but the loaded flag
	// is still visible to conditions.
	m.Load()
	assert.Equal(t, Error, m.Status())
	assert.True(t, m.Snapshot().Loaded)
	assert.Equal(t, []error{boom}, m.Errors())
}

func TestMachine_ErrorAfterIdleIsRuntime(t *testing.T) {
	m := New(true)
	m.Load()
	m.Idle()

	assert.False(t, m.Fail(errors.New("tile 404")))
	assert.Equal(t, Idle, m.Status())
	assert.Empty(t, m.Errors())
}

func TestMachine_TransitionHooks(t *testing.T) {
	m := New(true)
	var seen []string
	m.OnTransition(func(from, to Status) {
		seen = append(seen, from.String()+"->"+to.String())
	})

	m.Load()
	m.Load()
	m.Idle()
	m.Dispose()

	assert.Equal(t, []string{"uninitialized->loaded", "loaded->idle", "idle->disposed"}, seen)
}

func TestMachine_DisposeIsPermanent(t *testing.T) {
	m := New(true)
	m.Dispose()

	assert.False(t, m.Load())
	m.Reset()
	assert.Equal(t, Disposed, m.Status())
	assert.False(t, m.Snapshot().Attached)
}

func TestMachine_Reset(t *testing.T) {
	m := New(true)
	m.Load()
	m.Idle()
	m.Reset()

	assert.Equal(t, Uninitialized, m.Status())
	assert.True(t, m.Load(), "a reset machine can load again")
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{Uninitialized, Loaded, Idle, Error, Disposed} {
		got, err := ParseStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseStatus("booting")
	assert.Error(t, err)
}
