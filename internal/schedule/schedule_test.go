package schedule

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncer_RealSchedulerCoalesces(t *testing.T) {
	d := NewDebouncer(Real{}, 10*time.Millisecond)

	var calls atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 3; i++ {
		d.Trigger(func() {
			calls.Add(1)
			last.Store(int32(i))
		})
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Give a stray timer the chance to fire before asserting it did not.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(3), last.Load())
	assert.False(t, d.Pending())
}

func TestDebouncer_StopCancels(t *testing.T) {
	d := NewDebouncer(nil, 5*time.Millisecond)

	var calls atomic.Int32
	d.Trigger(func() { calls.Add(1) })
	assert.True(t, d.Pending())
	assert.True(t, d.Stop())
	assert.False(t, d.Stop())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncer_Delay(t *testing.T) {
	d := NewDebouncer(Real{}, 16*time.Millisecond)
	assert.Equal(t, 16*time.Millisecond, d.Delay())
}
