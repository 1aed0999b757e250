package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestControllerStartsAtBaseDelay(t *testing.T) {
	t.Parallel()

	c := New(Config{Enabled: true, BaseDelay: time.Second, MaxDelay: time.Minute, TargetConcurrency: 1.0})
	require.Equal(t, time.Second, c.Delay())
}

func TestObserveMovesHalfwayTowardLatency(t *testing.T) {
	t.Parallel()

	c := New(Config{Enabled: true, BaseDelay: time.Second, MaxDelay: time.Minute, TargetConcurrency: 1.0})

	// (1s + 3s) / 2 = 2s
	c.Observe(3*time.Second, true)
	require.Equal(t, 2*time.Second, c.Delay())

	// (2s + 3s) / 2 = 2.5s
	c.Observe(3*time.Second, true)
	require.Equal(t, 2500*time.Millisecond, c.Delay())
}

func TestObserveClampsToBounds(t *testing.T) {
	t.Parallel()

	c := New(Config{Enabled: true, BaseDelay: time.Second, MaxDelay: 2 * time.Second, TargetConcurrency: 1.0})

	// Fast responses can never push the delay under the base.
	c.Observe(time.Millisecond, true)
	require.Equal(t, time.Second, c.Delay())

	// Slow responses saturate at the ceiling.
	for i := 0; i < 10; i++ {
		c.Observe(time.Minute, true)
	}
	require.Equal(t, 2*time.Second, c.Delay())
}

func TestObserveFailureNeverShrinksDelay(t *testing.T) {
	t.Parallel()

	c := New(Config{Enabled: true, BaseDelay: time.Second, MaxDelay: time.Minute, TargetConcurrency: 1.0})
	c.Observe(9*time.Second, true)
	before := c.Delay()

	// A quick block response would compute a smaller delay; failures may
	// only slow us down.
	c.Observe(time.Millisecond, false)
	require.Equal(t, before, c.Delay())

	// A slow failure still raises it.
	c.Observe(time.Minute, false)
	require.Greater(t, c.Delay(), before)
}

func TestObserveIgnoresZeroLatency(t *testing.T) {
	t.Parallel()

	c := New(Config{Enabled: true, BaseDelay: time.Second, MaxDelay: time.Minute, TargetConcurrency: 1.0})
	c.Observe(0, false)
	require.Equal(t, time.Second, c.Delay())
}

func TestDisabledControllerHoldsBaseDelay(t *testing.T) {
	t.Parallel()

	c := New(Config{Enabled: false, BaseDelay: time.Second, MaxDelay: time.Minute, TargetConcurrency: 1.0})
	c.Observe(time.Minute, true)
	require.Equal(t, time.Second, c.Delay())
}

func TestTargetConcurrencyScalesLatency(t *testing.T) {
	t.Parallel()

	c := New(Config{Enabled: true, BaseDelay: time.Second, MaxDelay: time.Minute, TargetConcurrency: 2.0})

	// (1s + 4s/2) / 2 = 1.5s
	c.Observe(4*time.Second, true)
	require.Equal(t, 1500*time.Millisecond, c.Delay())
}
