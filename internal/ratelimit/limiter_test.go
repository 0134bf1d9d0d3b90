package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/rampart/internal/clock"
)

func TestLimiter_Allow(t *testing.T) {
	l := NewLimiter(3, time.Minute, clock.NewMockClock(time.Now()))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("alice"), "attempt %d", i+1)
	}
	assert.False(t, l.Allow("alice"))
	assert.True(t, l.Allow("bob"), "keys are independent")
}

func TestLimiter_WindowRefill(t *testing.T) {
	clk := clock.NewMockClock(time.Now())
	l := NewLimiter(2, time.Minute, clk)

	l.Allow("k")
	l.Allow("k")
	assert.True(t, l.Exhausted("k"))
	assert.Equal(t, time.Minute, l.RetryAfter("k"))

	clk.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, l.RetryAfter("k"))

	clk.Advance(40 * time.Second)
	assert.False(t, l.Exhausted("k"))
	assert.True(t, l.Allow("k"))
	assert.Zero(t, l.RetryAfter("k"))
}

func TestLimiter_AllowN(t *testing.T) {
	l := NewLimiter(5, time.Minute, clock.NewMockClock(time.Now()))

	assert.True(t, l.AllowN("k", 4))
	assert.False(t, l.AllowN("k", 2), "nothing is taken when too few remain")
	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))
}

func TestLimiter_ExhaustedDoesNotConsume(t *testing.T) {
	l := NewLimiter(1, time.Minute, clock.NewMockClock(time.Now()))

	assert.False(t, l.Exhausted("unknown"))
	assert.Zero(t, l.Len(), "peeking does not create a bucket")

	assert.False(t, l.Exhausted("k"))
	assert.True(t, l.Allow("k"))
	assert.True(t, l.Exhausted("k"))
}

func TestLimiter_Reset(t *testing.T) {
	l := NewLimiter(1, time.Minute, clock.NewMockClock(time.Now()))

	l.Allow("k")
	require.False(t, l.Allow("k"))
	l.Reset("k")
	assert.True(t, l.Allow("k"))
}

func TestLimiter_CleanupExpired(t *testing.T) {
	clk := clock.NewMockClock(time.Now())
	l := NewLimiter(10, time.Minute, clk)

	l.Allow("old")
	clk.Advance(2 * time.Minute)
	l.Allow("new")
	require.Equal(t, 2, l.Len())

	l.CleanupExpired(time.Minute)
	assert.Equal(t, 1, l.Len())
	assert.False(t, l.Exhausted("new"))
}

func TestLimiter_RunCleanupStops(t *testing.T) {
	l := NewLimiter(1, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}
