package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClock(t *testing.T) {
	clock := NewMockClockAt(1386374400)
	assert.Equal(t, int64(1386374400), clock.Now().Unix())

	clock.Advance(4 * time.Second)
	assert.Equal(t, int64(1386374404), clock.Now().Unix())

	clock.Set(time.Unix(10, 0))
	assert.Equal(t, int64(10), clock.Now().Unix())
}

func TestNewMockClock_ZeroUsesNow(t *testing.T) {
	before := time.Now()
	clock := NewMockClock(time.Time{})
	assert.False(t, clock.Now().Before(before))
}

func TestMockSleeper(t *testing.T) {
	clock := NewMockClockAt(100)
	sleeper := NewMockSleeper(clock)

	var seen []int
	sleeper.OnSleep(func(n int) { seen = append(seen, n) })

	require.NoError(t, sleeper.Sleep(context.Background(), time.Second))
	require.NoError(t, sleeper.Sleep(context.Background(), 2*time.Second))

	assert.Equal(t, 2, sleeper.Count())
	assert.Equal(t, int64(103), clock.Now().Unix())
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.Sleeps())
}

func TestMockSleeper_CanceledContext(t *testing.T) {
	sleeper := NewMockSleeper(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleeper.Sleep(ctx, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sleeper.Count())
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(t)
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.LessOrEqual(t, time.Until(deadline), TestTimeout)
}
