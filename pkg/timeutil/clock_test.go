package timeutil

import (
	"context"
	"testing"
	"time"

	"github.com/aura-comms/aura/pkg/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimAdvanceMovesTime(t *testing.T) {
	c := NewSim(1000)
	assert.Equal(t, uint64(1000), c.CurrentTimestampMillis())
	assert.Equal(t, uint64(1), c.CurrentTimestamp())

	c.Advance(2500 * time.Millisecond)
	assert.Equal(t, uint64(3500), c.CurrentTimestampMillis())
	assert.Equal(t, uint64(3), c.CurrentTimestamp())
}

func TestSimSleepWakesOnAdvance(t *testing.T) {
	c := NewSim(0)
	done := make(chan error, 1)
	go func() {
		done <- c.SleepMs(context.Background(), 100)
	}()

	// Not enough time: sleeper must still be blocked.
	c.Advance(50 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("sleep returned before deadline")
	case <-time.After(20 * time.Millisecond):
	}

	c.Advance(60 * time.Millisecond)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sleep did not wake")
	}
}

func TestSimTimeoutsFireInOrder(t *testing.T) {
	c := NewSim(0)
	var fired []int
	c.SetTimeout(30, func() { fired = append(fired, 30) })
	c.SetTimeout(10, func() { fired = append(fired, 10) })
	h := c.SetTimeout(20, func() { fired = append(fired, 20) })
	c.CancelTimeout(h)

	c.Advance(50 * time.Millisecond)
	assert.Equal(t, []int{10, 30}, fired)
}

func TestSimSleepUntilEpoch(t *testing.T) {
	c := NewSim(0)
	done := make(chan struct{})
	go func() {
		_ = c.SleepUntil(context.Background(), ids.Epoch(5))
		close(done)
	}()
	c.SetEpoch(3)
	select {
	case <-done:
		t.Fatal("woke before target epoch")
	case <-time.After(20 * time.Millisecond):
	}
	c.SetEpoch(5)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("did not wake at target epoch")
	}
}

func TestSimSleepCancellation(t *testing.T) {
	c := NewSim(0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.SleepMs(ctx, 1000) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled sleep did not return")
	}
}

func TestSystemClockEpochMonotonic(t *testing.T) {
	c := NewSystem(10)
	c.SetEpoch(5) // stale updates are ignored
	assert.Equal(t, ids.Epoch(10), c.CurrentEpoch())
	c.SetEpoch(12)
	assert.Equal(t, ids.Epoch(12), c.CurrentEpoch())
}

func TestRelativeFormatting(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		t    time.Time
		want string
	}{
		{now.Add(-30 * time.Second), "moments ago"},
		{now.Add(-5 * time.Minute), "5 minutes ago"},
		{now.Add(-1 * time.Hour), "1 hour ago"},
		{now.Add(2 * time.Hour), "in 2 hours"},
		{now.Add(-3 * 24 * time.Hour), "3 days ago"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, relativeTo(tc.t, now))
	}
}
