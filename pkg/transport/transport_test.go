package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
)

func TestSendAndReceive(t *testing.T) {
	net := NewNetwork(4)
	alice := ids.NewAuthorityId()
	bob := ids.NewAuthorityId()
	a := net.Attach(alice)
	b := net.Attach(bob)

	require.NoError(t, a.Send(context.Background(), bob, []byte("hello")))

	d, ok := b.TryRecv()
	require.True(t, ok)
	assert.Equal(t, alice, d.From)
	assert.Equal(t, []byte("hello"), d.Payload)
}

func TestSendCopiesPayload(t *testing.T) {
	net := NewNetwork(4)
	a := net.Attach(ids.NewAuthorityId())
	bob := ids.NewAuthorityId()
	b := net.Attach(bob)

	buf := []byte("original")
	require.NoError(t, a.Send(context.Background(), bob, buf))
	buf[0] = 'X'

	d, ok := b.TryRecv()
	require.True(t, ok)
	assert.Equal(t, []byte("original"), d.Payload)
}

func TestSendToUnknownPeer(t *testing.T) {
	net := NewNetwork(4)
	a := net.Attach(ids.NewAuthorityId())

	err := a.Send(context.Background(), ids.NewAuthorityId(), []byte("x"))
	require.Error(t, err)
	assert.Equal(t, CodeUnknownPeer, fault.CodeOf(err))
	assert.False(t, fault.Retryable(err))
}

func TestFullInboxRefusesWithRetryableOverload(t *testing.T) {
	net := NewNetwork(2)
	a := net.Attach(ids.NewAuthorityId())
	bob := ids.NewAuthorityId()
	b := net.Attach(bob)

	require.NoError(t, a.Send(context.Background(), bob, []byte("1")))
	require.NoError(t, a.Send(context.Background(), bob, []byte("2")))

	err := a.Send(context.Background(), bob, []byte("3"))
	require.Error(t, err)
	assert.Equal(t, CodeOverloaded, fault.CodeOf(err))
	assert.True(t, fault.Retryable(err), "overload must be retryable")

	// Draining one slot admits the next send.
	_, ok := b.TryRecv()
	require.True(t, ok)
	assert.NoError(t, a.Send(context.Background(), bob, []byte("3")))
	assert.Equal(t, 2, b.Pending())
}

func TestRecvRespectsContext(t *testing.T) {
	net := NewNetwork(1)
	a := net.Attach(ids.NewAuthorityId())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := a.Recv(ctx)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Cancelled))
}

func TestRetrySucceedsAfterDrain(t *testing.T) {
	net := NewNetwork(1)
	a := net.Attach(ids.NewAuthorityId())
	bob := ids.NewAuthorityId()
	b := net.Attach(bob)

	require.NoError(t, a.Send(context.Background(), bob, []byte("fill")))

	cfg := RetryConfig{InitialDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2, MaxAttempts: 10, Jitter: 0}
	go func() {
		time.Sleep(15 * time.Millisecond)
		b.TryRecv()
	}()

	err := Retry(context.Background(), cfg, func() error {
		return a.Send(context.Background(), bob, []byte("queued"))
	})
	assert.NoError(t, err)
}

func TestRetryStopsOnNonRetryableFault(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return fault.New(fault.Invalid, "BAD_INPUT", "not transient")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "BAD_INPUT", fault.CodeOf(err))
}

func TestRetryExhaustsAttempts(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1, MaxAttempts: 3, Jitter: 0}
	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		return fault.New(fault.Network, CodeOverloaded, "still full")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, CodeRetryExhausted, fault.CodeOf(err))
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, DefaultRetryConfig(), func() error {
		t.Fatal("fn must not run with a cancelled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Hour})
	failing := func() error { return fault.New(fault.Network, CodeOverloaded, "down") }

	for i := 0; i < 3; i++ {
		require.Error(t, cb.Execute(failing))
	}
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(func() error { return nil })
	require.Error(t, err)
	assert.Equal(t, CodeCircuitOpen, fault.CodeOf(err))
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	require.Error(t, cb.Execute(func() error { return fault.New(fault.Network, CodeOverloaded, "down") }))
	assert.Equal(t, CircuitOpen, cb.State())

	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	require.Error(t, cb.Execute(func() error { return fault.New(fault.Network, CodeOverloaded, "down") }))
	assert.Equal(t, CircuitOpen, cb.State())

	cb.Reset()
	assert.Equal(t, CircuitClosed, cb.State())
}
