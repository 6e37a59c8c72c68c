package timeutil

import (
	"context"
	"sync"
	"time"

	"github.com/aura-comms/aura/pkg/ids"
)

// WakeCondition is a predicate a clock can wait on. It is re-evaluated
// whenever logical or wall time advances.
type WakeCondition func() bool

// TimeoutHandle identifies a pending timeout for cancellation.
type TimeoutHandle uint64

// Clock is the time effect contract. The simulation implementation
// satisfies the same signatures but advances logical time deterministically.
type Clock interface {
	// CurrentEpoch returns the clock's view of the current account epoch.
	CurrentEpoch() ids.Epoch
	// SetEpoch updates the clock's view of the account epoch.
	SetEpoch(e ids.Epoch)
	// CurrentTimestamp returns seconds since the Unix epoch.
	CurrentTimestamp() uint64
	// CurrentTimestampMillis returns milliseconds since the Unix epoch.
	CurrentTimestampMillis() uint64
	// SleepMs blocks for the given number of milliseconds or until the
	// context is cancelled.
	SleepMs(ctx context.Context, ms uint64) error
	// SleepUntil blocks until the clock's epoch reaches e.
	SleepUntil(ctx context.Context, e ids.Epoch) error
	// YieldUntil blocks until cond evaluates true.
	YieldUntil(ctx context.Context, cond WakeCondition) error
	// SetTimeout arranges for fn to run after ms milliseconds.
	SetTimeout(ms uint64, fn func()) TimeoutHandle
	// CancelTimeout cancels a pending timeout. Cancelling a fired or
	// unknown handle is a no-op.
	CancelTimeout(h TimeoutHandle)
}

// System is the wall-clock implementation of Clock.
type System struct {
	mu     sync.Mutex
	epoch  ids.Epoch
	nextID TimeoutHandle
	timers map[TimeoutHandle]*time.Timer
}

// NewSystem returns a wall-clock Clock starting at the given epoch.
func NewSystem(epoch ids.Epoch) *System {
	return &System{epoch: epoch, timers: make(map[TimeoutHandle]*time.Timer)}
}

func (s *System) CurrentEpoch() ids.Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *System) SetEpoch(e ids.Epoch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e > s.epoch {
		s.epoch = e
	}
}

func (s *System) CurrentTimestamp() uint64 { return uint64(time.Now().Unix()) }

func (s *System) CurrentTimestampMillis() uint64 { return uint64(time.Now().UnixMilli()) }

func (s *System) SleepMs(ctx context.Context, ms uint64) error {
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *System) SleepUntil(ctx context.Context, e ids.Epoch) error {
	return s.YieldUntil(ctx, func() bool { return s.CurrentEpoch() >= e })
}

func (s *System) YieldUntil(ctx context.Context, cond WakeCondition) error {
	const pollInterval = 10 * time.Millisecond
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return nil
}

func (s *System) SetTimeout(ms uint64, fn func()) TimeoutHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	h := s.nextID
	s.timers[h] = time.AfterFunc(time.Duration(ms)*time.Millisecond, func() {
		s.mu.Lock()
		delete(s.timers, h)
		s.mu.Unlock()
		fn()
	})
	return h
}

func (s *System) CancelTimeout(h TimeoutHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
}
