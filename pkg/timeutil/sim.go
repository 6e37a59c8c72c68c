package timeutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aura-comms/aura/pkg/ids"
)

// Sim is a deterministic logical clock. Time only moves when Advance is
// called, which makes suspension points controllable from tests and the
// simulation interpreter.
type Sim struct {
	mu      sync.Mutex
	nowMs   uint64
	epoch   ids.Epoch
	nextID  TimeoutHandle
	pending []simTimeout
	waiters []chan struct{}
}

type simTimeout struct {
	handle TimeoutHandle
	fireAt uint64
	fn     func()
}

// NewSim returns a logical clock starting at the given millisecond offset.
func NewSim(startMs uint64) *Sim {
	return &Sim{nowMs: startMs}
}

func (s *Sim) CurrentEpoch() ids.Epoch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Sim) SetEpoch(e ids.Epoch) {
	s.mu.Lock()
	if e > s.epoch {
		s.epoch = e
	}
	s.mu.Unlock()
	s.wakeAll()
}

func (s *Sim) CurrentTimestamp() uint64 {
	return s.CurrentTimestampMillis() / 1000
}

func (s *Sim) CurrentTimestampMillis() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nowMs
}

// Advance moves logical time forward, firing any timeouts that come due in
// order. Timeout callbacks run on the calling goroutine.
func (s *Sim) Advance(d time.Duration) {
	s.mu.Lock()
	s.nowMs += uint64(d.Milliseconds())
	now := s.nowMs
	var due []simTimeout
	var rest []simTimeout
	for _, t := range s.pending {
		if t.fireAt <= now {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	s.pending = rest
	s.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].fireAt < due[j].fireAt })
	for _, t := range due {
		t.fn()
	}
	s.wakeAll()
}

func (s *Sim) SleepMs(ctx context.Context, ms uint64) error {
	s.mu.Lock()
	deadline := s.nowMs + ms
	s.mu.Unlock()
	return s.YieldUntil(ctx, func() bool { return s.CurrentTimestampMillis() >= deadline })
}

func (s *Sim) SleepUntil(ctx context.Context, e ids.Epoch) error {
	return s.YieldUntil(ctx, func() bool { return s.CurrentEpoch() >= e })
}

func (s *Sim) YieldUntil(ctx context.Context, cond WakeCondition) error {
	for !cond() {
		ch := make(chan struct{}, 1)
		s.mu.Lock()
		s.waiters = append(s.waiters, ch)
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
	return nil
}

func (s *Sim) SetTimeout(ms uint64, fn func()) TimeoutHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	h := s.nextID
	s.pending = append(s.pending, simTimeout{handle: h, fireAt: s.nowMs + ms, fn: fn})
	return h
}

func (s *Sim) CancelTimeout(h TimeoutHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.pending {
		if t.handle == h {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

func (s *Sim) wakeAll() {
	s.mu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()
	for _, ch := range waiters {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
