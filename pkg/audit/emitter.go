package audit

import (
	"log/slog"
	"sync"
)

// EventEmitter accepts structured audit events for recording.
type EventEmitter interface {
	Emit(Event) error
}

// NopEmitter discards all events. Use when no audit backend is configured.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(Event) error { return nil }

// SlogEmitter writes events to a structured logger, mapping syslog
// severities to slog levels.
type SlogEmitter struct {
	Logger *slog.Logger
}

// Emit writes the event as one structured log line.
func (e SlogEmitter) Emit(ev Event) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]any, 0, 4+2*len(ev.Details))
	attrs = append(attrs, "event", string(ev.Type), "at", ev.Timestamp)
	if ev.ActorID != "" {
		attrs = append(attrs, "actor", ev.ActorID)
	}
	for k, v := range ev.Details {
		attrs = append(attrs, k, v)
	}
	switch ev.Severity {
	case SeverityWarning:
		logger.Warn("audit", attrs...)
	default:
		logger.Info("audit", attrs...)
	}
	return nil
}

// Multi fans events out to several backends. A failing backend is logged
// and skipped; audit failures must not block the operation being audited.
type Multi struct {
	backends []EventEmitter
	logger   *slog.Logger
}

// NewMulti creates a fan-out emitter. If logger is nil, slog.Default() is
// used for error reporting.
func NewMulti(logger *slog.Logger, backends ...EventEmitter) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{backends: backends, logger: logger}
}

// Emit writes the event to every backend. Always returns nil.
func (m *Multi) Emit(ev Event) error {
	for _, b := range m.backends {
		if err := b.Emit(ev); err != nil {
			m.logger.Error("audit emit failed", "event", string(ev.Type), "error", err)
		}
	}
	return nil
}

// Recorder keeps emitted events in memory. Used by tests and the
// simulation interpreter's inspection surface.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends the event.
func (r *Recorder) Emit(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything emitted so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// ByType returns the emitted events of one type, in order.
func (r *Recorder) ByType(et EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == et {
			out = append(out, ev)
		}
	}
	return out
}
