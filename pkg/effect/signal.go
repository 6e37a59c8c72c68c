package effect

import (
	"sync"

	"github.com/aura-comms/aura/pkg/fault"
)

// Update is one value delivered to a signal subscriber. Lagged marks a
// delivery after the subscriber's buffer overflowed; its Value is the
// cell's current value, so a slow subscriber resumes from fresh state.
type Update struct {
	Seq    uint64
	Value  any
	Lagged bool
}

// Signals is a typed cell graph: named values with ordered, bounded
// fan-out to subscribers. The agent uses it to broadcast the cache-epoch
// floor and maintenance state.
type Signals struct {
	mu    sync.Mutex
	cells map[string]*cell
}

type cell struct {
	value any
	seq   uint64
	subs  map[*Subscription]struct{}
}

// Subscription receives updates for one cell in publication order.
type Subscription struct {
	ch     chan Update
	lagged bool
	closed bool
}

// C is the subscriber's receive channel.
func (s *Subscription) C() <-chan Update { return s.ch }

// NewSignals returns an empty signal graph.
func NewSignals() *Signals {
	return &Signals{cells: make(map[string]*cell)}
}

// Register creates a cell with an initial value. Registering an existing
// id fails.
func (g *Signals) Register(id string, initial any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.cells[id]; ok {
		return fault.Newf(fault.Invalid, "SIGNAL_EXISTS", "signal %q already registered", id)
	}
	g.cells[id] = &cell{value: initial, subs: make(map[*Subscription]struct{})}
	return nil
}

// Read returns the cell's current value.
func (g *Signals) Read(id string) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cells[id]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "SIGNAL_UNKNOWN", "signal %q not registered", id)
	}
	return c.value, nil
}

// Emit publishes a new value. Subscribers with a full buffer miss the
// update and are marked lagged; their next delivery carries the current
// value with Lagged set.
func (g *Signals) Emit(id string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cells[id]
	if !ok {
		return fault.Newf(fault.NotFound, "SIGNAL_UNKNOWN", "signal %q not registered", id)
	}
	c.value = value
	c.seq++
	for sub := range c.subs {
		g.deliverLocked(c, sub)
	}
	return nil
}

func (g *Signals) deliverLocked(c *cell, sub *Subscription) {
	if sub.closed {
		return
	}
	up := Update{Seq: c.seq, Value: c.value, Lagged: sub.lagged}
	select {
	case sub.ch <- up:
		sub.lagged = false
	default:
		sub.lagged = true
	}
}

// Subscribe attaches a subscriber with the given buffer capacity. The
// first delivered update is the cell's current value.
func (g *Signals) Subscribe(id string, buffer int) (*Subscription, error) {
	if buffer < 1 {
		buffer = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cells[id]
	if !ok {
		return nil, fault.Newf(fault.NotFound, "SIGNAL_UNKNOWN", "signal %q not registered", id)
	}
	sub := &Subscription{ch: make(chan Update, buffer)}
	c.subs[sub] = struct{}{}
	sub.ch <- Update{Seq: c.seq, Value: c.value}
	return sub, nil
}

// Unsubscribe detaches the subscriber from the cell and closes its
// channel.
func (g *Signals) Unsubscribe(id string, sub *Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.cells[id]
	if !ok {
		return
	}
	if _, attached := c.subs[sub]; !attached {
		return
	}
	delete(c.subs, sub)
	sub.closed = true
	close(sub.ch)
}
