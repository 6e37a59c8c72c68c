package effect

import (
	"context"
	"sync"

	"github.com/aura-comms/aura/pkg/flow"
)

// Interpreter executes a single effect command. Implementations may
// suspend on I/O; the command's semantics must not depend on wall time
// beyond what the interpreter's clock exposes.
type Interpreter interface {
	Execute(ctx context.Context, cmd Command) (Result, error)
}

// Run interprets commands strictly in order. It stops at the first
// failure or error and returns the results gathered so far, so a caller
// can tell exactly which command halted the sequence.
func Run(ctx context.Context, in Interpreter, cmds []Command) ([]Result, error) {
	results := make([]Result, 0, len(cmds))
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := in.Execute(ctx, cmd)
		results = append(results, res)
		if err != nil {
			return results, err
		}
		if !res.OK() {
			return results, nil
		}
	}
	return results, nil
}

// leakageBook accumulates metadata leakage per observer class within the
// rolling privacy window. Shared by all interpreters.
type leakageBook struct {
	mu       sync.Mutex
	counters flow.LeakageCounters
}

func (b *leakageBook) record(class flow.ObserverClass, bits, now uint64) flow.LeakageCounters {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now >= b.counters.WindowStart+flow.PrivacyWindowSeconds {
		b.counters = flow.LeakageCounters{WindowStart: now}
	}
	b.counters = b.counters.Add(class, bits)
	return b.counters
}

func (b *leakageBook) snapshot() flow.LeakageCounters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counters
}
