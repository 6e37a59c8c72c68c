package effect

import (
	"context"
	"math/rand"
	"sync"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/flow"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
	"github.com/aura-comms/aura/pkg/store"
	"github.com/aura-comms/aura/pkg/timeutil"
)

// QueuedEnvelope is one payload captured by the in-memory outbox.
type QueuedEnvelope struct {
	To      ids.AuthorityId
	Payload []byte
}

// Testing executes effects against in-memory state with seeded
// randomness: same seed, same nonces. Envelopes are queued rather than
// sent.
type Testing struct {
	Ledger  *flow.Ledger
	Journal *journal.Journal
	Store   store.Store
	Clock   timeutil.Clock

	mu      sync.Mutex
	rng     *rand.Rand
	outbox  []QueuedEnvelope
	leakage leakageBook
}

// NewTesting wires a testing interpreter around in-memory storage.
func NewTesting(seed int64, ledger *flow.Ledger, j *journal.Journal) *Testing {
	return &Testing{
		Ledger:  ledger,
		Journal: j,
		Store:   store.NewMemory(),
		Clock:   timeutil.NewSystem(0),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Outbox returns the envelopes queued so far, in send order.
func (t *Testing) Outbox() []QueuedEnvelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]QueuedEnvelope(nil), t.outbox...)
}

// Leakage returns the interpreter's accumulated leakage counters.
func (t *Testing) Leakage() flow.LeakageCounters { return t.leakage.snapshot() }

// Execute implements Interpreter.
func (t *Testing) Execute(_ context.Context, cmd Command) (Result, error) {
	switch cmd.Kind {
	case KindChargeBudget:
		key := flow.BudgetKey{Context: cmd.Context, Authority: cmd.Authority}
		receipt, err := t.Ledger.Charge(key, cmd.Dst, cmd.Epoch, cmd.Cost)
		if err != nil {
			return Failure(err.Error()), nil
		}
		return ReceiptResult(receipt), nil

	case KindAppendJournal:
		if cmd.Fact == nil {
			return Result{}, fault.New(fault.Invalid, "MISSING_FACT", "append_journal command without fact")
		}
		t.Journal.AppendFact(*cmd.Fact)
		return Success(), nil

	case KindRecordLeakage:
		t.leakage.record(cmd.Observer, cmd.Bits, t.Clock.CurrentTimestamp())
		return Success(), nil

	case KindStoreMetadata:
		if err := t.Store.Store(cmd.Key, cmd.Value); err != nil {
			return Failure(err.Error()), nil
		}
		return Success(), nil

	case KindSendEnvelope:
		t.mu.Lock()
		t.outbox = append(t.outbox, QueuedEnvelope{To: cmd.Dst, Payload: append([]byte(nil), cmd.Payload...)})
		t.mu.Unlock()
		return Success(), nil

	case KindGenerateNonce:
		buf := make([]byte, cmd.NonceLen)
		t.mu.Lock()
		t.rng.Read(buf)
		t.mu.Unlock()
		return NonceResult(buf), nil

	default:
		return Result{}, fault.Newf(fault.Invalid, "UNKNOWN_COMMAND", "unknown effect command kind %d", cmd.Kind)
	}
}
