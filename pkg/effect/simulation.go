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

// EventKind names a recorded simulation event.
type EventKind uint8

const (
	EventBudgetCharged EventKind = iota + 1
	EventJournalAppended
	EventLeakageRecorded
	EventMetadataStored
	EventEnvelopeQueued
	EventNonceGenerated
)

// String returns the stable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventBudgetCharged:
		return "budget_charged"
	case EventJournalAppended:
		return "journal_appended"
	case EventLeakageRecorded:
		return "leakage_recorded"
	case EventMetadataStored:
		return "metadata_stored"
	case EventEnvelopeQueued:
		return "envelope_queued"
	case EventNonceGenerated:
		return "nonce_generated"
	default:
		return "unknown"
	}
}

// SimulationEvent is one successfully executed command, stamped with the
// logical time at which it ran. Events are serializable; a recorded
// sequence replayed against a fresh simulation with the same seed yields
// the same journal contents.
type SimulationEvent struct {
	Kind    EventKind     `cbor:"1,keyasint"`
	AtMs    uint64        `cbor:"2,keyasint"`
	Command Command       `cbor:"3,keyasint"`
	Receipt *flow.Receipt `cbor:"4,keyasint,omitempty"`
	Nonce   []byte        `cbor:"5,keyasint,omitempty"`
}

// Simulation executes effects against in-memory state under a
// controllable logical clock, recording every successful command.
type Simulation struct {
	Ledger  *flow.Ledger
	Journal *journal.Journal
	Store   store.Store
	Clock   *timeutil.Sim

	mu      sync.Mutex
	rng     *rand.Rand
	outbox  []QueuedEnvelope
	events  []SimulationEvent
	leakage leakageBook
}

// NewSimulation wires a simulation interpreter with a seeded RNG and a
// logical clock starting at startMs.
func NewSimulation(seed int64, startMs uint64, ledger *flow.Ledger, j *journal.Journal) *Simulation {
	return &Simulation{
		Ledger:  ledger,
		Journal: j,
		Store:   store.NewMemory(),
		Clock:   timeutil.NewSim(startMs),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Events returns the recorded event log in execution order.
func (s *Simulation) Events() []SimulationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SimulationEvent(nil), s.events...)
}

// Outbox returns the envelopes queued so far, in send order.
func (s *Simulation) Outbox() []QueuedEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QueuedEnvelope(nil), s.outbox...)
}

// Leakage returns the interpreter's accumulated leakage counters.
func (s *Simulation) Leakage() flow.LeakageCounters { return s.leakage.snapshot() }

func (s *Simulation) recordEvent(ev SimulationEvent) {
	ev.AtMs = s.Clock.CurrentTimestampMillis()
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

// Execute implements Interpreter.
func (s *Simulation) Execute(_ context.Context, cmd Command) (Result, error) {
	switch cmd.Kind {
	case KindChargeBudget:
		key := flow.BudgetKey{Context: cmd.Context, Authority: cmd.Authority}
		receipt, err := s.Ledger.Charge(key, cmd.Dst, cmd.Epoch, cmd.Cost)
		if err != nil {
			return Failure(err.Error()), nil
		}
		s.recordEvent(SimulationEvent{Kind: EventBudgetCharged, Command: cmd, Receipt: &receipt})
		return ReceiptResult(receipt), nil

	case KindAppendJournal:
		if cmd.Fact == nil {
			return Result{}, fault.New(fault.Invalid, "MISSING_FACT", "append_journal command without fact")
		}
		s.Journal.AppendFact(*cmd.Fact)
		s.recordEvent(SimulationEvent{Kind: EventJournalAppended, Command: cmd})
		return Success(), nil

	case KindRecordLeakage:
		s.leakage.record(cmd.Observer, cmd.Bits, s.Clock.CurrentTimestamp())
		s.recordEvent(SimulationEvent{Kind: EventLeakageRecorded, Command: cmd})
		return Success(), nil

	case KindStoreMetadata:
		if err := s.Store.Store(cmd.Key, cmd.Value); err != nil {
			return Failure(err.Error()), nil
		}
		s.recordEvent(SimulationEvent{Kind: EventMetadataStored, Command: cmd})
		return Success(), nil

	case KindSendEnvelope:
		s.mu.Lock()
		s.outbox = append(s.outbox, QueuedEnvelope{To: cmd.Dst, Payload: append([]byte(nil), cmd.Payload...)})
		s.mu.Unlock()
		s.recordEvent(SimulationEvent{Kind: EventEnvelopeQueued, Command: cmd})
		return Success(), nil

	case KindGenerateNonce:
		buf := make([]byte, cmd.NonceLen)
		s.mu.Lock()
		s.rng.Read(buf)
		s.mu.Unlock()
		s.recordEvent(SimulationEvent{Kind: EventNonceGenerated, Command: cmd, Nonce: buf})
		return NonceResult(buf), nil

	default:
		return Result{}, fault.Newf(fault.Invalid, "UNKNOWN_COMMAND", "unknown effect command kind %d", cmd.Kind)
	}
}

// Replay executes a recorded event sequence in order. Replaying against a
// fresh simulation with the same seed reproduces the original journal
// contents.
func (s *Simulation) Replay(ctx context.Context, events []SimulationEvent) error {
	for _, ev := range events {
		res, err := s.Execute(ctx, ev.Command)
		if err != nil {
			return err
		}
		if !res.OK() {
			return fault.Newf(fault.Invalid, "REPLAY_DIVERGED",
				"replayed %s command failed: %s", ev.Kind, res.Reason)
		}
	}
	return nil
}

// Deliver moves queued envelopes to a peer authority via deliver. Used by
// simulation harnesses to model the network step by step.
func (s *Simulation) Deliver(deliver func(to ids.AuthorityId, payload []byte)) int {
	s.mu.Lock()
	queued := s.outbox
	s.outbox = nil
	s.mu.Unlock()
	for _, env := range queued {
		deliver(env.To, env.Payload)
	}
	return len(queued)
}
