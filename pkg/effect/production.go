package effect

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/flow"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
	"github.com/aura-comms/aura/pkg/store"
	"github.com/aura-comms/aura/pkg/timeutil"
)

// Sender delivers an opaque payload to a peer authority.
type Sender interface {
	Send(ctx context.Context, to ids.AuthorityId, payload []byte) error
}

// Production executes effects against the real world: the device's flow
// ledger, its journal, durable storage, and the live transport.
type Production struct {
	Ledger  *flow.Ledger
	Journal *journal.Journal
	Store   store.Store
	Sender  Sender
	Clock   timeutil.Clock
	// Rand sources nonce bytes; crypto/rand when nil.
	Rand   io.Reader
	Logger *slog.Logger

	leakage leakageBook
}

// NewProduction wires a production interpreter.
func NewProduction(ledger *flow.Ledger, j *journal.Journal, st store.Store, sender Sender, clock timeutil.Clock, logger *slog.Logger) *Production {
	if logger == nil {
		logger = slog.Default()
	}
	return &Production{Ledger: ledger, Journal: j, Store: st, Sender: sender, Clock: clock, Logger: logger}
}

// Leakage returns the interpreter's accumulated leakage counters.
func (p *Production) Leakage() flow.LeakageCounters { return p.leakage.snapshot() }

// Execute implements Interpreter.
func (p *Production) Execute(ctx context.Context, cmd Command) (Result, error) {
	switch cmd.Kind {
	case KindChargeBudget:
		key := flow.BudgetKey{Context: cmd.Context, Authority: cmd.Authority}
		receipt, err := p.Ledger.Charge(key, cmd.Dst, cmd.Epoch, cmd.Cost)
		if err != nil {
			p.Logger.Warn("flow charge refused", "context", cmd.Context, "cost", cmd.Cost, "error", err)
			return Failure(err.Error()), nil
		}
		return ReceiptResult(receipt), nil

	case KindAppendJournal:
		if cmd.Fact == nil {
			return Result{}, fault.New(fault.Invalid, "MISSING_FACT", "append_journal command without fact")
		}
		p.Journal.AppendFact(*cmd.Fact)
		return Success(), nil

	case KindRecordLeakage:
		p.leakage.record(cmd.Observer, cmd.Bits, p.Clock.CurrentTimestamp())
		return Success(), nil

	case KindStoreMetadata:
		if err := p.Store.Store(cmd.Key, cmd.Value); err != nil {
			return Failure(err.Error()), nil
		}
		return Success(), nil

	case KindSendEnvelope:
		if err := p.Sender.Send(ctx, cmd.Dst, cmd.Payload); err != nil {
			p.Logger.Warn("envelope send failed", "dst", cmd.Dst, "error", err)
			return Failure(err.Error()), nil
		}
		return Success(), nil

	case KindGenerateNonce:
		src := p.Rand
		if src == nil {
			src = rand.Reader
		}
		buf := make([]byte, cmd.NonceLen)
		if _, err := io.ReadFull(src, buf); err != nil {
			return Result{}, fault.New(fault.Internal, "RNG_FAILED", "cannot read nonce bytes").WithCause(err)
		}
		return NonceResult(buf), nil

	default:
		return Result{}, fault.Newf(fault.Invalid, "UNKNOWN_COMMAND", "unknown effect command kind %d", cmd.Kind)
	}
}
