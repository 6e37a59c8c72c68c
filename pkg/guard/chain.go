package guard

import (
	"encoding/hex"

	"github.com/aura-comms/aura/pkg/effect"
	"github.com/aura-comms/aura/pkg/flow"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
)

// Denial reasons carry the name of the failing guard.
const (
	DeniedCapability = "capability"
	DeniedFlow       = "flow"
	DeniedPrivacy    = "privacy"
	DeniedInternal   = "internal"
)

// Metadata bits an envelope exposes when no explicit leakage profile is
// given. Relays see the epoch, counter, and routing tag; a directly
// connected peer additionally observes the padded size bucket and timing.
const (
	externalHeaderBits = 192
	neighborSizeBits   = 16
)

// Decision is the chain's verdict.
type Decision struct {
	Authorized bool
	Reason     string
}

// Outcome pairs the decision with the ordered effect commands to run.
// A denied outcome always carries an empty effect list.
type Outcome struct {
	Decision Decision
	Effects  []effect.Command
	// Deferred is set when the effect policy turned the direct operation
	// into a proposal or ceremony fact; DeferredAs names its flavor.
	Deferred   bool
	DeferredAs string
}

func denied(reason string) Outcome {
	return Outcome{Decision: Decision{Authorized: false, Reason: reason}}
}

// Chain evaluates requests through the fixed guard pipeline.
type Chain struct {
	Registry *Registry
	// CostFn computes a request's flow cost; nil selects the default
	// (explicit cost, else one unit per payload byte plus one).
	CostFn func(Request) uint64
}

// NewChain returns a chain over the given effect-policy registry.
func NewChain(reg *Registry) *Chain {
	return &Chain{Registry: reg}
}

func (c *Chain) costOf(req Request) uint64 {
	if c.CostFn != nil {
		return c.CostFn(req)
	}
	if req.Cost > 0 {
		return req.Cost
	}
	return 1 + uint64(len(req.Payload))
}

// leakageOf resolves the request's per-class metadata exposure.
func leakageOf(req Request) map[flow.ObserverClass]uint64 {
	if req.Leakage != nil {
		return req.Leakage
	}
	if len(req.Payload) == 0 {
		return nil
	}
	return map[flow.ObserverClass]uint64{
		flow.ObserverExternal: externalHeaderBits,
		flow.ObserverNeighbor: neighborSizeBits,
	}
}

// factKeyFor derives the journal key new facts are filed under. The
// snapshot's pre-allocated randomness keeps repeated identical requests
// distinct; without it the key is a deterministic digest of the request.
func factKeyFor(snap GuardSnapshot, req Request) string {
	if len(snap.Randomness) > 0 && len(snap.Randomness[0]) > 0 {
		return hex.EncodeToString(snap.Randomness[0])
	}
	h := ids.Hash(ids.DomainFact,
		req.Principal.Bytes(),
		[]byte(req.Operation),
		[]byte(req.Resource),
		req.Context.Bytes(),
		ids.EpochBytes(snap.Epoch),
		ids.Uint32Bytes(uint32(snap.Now)),
	)
	return h.String()
}

// ChargeAnnounce is the body of a budget-charged fact.
type ChargeAnnounce struct {
	Context ids.ContextId   `cbor:"1,keyasint"`
	Src     ids.AuthorityId `cbor:"2,keyasint"`
	Dst     ids.AuthorityId `cbor:"3,keyasint"`
	Epoch   ids.Epoch       `cbor:"4,keyasint"`
	Cost    uint64          `cbor:"5,keyasint"`
}

// EnvelopeAnnounce is the body of an envelope-sent fact.
type EnvelopeAnnounce struct {
	Dst  ids.AuthorityId `cbor:"1,keyasint"`
	Size uint64          `cbor:"2,keyasint"`
}

// DeferredOp is the body of a proposal or ceremony fact.
type DeferredOp struct {
	Operation string          `cbor:"1,keyasint"`
	Resource  string          `cbor:"2,keyasint"`
	Principal ids.AuthorityId `cbor:"3,keyasint"`
	Context   ids.ContextId   `cbor:"4,keyasint"`
	Ceremony  string          `cbor:"5,keyasint,omitempty"`
}

// Evaluate runs the guard pipeline. It is pure: the same snapshot and
// request always produce a bit-identical outcome, and every externally
// visible effect in the outcome is preceded by the journal fact that
// records it.
func (c *Chain) Evaluate(snap GuardSnapshot, req Request) Outcome {
	// 1. Capability.
	caps := snap.Capabilities[req.Principal]
	if !caps.Covers(req.Operation, req.Resource) {
		return denied(DeniedCapability)
	}

	// 2. Effect policy.
	decision := c.Registry.Lookup(req.Context, req.Operation)

	// 3. Flow budget.
	cost := c.costOf(req)
	budgetKey := flow.BudgetKey{Context: req.Context, Authority: req.Principal}
	if !snap.Budgets.HasBudget(budgetKey, snap.Epoch, cost) {
		return denied(DeniedFlow)
	}

	// 5 runs its veto before any effect is emitted, so a privacy denial
	// leaves no partial outcome.
	leaks := leakageOf(req)
	for _, class := range []flow.ObserverClass{flow.ObserverExternal, flow.ObserverNeighbor, flow.ObserverInGroup} {
		bits, ok := leaks[class]
		if !ok {
			continue
		}
		if !snap.Privacy.Allows(snap.Leakage, class, bits, snap.Now) {
			return denied(DeniedPrivacy)
		}
	}

	factKey := factKeyFor(snap, req)

	var effects []effect.Command
	effects = append(effects, effect.ChargeBudget(req.Context, req.Principal, req.Dst, snap.Epoch, cost))

	// 4. Journal coupling: the charge is recorded before any observable
	// effect runs.
	chargedFact, err := journal.NewFact(journal.KindBudgetCharged, factKey, snap.Epoch, req.Principal, ChargeAnnounce{
		Context: req.Context, Src: req.Principal, Dst: req.Dst, Epoch: snap.Epoch, Cost: cost,
	})
	if err != nil {
		return denied(DeniedInternal)
	}
	effects = append(effects, effect.AppendJournal(chargedFact))

	out := Outcome{Decision: Decision{Authorized: true}}
	switch decision.Kind {
	case CreateProposal, RunCeremony:
		kind := journal.KindProposal
		if decision.Kind == RunCeremony {
			kind = journal.KindCeremony
		}
		deferredFact, err := journal.NewFact(kind, factKey, snap.Epoch, req.Principal, DeferredOp{
			Operation: req.Operation, Resource: req.Resource,
			Principal: req.Principal, Context: req.Context,
			Ceremony: decision.Ceremony,
		})
		if err != nil {
			return denied(DeniedInternal)
		}
		effects = append(effects, effect.AppendJournal(deferredFact))
		out.Deferred = true
		out.DeferredAs = decision.Kind.String()

	default:
		if len(req.Payload) > 0 {
			sentFact, err := journal.NewFact(journal.KindEnvelopeSent, factKey, snap.Epoch, req.Principal, EnvelopeAnnounce{
				Dst: req.Dst, Size: uint64(len(req.Payload)),
			})
			if err != nil {
				return denied(DeniedInternal)
			}
			effects = append(effects, effect.AppendJournal(sentFact))
			effects = append(effects, effect.SendEnvelope(req.Dst, req.Payload))
		}
	}

	// 5. Leakage tracking, in fixed class order.
	for _, class := range []flow.ObserverClass{flow.ObserverExternal, flow.ObserverNeighbor, flow.ObserverInGroup} {
		if bits, ok := leaks[class]; ok && bits > 0 {
			effects = append(effects, effect.RecordLeakage(class, bits))
		}
	}

	out.Effects = effects
	return out
}
