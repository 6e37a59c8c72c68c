// Package agent wires the account runtime: the journal, the flow
// ledger, the guard chain, the effect interpreter, and the signing
// coordinator behind one handle. Exactly one agent owns an account's
// mutable state on a device; everything else goes through it.
package agent

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aura-comms/aura/pkg/audit"
	"github.com/aura-comms/aura/pkg/authz"
	"github.com/aura-comms/aura/pkg/effect"
	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/flow"
	"github.com/aura-comms/aura/pkg/guard"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
	"github.com/aura-comms/aura/pkg/store"
	"github.com/aura-comms/aura/pkg/timeutil"
)

// Fault codes returned by the agent.
const (
	CodeDenied        = "GUARD_DENIED"
	CodeNotAuthorized = "NOT_AUTHORIZED"
	CodeStaleSession  = "STALE_SESSION"
	CodeQuorumShort   = "QUORUM_SHORT"
	CodeDivergence    = "JOURNAL_DIVERGENCE"
)

// SignalCacheFloor is the reactive cell carrying the cache-epoch floor.
// Subscribers drop derived state below the announced epoch.
const SignalCacheFloor = "cache.epoch.floor"

// Attester produces threshold attestations over signing bytes. The
// signing coordinator is the production implementation.
type Attester interface {
	Attest(ctx context.Context, signingBytes []byte, epoch ids.Epoch) (journal.Attestation, error)
}

// Config carries the agent's collaborators. Journal, Ledger, Store,
// Clock, Chain, Interpreter, Attester, and Authorizer are required.
type Config struct {
	Account   ids.AccountId
	Authority ids.AuthorityId
	Admin     ids.AuthorityId

	Journal     *journal.Journal
	Ledger      *flow.Ledger
	Store       store.Store
	Clock       timeutil.Clock
	Chain       *guard.Chain
	Interpreter effect.Interpreter
	Attester    Attester
	Authorizer  *authz.Authorizer

	// Signals is the reactive cell graph; a private graph is created
	// when nil.
	Signals *effect.Signals
	// Audit receives lifecycle events; NopEmitter when nil.
	Audit audit.EventEmitter
	// Privacy bounds metadata leakage per observer class.
	Privacy flow.PrivacyBudget
	// Rand sources guard fact-key entropy; crypto/rand when nil.
	Rand   io.Reader
	Logger *slog.Logger
}

// Agent is the single-writer handle over one account's state.
type Agent struct {
	account   ids.AccountId
	authority ids.AuthorityId

	journal    *journal.Journal
	ledger     *flow.Ledger
	store      store.Store
	clock      timeutil.Clock
	chain      *guard.Chain
	interp     effect.Interpreter
	attester   Attester
	authorizer *authz.Authorizer
	signals    *effect.Signals
	audit      audit.EventEmitter
	privacy    flow.PrivacyBudget
	rand       io.Reader
	logger     *slog.Logger

	// fence is the writer fence: ordinary mutators hold it shared, the
	// snapshot ceremony holds it exclusively. It is stronger than the
	// journal's own lock because the ceremony spans several journal
	// operations that must see one consistent cut.
	fence sync.RWMutex

	mu    sync.Mutex
	admin ids.AuthorityId
	caps  map[ids.AuthorityId]guard.CapabilitySet
}

// New validates cfg and returns a wired agent.
func New(cfg Config) (*Agent, error) {
	switch {
	case cfg.Journal == nil:
		return nil, fault.New(fault.Invalid, "MISSING_JOURNAL", "agent requires a journal")
	case cfg.Ledger == nil:
		return nil, fault.New(fault.Invalid, "MISSING_LEDGER", "agent requires a flow ledger")
	case cfg.Store == nil:
		return nil, fault.New(fault.Invalid, "MISSING_STORE", "agent requires a store")
	case cfg.Clock == nil:
		return nil, fault.New(fault.Invalid, "MISSING_CLOCK", "agent requires a clock")
	case cfg.Chain == nil:
		return nil, fault.New(fault.Invalid, "MISSING_CHAIN", "agent requires a guard chain")
	case cfg.Interpreter == nil:
		return nil, fault.New(fault.Invalid, "MISSING_INTERPRETER", "agent requires an effect interpreter")
	case cfg.Attester == nil:
		return nil, fault.New(fault.Invalid, "MISSING_ATTESTER", "agent requires an attester")
	case cfg.Authorizer == nil:
		return nil, fault.New(fault.Invalid, "MISSING_AUTHORIZER", "agent requires an authorizer")
	}

	signals := cfg.Signals
	if signals == nil {
		signals = effect.NewSignals()
	}
	if err := signals.Register(SignalCacheFloor, ids.Epoch(0)); err != nil {
		return nil, err
	}
	emitter := cfg.Audit
	if emitter == nil {
		emitter = audit.NopEmitter{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.Reader
	}

	return &Agent{
		account:    cfg.Account,
		authority:  cfg.Authority,
		journal:    cfg.Journal,
		ledger:     cfg.Ledger,
		store:      cfg.Store,
		clock:      cfg.Clock,
		chain:      cfg.Chain,
		interp:     cfg.Interpreter,
		attester:   cfg.Attester,
		authorizer: cfg.Authorizer,
		signals:    signals,
		audit:      emitter,
		privacy:    cfg.Privacy,
		rand:       rnd,
		logger:     logger,
		admin:      cfg.Admin,
		caps:       make(map[ids.AuthorityId]guard.CapabilitySet),
	}, nil
}

// Account returns the account this agent serves.
func (a *Agent) Account() ids.AccountId { return a.account }

// Signals exposes the reactive cell graph for subscribers.
func (a *Agent) Signals() *effect.Signals { return a.signals }

// Journal exposes the underlying journal for read-side consumers.
func (a *Agent) Journal() *journal.Journal { return a.journal }

// Admin returns the current admin authority.
func (a *Agent) Admin() ids.AuthorityId {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.admin
}

// Grant adds capabilities to a principal and announces the grant as a
// capability fact so peers learn it on sync.
func (a *Agent) Grant(principal ids.AuthorityId, caps ...guard.Capability) error {
	a.mu.Lock()
	cur := a.caps[principal]
	a.caps[principal] = cur.Union(guard.NewCapabilitySet(caps...))
	a.mu.Unlock()

	f, err := journal.NewFact(journal.KindCapability, principal.String(),
		a.clock.CurrentEpoch(), a.authority, caps)
	if err != nil {
		return err
	}
	a.journal.AppendFact(f)
	return nil
}

// Submit runs one operation through the guard chain and, when
// authorized, executes the resulting effects in order. A denial appends
// a denied fact and emits a guard.deny audit event before failing.
func (a *Agent) Submit(ctx context.Context, req guard.Request) (guard.Outcome, []effect.Result, error) {
	a.fence.RLock()
	defer a.fence.RUnlock()

	snap := a.guardSnapshot()
	out := a.chain.Evaluate(snap, req)

	if !out.Decision.Authorized {
		a.recordDenial(snap, req, out.Decision.Reason)
		return out, nil, fault.Newf(fault.PermissionDenied, CodeDenied,
			"operation %s denied by %s guard", req.Operation, out.Decision.Reason)
	}
	if out.Deferred {
		a.emit(audit.NewGuardDefer(a.eventTime(), req.Principal, req.Operation, out.DeferredAs))
	}

	results, err := effect.Run(ctx, a.interp, out.Effects)
	return out, results, err
}

// guardSnapshot assembles the immutable world the chain evaluates
// against. Entropy for fact keys is pre-allocated here so evaluation
// itself stays pure.
func (a *Agent) guardSnapshot() guard.GuardSnapshot {
	a.mu.Lock()
	caps := make(map[ids.AuthorityId]guard.CapabilitySet, len(a.caps))
	for k, v := range a.caps {
		caps[k] = v
	}
	a.mu.Unlock()

	var leakage flow.LeakageCounters
	if lk, ok := a.interp.(interface{ Leakage() flow.LeakageCounters }); ok {
		leakage = lk.Leakage()
	}

	var randomness [][]byte
	buf := make([]byte, 16)
	if _, err := io.ReadFull(a.rand, buf); err == nil {
		randomness = [][]byte{buf}
	}

	return guard.GuardSnapshot{
		Now:          a.clock.CurrentTimestamp(),
		Epoch:        a.clock.CurrentEpoch(),
		Capabilities: caps,
		Budgets:      a.ledger.View(),
		Leakage:      leakage,
		Privacy:      a.privacy,
		Randomness:   randomness,
	}
}

// denialNote is the body of a denied fact.
type denialNote struct {
	Operation string `cbor:"1,keyasint"`
	Resource  string `cbor:"2,keyasint"`
	Reason    string `cbor:"3,keyasint"`
}

func (a *Agent) recordDenial(snap guard.GuardSnapshot, req guard.Request, reason string) {
	key := ids.Hash(ids.DomainFact,
		req.Principal.Bytes(),
		[]byte(req.Operation),
		[]byte(req.Resource),
		ids.EpochBytes(snap.Epoch),
		ids.Uint32Bytes(uint32(snap.Now)),
	).String()

	f, err := journal.NewFact(journal.KindDenied, key, snap.Epoch, req.Principal, denialNote{
		Operation: req.Operation, Resource: req.Resource, Reason: reason,
	})
	if err != nil {
		a.logger.Error("denied fact encode failed", "error", err)
		return
	}
	a.journal.AppendFact(f)
	a.emit(audit.NewGuardDeny(a.eventTime(), req.Principal, req.Operation, req.Resource, reason))
}

// authorize gates a maintenance action through the policy engine. The
// admin_replaced context flag is computed from the journal so a replaced
// admin loses authority exactly at its activation epoch.
func (a *Agent) authorize(ctx context.Context, p authz.Principal, action string) error {
	d := a.authorizer.Authorize(ctx, authz.Request{
		Principal: p,
		Action:    action,
		Resource:  authz.AccountResource(a.account),
		Context:   map[string]any{"admin_replaced": a.adminReplaced(p)},
	})
	if !d.Allowed {
		return fault.Newf(fault.PermissionDenied, CodeNotAuthorized,
			"%s refused for %s: %s", action, p.UID, d.Reason)
	}
	return nil
}

// adminReplaced reports whether p is a replaced admin whose activation
// epoch has passed.
func (a *Agent) adminReplaced(p authz.Principal) bool {
	f, ok := a.journal.GetFact(journal.KindAdminReplaced, a.account.String())
	if !ok {
		return false
	}
	r, err := journal.DecodeAdminReplacement(f)
	if err != nil {
		a.logger.Error("admin replacement fact decode failed", "error", err)
		return false
	}
	return p.UID == r.OldAdmin.String() && a.clock.CurrentEpoch() >= r.ActivationEpoch
}

// CacheFloor reads the current cache-epoch floor.
func (a *Agent) CacheFloor() ids.Epoch {
	v, err := a.signals.Read(SignalCacheFloor)
	if err != nil {
		return 0
	}
	floor, _ := v.(ids.Epoch)
	return floor
}

func (a *Agent) emit(ev audit.Event) {
	if err := a.audit.Emit(ev); err != nil {
		a.logger.Warn("audit emit failed", "event", ev.Type, "error", err)
	}
}

func (a *Agent) eventTime() time.Time {
	return time.Unix(int64(a.clock.CurrentTimestamp()), 0).UTC()
}
