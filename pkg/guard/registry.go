package guard

import (
	"github.com/aura-comms/aura/pkg/ids"
)

// EffectDecisionKind says how an operation's effects are applied.
type EffectDecisionKind uint8

const (
	// ApplyImmediate runs the effects in the same evaluation.
	ApplyImmediate EffectDecisionKind = iota
	// CreateProposal defers the operation into a proposal fact awaiting
	// approvals.
	CreateProposal
	// RunCeremony gates the operation behind an attested ceremony fact.
	RunCeremony
)

// String returns the stable name of the decision kind.
func (k EffectDecisionKind) String() string {
	switch k {
	case CreateProposal:
		return "create_proposal"
	case RunCeremony:
		return "run_ceremony"
	default:
		return "apply_immediate"
	}
}

// EffectDecision is the registry's verdict for one operation. For
// deferred kinds, Ceremony names the proposal or ceremony flavor.
type EffectDecision struct {
	Kind     EffectDecisionKind
	Ceremony string
}

// Registry maps operations to effect decisions. Context-specific
// overrides take precedence over defaults; an unregistered operation is
// applied immediately.
type Registry struct {
	defaults  map[string]EffectDecision
	overrides map[ids.ContextId]map[string]EffectDecision
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		defaults:  make(map[string]EffectDecision),
		overrides: make(map[ids.ContextId]map[string]EffectDecision),
	}
}

// SetDefault installs the account-wide decision for an operation.
func (r *Registry) SetDefault(operation string, d EffectDecision) {
	r.defaults[operation] = d
}

// SetOverride installs a per-context decision for an operation.
func (r *Registry) SetOverride(ctxID ids.ContextId, operation string, d EffectDecision) {
	m, ok := r.overrides[ctxID]
	if !ok {
		m = make(map[string]EffectDecision)
		r.overrides[ctxID] = m
	}
	m[operation] = d
}

// Lookup resolves the decision for an operation in a context.
func (r *Registry) Lookup(ctxID ids.ContextId, operation string) EffectDecision {
	if m, ok := r.overrides[ctxID]; ok {
		if d, ok := m[operation]; ok {
			return d
		}
	}
	if d, ok := r.defaults[operation]; ok {
		return d
	}
	return EffectDecision{Kind: ApplyImmediate}
}
