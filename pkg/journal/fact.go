package journal

import (
	"bytes"

	"github.com/aura-comms/aura/pkg/flow"
	"github.com/aura-comms/aura/pkg/ids"
)

// FactKind names a fact domain. Each kind has a join that is commutative,
// associative, and idempotent, so fact maps form a join-semilattice.
type FactKind string

const (
	KindMembership      FactKind = "membership"
	KindCapability      FactKind = "capability"
	KindSession         FactKind = "session"
	KindIntent          FactKind = "intent"
	KindSnapshot        FactKind = "snapshot"
	KindAdminReplaced   FactKind = "admin-replaced"
	KindGCCompleted     FactKind = "gc-completed"
	KindBudgetCharged   FactKind = "budget-charged"
	KindFlowBudget      FactKind = "flow-budget"
	KindLeakage         FactKind = "leakage"
	KindDenied          FactKind = "denied"
	KindEnvelopeSent    FactKind = "envelope-sent"
	KindProposal        FactKind = "proposal"
	KindCeremony        FactKind = "ceremony"
	KindRecoveryInit    FactKind = "recovery-initiated"
	KindGuardianApprove FactKind = "guardian-approval"
	KindRecoveryDone    FactKind = "recovery-completed"
	KindResharing       FactKind = "resharing"
	KindHardFork        FactKind = "hard-fork"
)

// Fact is a typed, serializable record attached to a domain. Body is the
// canonical CBOR payload for the kind; Stamp is the content hash and
// doubles as the in-kind tiebreaker for last-writer-wins joins.
type Fact struct {
	Kind   FactKind        `cbor:"1,keyasint"`
	Key    string          `cbor:"2,keyasint"`
	Epoch  ids.Epoch       `cbor:"3,keyasint"`
	Author ids.AuthorityId `cbor:"4,keyasint"`
	Body   []byte          `cbor:"5,keyasint,omitempty"`
}

// Stamp returns the fact's content hash.
func (f Fact) Stamp() ids.Hash32 {
	return ids.Hash(ids.DomainFact,
		[]byte(f.Kind), []byte(f.Key), ids.EpochBytes(f.Epoch), f.Author.Bytes(), f.Body)
}

// factKey is the map key a fact occupies: facts of the same kind and key
// join; different keys coexist.
func (f Fact) factKey() string { return string(f.Kind) + "\x00" + f.Key }

// joinFunc merges two facts of the same kind and key.
type joinFunc func(a, b Fact) Fact

// joinLWW keeps the fact with the greater (epoch, stamp) pair. Max over a
// total order, so it satisfies the semilattice laws.
func joinLWW(a, b Fact) Fact {
	if a.Epoch != b.Epoch {
		if b.Epoch > a.Epoch {
			return b
		}
		return a
	}
	as, bs := a.Stamp(), b.Stamp()
	if as.Less(bs) {
		return b
	}
	return a
}

// semanticHeader merges the non-body fields of two facts with pointwise
// maxima, which keeps the composite join associative: epoch by max,
// author by byte order.
func semanticHeader(a, b Fact) Fact {
	out := a
	if b.Epoch > out.Epoch {
		out.Epoch = b.Epoch
	}
	if bytes.Compare(a.Author.Bytes(), b.Author.Bytes()) < 0 {
		out.Author = b.Author
	}
	return out
}

// joinFlowBudget decodes both bodies as flow.Budget and joins them with
// the budget CRDT formula. Undecodable bodies fall back to joinLWW so a
// malformed fact can never wedge a merge.
func joinFlowBudget(a, b Fact) Fact {
	var ba, bb flow.Budget
	if unmarshalCanonical(a.Body, &ba) != nil || unmarshalCanonical(b.Body, &bb) != nil {
		return joinLWW(a, b)
	}
	body, err := marshalCanonical(ba.Join(bb))
	if err != nil {
		return joinLWW(a, b)
	}
	out := semanticHeader(a, b)
	out.Body = body
	return out
}

// joinLeakage joins leakage counter facts elementwise.
func joinLeakage(a, b Fact) Fact {
	var ca, cb flow.LeakageCounters
	if unmarshalCanonical(a.Body, &ca) != nil || unmarshalCanonical(b.Body, &cb) != nil {
		return joinLWW(a, b)
	}
	body, err := marshalCanonical(ca.Join(cb))
	if err != nil {
		return joinLWW(a, b)
	}
	out := semanticHeader(a, b)
	out.Body = body
	return out
}

// factJoins maps kinds to their joins. Kinds without an entry use joinLWW,
// which is correct for facts that are written once per key (receipts,
// approvals, proposals) or that supersede by epoch (admin replacement).
var factJoins = map[FactKind]joinFunc{
	KindFlowBudget: joinFlowBudget,
	KindLeakage:    joinLeakage,
}

func joinFacts(a, b Fact) Fact {
	if j, ok := factJoins[a.Kind]; ok {
		return j(a, b)
	}
	return joinLWW(a, b)
}

// NewFact builds a fact with a canonically encoded body.
func NewFact(kind FactKind, key string, epoch ids.Epoch, author ids.AuthorityId, body any) (Fact, error) {
	f := Fact{Kind: kind, Key: key, Epoch: epoch, Author: author}
	if body != nil {
		b, err := marshalCanonical(body)
		if err != nil {
			return Fact{}, err
		}
		f.Body = b
	}
	return f, nil
}

// AdminReplacement is the body of an admin-replaced fact. Operations by
// OldAdmin at or after ActivationEpoch are rejected.
type AdminReplacement struct {
	Account         ids.AccountId   `cbor:"1,keyasint"`
	OldAdmin        ids.AuthorityId `cbor:"2,keyasint"`
	NewAdmin        ids.AuthorityId `cbor:"3,keyasint"`
	ActivationEpoch ids.Epoch       `cbor:"4,keyasint"`
}

// HardFork is the body of a hard-fork fact: sessions whose epoch precedes
// FenceEpoch are rejected after activation.
type HardFork struct {
	Version    string    `cbor:"1,keyasint"`
	FenceEpoch ids.Epoch `cbor:"2,keyasint"`
}

// Resharing is the body of a resharing fact: the fresh group key and the
// per-index share commitments dealt at Epoch. Sub-share delivery happens
// out of band; the fact pins only what verifiers need.
type Resharing struct {
	Epoch       ids.Epoch         `cbor:"1,keyasint"`
	Threshold   uint32            `cbor:"2,keyasint"`
	GroupKey    []byte            `cbor:"3,keyasint"`
	Commitments map[uint32][]byte `cbor:"4,keyasint"`
}

// DecodeResharing parses a resharing fact body.
func DecodeResharing(f Fact) (Resharing, error) {
	var r Resharing
	if err := unmarshalCanonical(f.Body, &r); err != nil {
		return Resharing{}, err
	}
	return r, nil
}

// DecodeAdminReplacement parses an admin-replaced fact body.
func DecodeAdminReplacement(f Fact) (AdminReplacement, error) {
	var r AdminReplacement
	if err := unmarshalCanonical(f.Body, &r); err != nil {
		return AdminReplacement{}, err
	}
	return r, nil
}

// DecodeHardFork parses a hard-fork fact body.
func DecodeHardFork(f Fact) (HardFork, error) {
	var h HardFork
	if err := unmarshalCanonical(f.Body, &h); err != nil {
		return HardFork{}, err
	}
	return h, nil
}
