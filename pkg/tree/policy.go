package tree

import (
	"fmt"

	"github.com/aura-comms/aura/pkg/ids"
)

// PolicyKind discriminates the policy sum type.
type PolicyKind uint8

const (
	// PolicyAny is satisfied by any single leaf under the branch.
	PolicyAny PolicyKind = iota
	// PolicyThreshold requires k of the n leaves under the branch.
	PolicyThreshold
	// PolicyAll requires every sub-policy to be satisfied.
	PolicyAll
	// PolicyOneOf requires at least one sub-policy to be satisfied.
	PolicyOneOf
)

// Policy governs which leaf subsets can attest operations under a branch.
type Policy struct {
	Kind PolicyKind `cbor:"1,keyasint"`
	K    uint32     `cbor:"2,keyasint,omitempty"`
	N    uint32     `cbor:"3,keyasint,omitempty"`
	Sub  []Policy   `cbor:"4,keyasint,omitempty"`
}

// AnyPolicy returns the Any policy.
func AnyPolicy() Policy { return Policy{Kind: PolicyAny} }

// ThresholdPolicy returns a k-of-n policy.
func ThresholdPolicy(k, n uint32) Policy {
	return Policy{Kind: PolicyThreshold, K: k, N: n}
}

// AllOf combines sub-policies conjunctively.
func AllOf(sub ...Policy) Policy { return Policy{Kind: PolicyAll, Sub: sub} }

// OneOf combines sub-policies disjunctively.
func OneOf(sub ...Policy) Policy { return Policy{Kind: PolicyOneOf, Sub: sub} }

// CheckWellFormed validates the policy's internal structure against the
// number of leaves currently under its branch.
func (p Policy) CheckWellFormed(leafCount uint32) error {
	switch p.Kind {
	case PolicyAny:
		return nil
	case PolicyThreshold:
		if p.K < 1 || p.K > p.N {
			return fmt.Errorf("threshold %d-of-%d: want 1 <= k <= n", p.K, p.N)
		}
		if p.N != leafCount {
			return fmt.Errorf("threshold n=%d does not match %d leaves under branch", p.N, leafCount)
		}
		return nil
	case PolicyAll, PolicyOneOf:
		if len(p.Sub) == 0 {
			return fmt.Errorf("combinator policy with no sub-policies")
		}
		for _, s := range p.Sub {
			if err := s.CheckWellFormed(leafCount); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown policy kind %d", p.Kind)
	}
}

// Satisfied reports whether the given number of distinct signers under the
// branch satisfies the policy.
func (p Policy) Satisfied(signers uint32) bool {
	switch p.Kind {
	case PolicyAny:
		return signers >= 1
	case PolicyThreshold:
		return signers >= p.K
	case PolicyAll:
		for _, s := range p.Sub {
			if !s.Satisfied(signers) {
				return false
			}
		}
		return true
	case PolicyOneOf:
		for _, s := range p.Sub {
			if s.Satisfied(signers) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// encode produces the canonical byte form hashed into branch commitments.
func (p Policy) encode() []byte {
	out := []byte{byte(p.Kind)}
	out = append(out, ids.Uint32Bytes(p.K)...)
	out = append(out, ids.Uint32Bytes(p.N)...)
	out = append(out, ids.Uint32Bytes(uint32(len(p.Sub)))...)
	for _, s := range p.Sub {
		out = append(out, s.encode()...)
	}
	return out
}
