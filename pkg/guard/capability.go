package guard

import (
	"sort"
)

// Wildcard matches any operation or resource.
const Wildcard = "*"

// Capability grants one operation on one resource. Either field may be
// the wildcard.
type Capability struct {
	Operation string `cbor:"1,keyasint"`
	Resource  string `cbor:"2,keyasint"`
}

// covers reports whether this grant admits the concrete pair.
func (c Capability) covers(operation, resource string) bool {
	if c.Operation != Wildcard && c.Operation != operation {
		return false
	}
	return c.Resource == Wildcard || c.Resource == resource
}

// subsumes reports whether this grant admits everything other admits.
func (c Capability) subsumes(other Capability) bool {
	if c.Operation != Wildcard && c.Operation != other.Operation {
		return false
	}
	return c.Resource == Wildcard || c.Resource == other.Resource
}

// CapabilitySet is a join-semilattice of grants: union loosens,
// intersection narrows for delegation, subset drives delegation checks.
type CapabilitySet struct {
	grants map[Capability]struct{}
}

// NewCapabilitySet builds a set from the given grants.
func NewCapabilitySet(grants ...Capability) CapabilitySet {
	s := CapabilitySet{grants: make(map[Capability]struct{}, len(grants))}
	for _, g := range grants {
		s.grants[g] = struct{}{}
	}
	return s
}

// Covers reports whether any grant admits the pair.
func (s CapabilitySet) Covers(operation, resource string) bool {
	for g := range s.grants {
		if g.covers(operation, resource) {
			return true
		}
	}
	return false
}

// Union is the semilattice join: the looser of the two sets.
func (s CapabilitySet) Union(other CapabilitySet) CapabilitySet {
	out := CapabilitySet{grants: make(map[Capability]struct{}, len(s.grants)+len(other.grants))}
	for g := range s.grants {
		out.grants[g] = struct{}{}
	}
	for g := range other.grants {
		out.grants[g] = struct{}{}
	}
	return out
}

// Intersect narrows to the grants admitted by both sides. A concrete
// grant survives when the other side holds it or a wildcard subsuming it.
// Used when delegating a capability set to another principal.
func (s CapabilitySet) Intersect(other CapabilitySet) CapabilitySet {
	out := CapabilitySet{grants: make(map[Capability]struct{})}
	for g := range s.grants {
		if other.admits(g) {
			out.grants[g] = struct{}{}
		}
	}
	for g := range other.grants {
		if s.admits(g) {
			out.grants[g] = struct{}{}
		}
	}
	return out
}

func (s CapabilitySet) admits(c Capability) bool {
	for g := range s.grants {
		if g.subsumes(c) {
			return true
		}
	}
	return false
}

// IsSubset reports whether every grant in s is admitted by other.
func (s CapabilitySet) IsSubset(other CapabilitySet) bool {
	for g := range s.grants {
		if !other.admits(g) {
			return false
		}
	}
	return true
}

// Len returns the number of grants.
func (s CapabilitySet) Len() int { return len(s.grants) }

// Grants returns the grants in deterministic order.
func (s CapabilitySet) Grants() []Capability {
	out := make([]Capability, 0, len(s.grants))
	for g := range s.grants {
		out = append(out, g)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Operation != out[b].Operation {
			return out[a].Operation < out[b].Operation
		}
		return out[a].Resource < out[b].Resource
	})
	return out
}
