package flow

// ObserverClass names the three adversary positions the privacy budget
// defends against.
type ObserverClass uint8

const (
	// ObserverExternal sees only ciphertext sizes and timing.
	ObserverExternal ObserverClass = iota
	// ObserverNeighbor is a directly connected peer.
	ObserverNeighbor
	// ObserverInGroup is a member of the same account or context.
	ObserverInGroup
)

// String returns the stable name of the observer class.
func (o ObserverClass) String() string {
	switch o {
	case ObserverExternal:
		return "external"
	case ObserverNeighbor:
		return "neighbor"
	case ObserverInGroup:
		return "in_group"
	default:
		return "unknown"
	}
}

// LeakageCounters tracks metadata bits exposed to each observer class
// within one rolling window. Counters only grow; join is elementwise max,
// which makes the value a semilattice suitable for the journal.
type LeakageCounters struct {
	WindowStart uint64 `cbor:"1,keyasint"` // unix seconds
	External    uint64 `cbor:"2,keyasint"`
	Neighbor    uint64 `cbor:"3,keyasint"`
	InGroup     uint64 `cbor:"4,keyasint"`
}

// Join merges two counter sets. A newer window supersedes an older one.
func (c LeakageCounters) Join(other LeakageCounters) LeakageCounters {
	if c.WindowStart != other.WindowStart {
		if other.WindowStart > c.WindowStart {
			return other
		}
		return c
	}
	out := c
	if other.External > out.External {
		out.External = other.External
	}
	if other.Neighbor > out.Neighbor {
		out.Neighbor = other.Neighbor
	}
	if other.InGroup > out.InGroup {
		out.InGroup = other.InGroup
	}
	return out
}

// Add returns the counters with bits added to the given class.
func (c LeakageCounters) Add(class ObserverClass, bits uint64) LeakageCounters {
	out := c
	switch class {
	case ObserverExternal:
		out.External += bits
	case ObserverNeighbor:
		out.Neighbor += bits
	case ObserverInGroup:
		out.InGroup += bits
	}
	return out
}

// Get returns the counter for the given class.
func (c LeakageCounters) Get(class ObserverClass) uint64 {
	switch class {
	case ObserverExternal:
		return c.External
	case ObserverNeighbor:
		return c.Neighbor
	case ObserverInGroup:
		return c.InGroup
	default:
		return 0
	}
}

// PrivacyWindowSeconds is the rolling window over which leakage budgets
// apply.
const PrivacyWindowSeconds = 24 * 60 * 60

// PrivacyBudget is the per-class allowance within one window.
type PrivacyBudget struct {
	External uint64
	Neighbor uint64
	InGroup  uint64
}

// Allows reports whether adding bits to class keeps every counter within
// budget, rolling the window forward at now if it has expired.
func (p PrivacyBudget) Allows(c LeakageCounters, class ObserverClass, bits uint64, now uint64) bool {
	if now >= c.WindowStart+PrivacyWindowSeconds {
		c = LeakageCounters{WindowStart: now}
	}
	next := c.Add(class, bits)
	return next.External <= p.External && next.Neighbor <= p.Neighbor && next.InGroup <= p.InGroup
}
