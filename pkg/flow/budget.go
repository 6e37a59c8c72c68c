package flow

import (
	"github.com/aura-comms/aura/pkg/ids"
)

// Budget is the per-(context, authority) spend quota for one epoch.
type Budget struct {
	Limit uint64    `cbor:"1,keyasint"`
	Spent uint64    `cbor:"2,keyasint"`
	Epoch ids.Epoch `cbor:"3,keyasint"`
}

// Headroom returns the remaining spend.
func (b Budget) Headroom() uint64 {
	if b.Spent >= b.Limit {
		return 0
	}
	return b.Limit - b.Spent
}

// CanCharge reports whether n fits in the remaining headroom.
func (b Budget) CanCharge(n uint64) bool { return n <= b.Headroom() }

// Join is the semilattice join: tighter limit, higher spend, newer epoch.
// When epochs differ the newer epoch's budget wins outright, since epoch
// rotation resets spend.
func (b Budget) Join(other Budget) Budget {
	if b.Epoch != other.Epoch {
		if other.Epoch > b.Epoch {
			return other
		}
		return b
	}
	out := b
	if other.Limit < out.Limit {
		out.Limit = other.Limit
	}
	if other.Spent > out.Spent {
		out.Spent = other.Spent
	}
	return out
}

// Rotate advances the budget to a newer epoch, resetting spend and
// installing the epoch's configured limit. Rotating to the current or an
// older epoch is a no-op.
func (b Budget) Rotate(epoch ids.Epoch, limit uint64) Budget {
	if epoch <= b.Epoch {
		return b
	}
	return Budget{Limit: limit, Spent: 0, Epoch: epoch}
}

// Receipt ties one successful charge to its context, authority, and
// monotonic nonce. A receipt exists iff the corresponding budget mutation
// committed.
type Receipt struct {
	Src     ids.AuthorityId `cbor:"1,keyasint"`
	Dst     ids.AuthorityId `cbor:"2,keyasint"`
	Context ids.ContextId   `cbor:"3,keyasint"`
	Epoch   ids.Epoch       `cbor:"4,keyasint"`
	Nonce   uint64          `cbor:"5,keyasint"`
	Cost    uint64          `cbor:"6,keyasint"`
}
