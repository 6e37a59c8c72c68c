package guard

import (
	"github.com/aura-comms/aura/pkg/flow"
	"github.com/aura-comms/aura/pkg/ids"
)

// GuardSnapshot is the immutable world the chain evaluates against. It
// is assembled by the agent before evaluation; the chain reads nothing
// else, which keeps evaluation pure and reproducible.
type GuardSnapshot struct {
	// Now is the snapshot timestamp in unix seconds. The chain never
	// reads the wall clock.
	Now   uint64
	Epoch ids.Epoch
	// Capabilities held by each principal.
	Capabilities map[ids.AuthorityId]CapabilitySet
	// Budgets is a point-in-time view of the flow ledger.
	Budgets flow.View
	// Leakage and Privacy drive the privacy veto.
	Leakage flow.LeakageCounters
	Privacy flow.PrivacyBudget
	// Metadata is opaque per-account state guards may consult.
	Metadata map[string][]byte
	// Randomness is pre-allocated entropy; the chain consumes it for
	// fact keys instead of generating its own.
	Randomness [][]byte
}

// Request asks the chain to authorize one operation.
type Request struct {
	Principal ids.AuthorityId
	Operation string
	Resource  string
	Context   ids.ContextId
	// Dst is the peer for send-style operations.
	Dst ids.AuthorityId
	// Cost overrides the computed flow cost when non-zero.
	Cost uint64
	// Payload is the envelope body for send-style operations.
	Payload []byte
	// Leakage gives the metadata bits this operation exposes per
	// observer class. Nil means the operation-kind default.
	Leakage map[flow.ObserverClass]uint64
}
