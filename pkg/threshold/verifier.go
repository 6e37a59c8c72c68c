package threshold

import (
	"bytes"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
	"github.com/aura-comms/aura/pkg/tree"
)

// Verifier checks record attestations for the journal: the aggregate
// signature must verify against the group key, every listed signer must
// be a device leaf in the roster at the record's parent epoch, and the
// signer count must reach the quorum.
type Verifier struct {
	// MinSigners is the account's signing threshold.
	MinSigners uint32
	// GroupKey, when set, pins the expected group verifying key.
	// Attestations under any other key are rejected.
	GroupKey []byte
}

// Verify implements journal.AttestationVerifier.
func (v Verifier) Verify(signingBytes []byte, att journal.Attestation, roster []*tree.LeafNode) error {
	if len(att.Signers) < int(v.MinSigners) {
		return fault.Newf(fault.PermissionDenied, CodeInsufficientSigners,
			"%d signers below threshold %d", len(att.Signers), v.MinSigners)
	}
	if v.GroupKey != nil && !bytes.Equal(v.GroupKey, att.GroupKey) {
		return fault.New(fault.PermissionDenied, CodeMalformedKey, "attestation signed under an unexpected group key")
	}

	byLeaf := make(map[ids.LeafId]*tree.LeafNode, len(roster))
	for _, l := range roster {
		byLeaf[l.LeafId] = l
	}
	seen := make(map[ids.LeafId]bool, len(att.Signers))
	for _, id := range att.Signers {
		if seen[id] {
			return fault.Newf(fault.PermissionDenied, CodeDuplicateSigner, "leaf %d listed twice", id)
		}
		seen[id] = true
		leaf, ok := byLeaf[id]
		if !ok {
			return fault.Newf(fault.PermissionDenied, CodeUnknownSigner, "leaf %d not in roster", id)
		}
		if leaf.Role != tree.RoleDevice {
			return fault.Newf(fault.PermissionDenied, CodeUnknownSigner, "leaf %d is not a device", id)
		}
	}

	return VerifySignature(att.GroupKey, signingBytes, Signature{R: att.Commitment, Z: att.Response})
}
