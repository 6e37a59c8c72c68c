package journal

import (
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/tree"
)

// OpKind discriminates the tree operation sum type.
type OpKind uint8

const (
	OpAddLeaf OpKind = iota + 1
	OpRemoveLeaf
	OpRotatePath
	OpRefreshPolicy
	OpEpochBump
)

// String returns the stable name of the op kind.
func (k OpKind) String() string {
	switch k {
	case OpAddLeaf:
		return "add_leaf"
	case OpRemoveLeaf:
		return "remove_leaf"
	case OpRotatePath:
		return "rotate_path"
	case OpRefreshPolicy:
		return "refresh_policy"
	case OpEpochBump:
		return "epoch_bump"
	default:
		return "unknown"
	}
}

// TreeOp is the payload of a tree-op record. Only the fields relevant to
// Kind are populated.
type TreeOp struct {
	Kind       OpKind          `cbor:"1,keyasint"`
	Role       tree.Role       `cbor:"2,keyasint,omitempty"`
	KeyPackage tree.KeyPackage `cbor:"3,keyasint,omitempty"`
	Metadata   []byte          `cbor:"4,keyasint,omitempty"`
	Target     ids.LeafIndex   `cbor:"5,keyasint,omitempty"`
	Node       ids.NodeIndex   `cbor:"6,keyasint,omitempty"`
	Policy     *tree.Policy    `cbor:"7,keyasint,omitempty"`
	Reason     string          `cbor:"8,keyasint,omitempty"`
}

// Attestation is a threshold signature over a record's signing bytes,
// produced by the signing coordinator and verified against the roster at
// the record's parent epoch.
type Attestation struct {
	Epoch     ids.Epoch    `cbor:"1,keyasint"`
	Signers   []ids.LeafId `cbor:"2,keyasint"`
	GroupKey  []byte       `cbor:"3,keyasint"`
	Commitment []byte      `cbor:"4,keyasint"` // aggregated nonce commitment R
	Response  []byte       `cbor:"5,keyasint"` // aggregated response z
}

// TreeOpRecord is one attested state transition in the journal.
type TreeOpRecord struct {
	Epoch            ids.Epoch       `cbor:"1,keyasint"`
	ParentEpoch      ids.Epoch       `cbor:"2,keyasint"`
	ParentCommitment ids.Hash32      `cbor:"3,keyasint"`
	Op               TreeOp          `cbor:"4,keyasint"`
	AffectedIndices  []ids.NodeIndex `cbor:"5,keyasint,omitempty"`
	NewCommitments   []ids.Hash32    `cbor:"6,keyasint,omitempty"`
	Attestation      Attestation     `cbor:"7,keyasint"`
	AuthoredAt       uint64          `cbor:"8,keyasint"`
	Author           ids.AuthorityId `cbor:"9,keyasint"`
}

// SigningBytes returns the canonical serialization the attestation signs:
// the record with its attestation zeroed.
func (r *TreeOpRecord) SigningBytes() ([]byte, error) {
	cp := *r
	cp.Attestation = Attestation{}
	return marshalCanonical(&cp)
}

// ContentHash returns the record's identity in the journal: the
// domain-separated digest of its full canonical serialization.
func (r *TreeOpRecord) ContentHash() (ids.Hash32, error) {
	b, err := marshalCanonical(r)
	if err != nil {
		return ids.Hash32{}, err
	}
	return ids.Hash(ids.DomainRecord, b), nil
}

// applyOp applies the record's operation to the tree. The caller has
// already checked the parent commitment.
func applyOp(tr *tree.Tree, r *TreeOpRecord) error {
	var err error
	switch r.Op.Kind {
	case OpAddLeaf:
		_, err = tr.AddLeaf(r.Op.Role, r.Op.KeyPackage, r.Op.Metadata)
	case OpRemoveLeaf:
		_, err = tr.RemoveLeaf(r.Op.Target)
	case OpRotatePath:
		_, err = tr.RotatePath(r.Op.Target, r.Op.KeyPackage)
	case OpRefreshPolicy:
		if r.Op.Policy == nil {
			return errInvalidRecord("refresh_policy without policy")
		}
		_, err = tr.RefreshPolicy(r.Op.Node, *r.Op.Policy)
	case OpEpochBump:
		tr.BumpEpoch()
	default:
		return errInvalidRecord("unknown op kind")
	}
	if err != nil {
		return err
	}
	// The tree's own bump moved it one epoch forward; stamp the record's
	// epoch when the journal skips epochs.
	if r.Epoch > tr.Epoch() {
		return tr.SetEpoch(r.Epoch)
	}
	return nil
}

// AuthorRecord builds an unattested record for op against the current
// state of tr, filling epochs, parent commitment, and the affected
// commitment set by applying the op to a scratch clone.
func AuthorRecord(tr *tree.Tree, op TreeOp, author ids.AuthorityId, authoredAt uint64) (*TreeOpRecord, error) {
	scratch := tr.Clone()
	rec := &TreeOpRecord{
		ParentEpoch:      tr.Epoch(),
		ParentCommitment: tr.RootCommitment(),
		Op:               op,
		AuthoredAt:       authoredAt,
		Author:           author,
	}
	if err := applyOp(scratch, &TreeOpRecord{Epoch: tr.Epoch() + 1, Op: op}); err != nil {
		return nil, err
	}
	rec.Epoch = scratch.Epoch()

	// Record the new root commitment for downstream witnessing.
	if n := scratch.NumLeaves(); n > 0 {
		rec.AffectedIndices = append(rec.AffectedIndices, tree.Root(n))
		rec.NewCommitments = append(rec.NewCommitments, scratch.RootCommitment())
	}
	return rec, nil
}
