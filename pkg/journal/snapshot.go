package journal

import (
	"strconv"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/tree"
)

// Snapshot captures an attested cut of the tree. It carries enough
// material (full leaves plus policy overrides) to restore the cut, so a
// compacted journal replays to the same tree as the original.
type Snapshot struct {
	Epoch       ids.Epoch                     `cbor:"1,keyasint"`
	Commitment  ids.Hash32                    `cbor:"2,keyasint"`
	Roster      []ids.LeafId                  `cbor:"3,keyasint"`
	Leaves      []*tree.LeafNode              `cbor:"4,keyasint"`
	Policies    map[ids.NodeIndex]tree.Policy `cbor:"5,keyasint,omitempty"`
	Timestamp   uint64                        `cbor:"6,keyasint"`
	Attestation Attestation                   `cbor:"7,keyasint"`
}

// TakeSnapshot captures the current state of tr. The caller attests the
// result before appending it.
func TakeSnapshot(tr *tree.Tree, timestamp uint64) Snapshot {
	return Snapshot{
		Epoch:      tr.Epoch(),
		Commitment: tr.RootCommitment(),
		Roster:     tr.Roster(),
		Leaves:     tr.Leaves(),
		Policies:   tr.Policies(),
		Timestamp:  timestamp,
	}
}

// SigningBytes returns the canonical serialization the attestation signs.
func (s Snapshot) SigningBytes() ([]byte, error) {
	cp := s
	cp.Attestation = Attestation{}
	b, err := marshalCanonical(&cp)
	if err != nil {
		return nil, err
	}
	h := ids.Hash(ids.DomainSnapshot, b)
	return h[:], nil
}

// Restore rebuilds the tree at the snapshot's cut and checks its
// commitment.
func (s Snapshot) Restore() (*tree.Tree, error) {
	tr, err := tree.Restore(s.Leaves, s.Policies, s.Epoch)
	if err != nil {
		return nil, err
	}
	if tr.RootCommitment() != s.Commitment {
		return nil, fault.Newf(fault.Invalid, CodeInvalidSnapshot,
			"restored commitment %s does not match snapshot %s", tr.RootCommitment(), s.Commitment)
	}
	return tr, nil
}

// Fact wraps the snapshot as the journal fact that establishes the replay
// floor. The key is the cut epoch, so the same snapshot compacted on two
// replicas joins idempotently.
func (s Snapshot) Fact(author ids.AuthorityId) (Fact, error) {
	return NewFact(KindSnapshot, strconv.FormatUint(uint64(s.Epoch), 10), s.Epoch, author, s)
}

// Encode serializes the snapshot in canonical CBOR, the form stored as
// a content-addressed blob.
func (s Snapshot) Encode() ([]byte, error) {
	return marshalCanonical(&s)
}

// DecodeSnapshot parses an encoded snapshot blob.
func DecodeSnapshot(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := unmarshalCanonical(b, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// decodeSnapshotFact parses a snapshot fact body.
func decodeSnapshotFact(f Fact) (Snapshot, error) {
	var s Snapshot
	if err := unmarshalCanonical(f.Body, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
