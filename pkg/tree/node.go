package tree

import (
	"github.com/aura-comms/aura/pkg/ids"
)

// Role distinguishes the two leaf kinds.
type Role uint8

const (
	// RoleDevice is a device leaf; devices participate in threshold
	// signing.
	RoleDevice Role = iota
	// RoleGuardian is a guardian leaf; guardians participate only in
	// recovery ceremonies.
	RoleGuardian
)

// String returns the stable name of the role.
func (r Role) String() string {
	if r == RoleGuardian {
		return "guardian"
	}
	return "device"
}

// KeyPackage bundles a leaf's public key material.
type KeyPackage struct {
	SigningKey    []byte `cbor:"1,keyasint"`
	EncryptionKey []byte `cbor:"2,keyasint,omitempty"`
}

// LeafNode is a device or guardian position in the tree.
type LeafNode struct {
	LeafId     ids.LeafId     `cbor:"1,keyasint"`
	LeafIndex  ids.LeafIndex  `cbor:"2,keyasint"`
	Role       Role           `cbor:"3,keyasint"`
	KeyPackage KeyPackage     `cbor:"4,keyasint"`
	Metadata   []byte         `cbor:"5,keyasint,omitempty"`
}

// clone returns a deep copy of the leaf.
func (l *LeafNode) clone() *LeafNode {
	cp := *l
	cp.KeyPackage.SigningKey = append([]byte(nil), l.KeyPackage.SigningKey...)
	cp.KeyPackage.EncryptionKey = append([]byte(nil), l.KeyPackage.EncryptionKey...)
	cp.Metadata = append([]byte(nil), l.Metadata...)
	return &cp
}

// hash computes the leaf commitment: a domain-separated digest over
// leaf_id, leaf_index, role, and the KeyPackage.
func (l *LeafNode) hash() ids.Hash32 {
	return ids.Hash(ids.DomainLeaf,
		ids.Uint32Bytes(uint32(l.LeafId)),
		ids.Uint32Bytes(uint32(l.LeafIndex)),
		[]byte{byte(l.Role)},
		l.KeyPackage.SigningKey,
		l.KeyPackage.EncryptionKey,
		l.Metadata,
	)
}

// BranchNode is the materialized view of an interior node: its commitment
// and optional policy override.
type BranchNode struct {
	Index      ids.NodeIndex
	Commitment ids.Hash32
	Policy     *Policy
}
