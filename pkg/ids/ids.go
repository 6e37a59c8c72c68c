package ids

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// AuthorityId identifies a principal that can hold capabilities and sign.
type AuthorityId uuid.UUID

// DeviceId identifies a physical device enrolled in an account.
type DeviceId uuid.UUID

// AccountId identifies an account (a ratchet tree and its journal).
type AccountId uuid.UUID

// ContextId identifies a flow-budget / messaging context.
type ContextId uuid.UUID

// SessionId identifies a transport session between two devices.
type SessionId uuid.UUID

// Epoch is the monotonic counter advanced on every tree mutation.
type Epoch uint64

// LeafIndex addresses a leaf position within a single tree.
type LeafIndex uint32

// NodeIndex addresses a node (leaf or branch) within a single tree.
type NodeIndex uint32

// LeafId is the stable identity of a leaf, independent of its position.
type LeafId uint32

// NewAuthorityId returns a fresh random authority identifier.
func NewAuthorityId() AuthorityId { return AuthorityId(uuid.New()) }

// NewDeviceId returns a fresh random device identifier.
func NewDeviceId() DeviceId { return DeviceId(uuid.New()) }

// NewAccountId returns a fresh random account identifier.
func NewAccountId() AccountId { return AccountId(uuid.New()) }

// NewContextId returns a fresh random context identifier.
func NewContextId() ContextId { return ContextId(uuid.New()) }

// NewSessionId returns a fresh random session identifier.
func NewSessionId() SessionId { return SessionId(uuid.New()) }

func (a AuthorityId) String() string { return uuid.UUID(a).String() }
func (d DeviceId) String() string    { return uuid.UUID(d).String() }
func (a AccountId) String() string   { return uuid.UUID(a).String() }
func (c ContextId) String() string   { return uuid.UUID(c).String() }
func (s SessionId) String() string   { return uuid.UUID(s).String() }

// Bytes returns the 16-byte wire form of the identifier.
func (a AuthorityId) Bytes() []byte { b := uuid.UUID(a); return b[:] }
func (d DeviceId) Bytes() []byte    { b := uuid.UUID(d); return b[:] }
func (a AccountId) Bytes() []byte   { b := uuid.UUID(a); return b[:] }
func (c ContextId) Bytes() []byte   { b := uuid.UUID(c); return b[:] }
func (s SessionId) Bytes() []byte   { b := uuid.UUID(s); return b[:] }

// ParseAuthorityId parses the canonical UUID text form.
func ParseAuthorityId(s string) (AuthorityId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AuthorityId{}, fmt.Errorf("parse authority id: %w", err)
	}
	return AuthorityId(u), nil
}

// ParseAccountId parses the canonical UUID text form.
func ParseAccountId(s string) (AccountId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return AccountId{}, fmt.Errorf("parse account id: %w", err)
	}
	return AccountId(u), nil
}

// ParseContextId parses the canonical UUID text form.
func ParseContextId(s string) (ContextId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ContextId{}, fmt.Errorf("parse context id: %w", err)
	}
	return ContextId(u), nil
}

// Hash32 is the 32-byte digest used for content addressing and commitments.
type Hash32 [32]byte

// ZeroHash is the all-zero digest.
var ZeroHash Hash32

// String returns the lowercase hex encoding.
func (h Hash32) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether the digest is all zeros.
func (h Hash32) IsZero() bool { return h == ZeroHash }

// Less orders digests byte-lexicographically. Used for the in-epoch
// ordering of journal records.
func (h Hash32) Less(other Hash32) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// Hash32FromSlice copies a 32-byte slice into a Hash32.
func Hash32FromSlice(b []byte) (Hash32, error) {
	var h Hash32
	if len(b) != len(h) {
		return h, fmt.Errorf("hash32: want 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}
