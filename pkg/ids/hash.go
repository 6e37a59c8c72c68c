package ids

import (
	"encoding/binary"

	"lukechampine.com/blake3"
)

// Domain-separation prefixes. Each hashed structure gets its own prefix so
// a leaf hash can never collide with a branch hash or a record hash.
const (
	DomainLeaf     = "aura/v1/leaf"
	DomainBranch   = "aura/v1/branch"
	DomainEmpty    = "aura/v1/empty"
	DomainRecord   = "aura/v1/record"
	DomainFact     = "aura/v1/fact"
	DomainEnvelope = "aura/v1/envelope"
	DomainSnapshot = "aura/v1/snapshot"
	DomainTicket   = "aura/v1/ticket"
	DomainHandshake = "aura/v1/handshake"
)

// Hash computes the domain-separated digest of the concatenated parts.
// The domain string is length-prefixed so domains can never be confused
// by concatenation.
func Hash(domain string, parts ...[]byte) Hash32 {
	h := blake3.New(32, nil)
	var lp [8]byte
	binary.LittleEndian.PutUint64(lp[:], uint64(len(domain)))
	h.Write(lp[:])
	h.Write([]byte(domain))
	for _, p := range parts {
		binary.LittleEndian.PutUint64(lp[:], uint64(len(p)))
		h.Write(lp[:])
		h.Write(p)
	}
	var out Hash32
	copy(out[:], h.Sum(nil))
	return out
}

// HashBytes computes the plain (undomained) digest of b. Used where the
// wire format pins H to the raw hash, such as envelope cids.
func HashBytes(b []byte) Hash32 {
	return Hash32(blake3.Sum256(b))
}

// KeyedHash computes a keyed digest, used for routing tags.
func KeyedHash(key [32]byte, parts ...[]byte) Hash32 {
	h := blake3.New(32, key[:])
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash32
	copy(out[:], h.Sum(nil))
	return out
}

// EpochBytes returns the little-endian wire form of an epoch.
func EpochBytes(e Epoch) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(e))
	return b[:]
}

// Uint32Bytes returns the little-endian wire form of a 32-bit index.
func Uint32Bytes(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}
