package envelope

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
)

// Size is the exact wire size of every envelope. Inputs of any other
// length are rejected before parsing.
const Size = 2048

// Version is the only header version this implementation accepts.
const Version = 1

// Error codes for envelope handling.
const (
	CodeWrongSize       = "WRONG_SIZE"
	CodeBadVersion      = "BAD_VERSION"
	CodeBadCid          = "BAD_CID"
	CodeBadPadding      = "BAD_PADDING"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeMalformed       = "MALFORMED"
)

// RoutingTagSize is the truncated keyed-hash length in bytes.
const RoutingTagSize = 16

// HeaderBare is the plaintext-routable part of the header.
type HeaderBare struct {
	Version   uint8                 `cbor:"1,keyasint"`
	Epoch     uint64                `cbor:"2,keyasint"`
	Counter   uint64                `cbor:"3,keyasint"`
	RTag      [RoutingTagSize]byte  `cbor:"4,keyasint"`
	TTLEpochs uint16                `cbor:"5,keyasint"`
}

// Header pairs the bare header with the content id.
type Header struct {
	Bare HeaderBare `cbor:"1,keyasint"`
	Cid  ids.Hash32 `cbor:"2,keyasint"`
}

// Envelope is the decoded wire structure.
type Envelope struct {
	Header     Header `cbor:"1,keyasint"`
	Ciphertext []byte `cbor:"2,keyasint"`
}

var (
	encMode, _ = cbor.CanonicalEncOptions().EncMode()
	decMode, _ = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
)

// RoutingTag derives the 128-bit keyed routing tag for one (epoch,
// counter) slot under the context's tag key.
func RoutingTag(tagKey [32]byte, epoch, counter uint64) [RoutingTagSize]byte {
	h := ids.KeyedHash(tagKey,
		ids.EpochBytes(ids.Epoch(epoch)),
		ids.EpochBytes(ids.Epoch(counter)),
		[]byte("rt"),
	)
	var tag [RoutingTagSize]byte
	copy(tag[:], h[:RoutingTagSize])
	return tag
}

// computeCid binds header and ciphertext: H(H(bare) || H(ciphertext)).
func computeCid(bare HeaderBare, ciphertext []byte) (ids.Hash32, error) {
	bareBytes, err := encMode.Marshal(bare)
	if err != nil {
		return ids.Hash32{}, fault.New(fault.Serialization, CodeMalformed, "cannot encode bare header").WithCause(err)
	}
	hb := ids.HashBytes(bareBytes)
	hc := ids.HashBytes(ciphertext)
	joined := make([]byte, 0, len(hb)+len(hc))
	joined = append(joined, hb[:]...)
	joined = append(joined, hc[:]...)
	return ids.HashBytes(joined), nil
}

// Seal builds and encodes an envelope to its exact wire size.
func Seal(tagKey [32]byte, epoch, counter uint64, ttlEpochs uint16, ciphertext []byte) ([]byte, Envelope, error) {
	bare := HeaderBare{
		Version:   Version,
		Epoch:     epoch,
		Counter:   counter,
		RTag:      RoutingTag(tagKey, epoch, counter),
		TTLEpochs: ttlEpochs,
	}
	cid, err := computeCid(bare, ciphertext)
	if err != nil {
		return nil, Envelope{}, err
	}
	env := Envelope{
		Header:     Header{Bare: bare, Cid: cid},
		Ciphertext: append([]byte(nil), ciphertext...),
	}

	encoded, err := encMode.Marshal(env)
	if err != nil {
		return nil, Envelope{}, fault.New(fault.Serialization, CodeMalformed, "cannot encode envelope").WithCause(err)
	}
	if len(encoded) > Size {
		return nil, Envelope{}, fault.Newf(fault.Invalid, CodePayloadTooLarge,
			"envelope encodes to %d bytes, limit %d", len(encoded), Size)
	}
	wire := make([]byte, Size)
	copy(wire, encoded)
	return wire, env, nil
}

// Open parses and validates an exact-size envelope: length, version,
// zero padding, and the content id binding.
func Open(data []byte) (Envelope, error) {
	if len(data) != Size {
		return Envelope{}, fault.Newf(fault.Invalid, CodeWrongSize,
			"envelope is %d bytes, want exactly %d", len(data), Size)
	}

	var env Envelope
	rest, err := decMode.UnmarshalFirst(data, &env)
	if err != nil {
		return Envelope{}, fault.New(fault.Serialization, CodeMalformed, "cannot decode envelope").WithCause(err)
	}
	for _, b := range rest {
		if b != 0 {
			return Envelope{}, fault.New(fault.Invalid, CodeBadPadding, "non-zero bytes after envelope body")
		}
	}

	if env.Header.Bare.Version != Version {
		return Envelope{}, fault.Newf(fault.Invalid, CodeBadVersion,
			"unsupported envelope version %d", env.Header.Bare.Version)
	}
	cid, err := computeCid(env.Header.Bare, env.Ciphertext)
	if err != nil {
		return Envelope{}, err
	}
	if cid != env.Header.Cid {
		return Envelope{}, fault.New(fault.Invalid, CodeBadCid, "content id does not bind header and ciphertext")
	}
	return env, nil
}

// VerifyRoutingTag reports whether the envelope's tag was derived from
// the given key and its own (epoch, counter) slot.
func VerifyRoutingTag(tagKey [32]byte, env Envelope) bool {
	want := RoutingTag(tagKey, env.Header.Bare.Epoch, env.Header.Bare.Counter)
	return want == env.Header.Bare.RTag
}
