package journal

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/aura-comms/aura/pkg/fault"
)

// encMode is the canonical CBOR encoder shared by every journal structure.
// Sorted map keys and shortest-form integers make record bytes, and
// therefore content hashes, identical across replicas. Unordered
// collections are canonicalized sorted byte-lexicographically before they
// reach the encoder.
var encMode cbor.EncMode

// decMode rejects duplicate map keys so malformed records cannot smuggle
// ambiguous content past the hash.
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic("journal: canonical cbor enc mode: " + err.Error())
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic("journal: cbor dec mode: " + err.Error())
	}
}

// marshalCanonical encodes v in canonical CBOR.
func marshalCanonical(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fault.New(fault.Serialization, "CBOR_ENCODE", "canonical encode").WithCause(err)
	}
	return b, nil
}

// unmarshalCanonical decodes canonical CBOR into v.
func unmarshalCanonical(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fault.New(fault.Serialization, "CBOR_DECODE", "canonical decode").WithCause(err)
	}
	return nil
}
