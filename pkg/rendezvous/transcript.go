package rendezvous

import (
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
)

// Error codes for transcript handling.
const (
	CodeMalformedTranscript = "MALFORMED_TRANSCRIPT"
	CodeReplayedCounter     = "REPLAYED_COUNTER"
)

// Transcript is everything an offer/answer exchange must bind. Its hash
// becomes the session's channel-binding input, so tampering with any
// field on the wire yields a different session key on the two sides.
type Transcript struct {
	DeviceCertA         []byte     `cbor:"1,keyasint"`
	DeviceCertB         []byte     `cbor:"2,keyasint"`
	ChannelBinding      ids.Hash32 `cbor:"3,keyasint"`
	TransportDescriptor string     `cbor:"4,keyasint"`
	OfferCounter        uint64     `cbor:"5,keyasint"`
	AnswerCounter       uint64     `cbor:"6,keyasint"`
}

var (
	encMode, _ = cbor.CanonicalEncOptions().EncMode()
	decMode, _ = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
)

// ChannelBinding derives the binding secret from the pre-shared key and
// the responder's static public key: H(K_psk || device_static_pub).
func ChannelBinding(psk, deviceStaticPub []byte) ids.Hash32 {
	joined := make([]byte, 0, len(psk)+len(deviceStaticPub))
	joined = append(joined, psk...)
	joined = append(joined, deviceStaticPub...)
	return ids.HashBytes(joined)
}

// Hash returns the domain-separated transcript digest.
func (t Transcript) Hash() (ids.Hash32, error) {
	enc, err := encMode.Marshal(t)
	if err != nil {
		return ids.Hash32{}, fault.New(fault.Serialization, CodeMalformedTranscript, "cannot encode transcript").WithCause(err)
	}
	return ids.Hash(ids.DomainHandshake, enc), nil
}

// Exchange tracks offer/answer counters for one peer relationship.
// Counters only move forward; a replayed or reordered transcript is
// rejected before its hash is ever used.
type Exchange struct {
	mu         sync.Mutex
	lastOffer  uint64
	lastAnswer uint64
	started    bool
}

// Observe admits a transcript if both counters strictly advance past the
// last admitted pair. The first transcript seeds the counters.
func (e *Exchange) Observe(t Transcript) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		if t.OfferCounter <= e.lastOffer {
			return fault.Newf(fault.PermissionDenied, CodeReplayedCounter,
				"offer counter %d does not advance past %d", t.OfferCounter, e.lastOffer)
		}
		if t.AnswerCounter <= e.lastAnswer {
			return fault.Newf(fault.PermissionDenied, CodeReplayedCounter,
				"answer counter %d does not advance past %d", t.AnswerCounter, e.lastAnswer)
		}
	}
	e.started = true
	e.lastOffer = t.OfferCounter
	e.lastAnswer = t.AnswerCounter
	return nil
}
