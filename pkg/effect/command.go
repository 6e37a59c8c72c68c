package effect

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/flow"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
)

// Kind discriminates the effect command sum type.
type Kind uint8

const (
	KindChargeBudget Kind = iota + 1
	KindAppendJournal
	KindRecordLeakage
	KindStoreMetadata
	KindSendEnvelope
	KindGenerateNonce
)

// String returns the stable name of the command kind.
func (k Kind) String() string {
	switch k {
	case KindChargeBudget:
		return "charge_budget"
	case KindAppendJournal:
		return "append_journal"
	case KindRecordLeakage:
		return "record_leakage"
	case KindStoreMetadata:
		return "store_metadata"
	case KindSendEnvelope:
		return "send_envelope"
	case KindGenerateNonce:
		return "generate_nonce"
	default:
		return "unknown"
	}
}

// Command is one effect to execute. Only the fields relevant to Kind are
// populated. Commands are serializable so the simulation interpreter can
// record and replay them deterministically.
type Command struct {
	Kind      Kind               `cbor:"1,keyasint"`
	Context   ids.ContextId      `cbor:"2,keyasint"`
	Authority ids.AuthorityId    `cbor:"3,keyasint"`
	Dst       ids.AuthorityId    `cbor:"4,keyasint"`
	Epoch     ids.Epoch          `cbor:"5,keyasint,omitempty"`
	Cost      uint64             `cbor:"6,keyasint,omitempty"`
	Fact      *journal.Fact      `cbor:"7,keyasint,omitempty"`
	Observer  flow.ObserverClass `cbor:"8,keyasint,omitempty"`
	Bits      uint64             `cbor:"9,keyasint,omitempty"`
	Key       string             `cbor:"10,keyasint,omitempty"`
	Value     []byte             `cbor:"11,keyasint,omitempty"`
	Payload   []byte             `cbor:"12,keyasint,omitempty"`
	NonceLen  uint32             `cbor:"13,keyasint,omitempty"`
}

// ChargeBudget builds the flow-charge command.
func ChargeBudget(ctxID ids.ContextId, authority, dst ids.AuthorityId, epoch ids.Epoch, cost uint64) Command {
	return Command{
		Kind:      KindChargeBudget,
		Context:   ctxID,
		Authority: authority,
		Dst:       dst,
		Epoch:     epoch,
		Cost:      cost,
	}
}

// AppendJournal builds the command that records a fact.
func AppendJournal(f journal.Fact) Command {
	cp := f
	return Command{Kind: KindAppendJournal, Fact: &cp}
}

// RecordLeakage builds the command that charges metadata bits against one
// observer class.
func RecordLeakage(class flow.ObserverClass, bits uint64) Command {
	return Command{Kind: KindRecordLeakage, Observer: class, Bits: bits}
}

// StoreMetadata builds the durable key/value write command.
func StoreMetadata(key string, value []byte) Command {
	return Command{Kind: KindStoreMetadata, Key: key, Value: value}
}

// SendEnvelope builds the transport command.
func SendEnvelope(to ids.AuthorityId, payload []byte) Command {
	return Command{Kind: KindSendEnvelope, Dst: to, Payload: payload}
}

// GenerateNonce builds the randomness command.
func GenerateNonce(n uint32) Command {
	return Command{Kind: KindGenerateNonce, NonceLen: n}
}

var (
	cmdEncMode, _ = cbor.CanonicalEncOptions().EncMode()
	cmdDecMode, _ = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
)

// Encode returns the command's canonical CBOR form.
func (c Command) Encode() ([]byte, error) {
	b, err := cmdEncMode.Marshal(c)
	if err != nil {
		return nil, fault.New(fault.Serialization, "ENCODE_COMMAND", "cannot encode effect command").WithCause(err)
	}
	return b, nil
}

// DecodeCommand parses a canonical CBOR command.
func DecodeCommand(b []byte) (Command, error) {
	var c Command
	if err := cmdDecMode.Unmarshal(b, &c); err != nil {
		return Command{}, fault.New(fault.Serialization, "DECODE_COMMAND", "cannot decode effect command").WithCause(err)
	}
	return c, nil
}
