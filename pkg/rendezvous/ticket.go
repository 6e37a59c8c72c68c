package rendezvous

import (
	"context"
	"sort"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/threshold"
	"github.com/aura-comms/aura/pkg/timeutil"
)

// Error codes for ticket handling.
const (
	CodeMalformedTicket = "MALFORMED_TICKET"
	CodeTicketExpired   = "TICKET_EXPIRED"
	CodeStaleEpoch      = "STALE_EPOCH"
	CodeBadTicketSig    = "BAD_TICKET_SIGNATURE"
)

// Ticket is a short-lived, threshold-signed presence credential. A peer
// accepts it only while it is fresh and bound to the current epoch, so a
// stolen ticket dies with the next rotation.
type Ticket struct {
	DeviceId     ids.DeviceId  `cbor:"1,keyasint"`
	AccountId    ids.AccountId `cbor:"2,keyasint"`
	SessionEpoch ids.Epoch     `cbor:"3,keyasint"`
	IssuedAt     uint64        `cbor:"4,keyasint"`
	ExpiresAt    uint64        `cbor:"5,keyasint"`
	Capabilities []string      `cbor:"6,keyasint"`
	SignatureR   []byte        `cbor:"7,keyasint"`
	SignatureZ   []byte        `cbor:"8,keyasint"`
}

// ticketBody is the signed portion: everything except the signature.
type ticketBody struct {
	DeviceId     ids.DeviceId  `cbor:"1,keyasint"`
	AccountId    ids.AccountId `cbor:"2,keyasint"`
	SessionEpoch ids.Epoch     `cbor:"3,keyasint"`
	IssuedAt     uint64        `cbor:"4,keyasint"`
	ExpiresAt    uint64        `cbor:"5,keyasint"`
	Capabilities []string      `cbor:"6,keyasint"`
}

// SigningBytes returns the domain-separated digest the quorum signs.
// Capabilities are sorted first so equal grant sets sign identically.
func (t Ticket) SigningBytes() ([]byte, error) {
	caps := append([]string(nil), t.Capabilities...)
	sort.Strings(caps)
	body := ticketBody{
		DeviceId:     t.DeviceId,
		AccountId:    t.AccountId,
		SessionEpoch: t.SessionEpoch,
		IssuedAt:     t.IssuedAt,
		ExpiresAt:    t.ExpiresAt,
		Capabilities: caps,
	}
	enc, err := encMode.Marshal(body)
	if err != nil {
		return nil, fault.New(fault.Serialization, CodeMalformedTicket, "cannot encode ticket body").WithCause(err)
	}
	h := ids.Hash(ids.DomainTicket, enc)
	return h[:], nil
}

// Encode returns the canonical CBOR form of the full ticket.
func (t Ticket) Encode() ([]byte, error) {
	enc, err := encMode.Marshal(t)
	if err != nil {
		return nil, fault.New(fault.Serialization, CodeMalformedTicket, "cannot encode ticket").WithCause(err)
	}
	return enc, nil
}

// DecodeTicket parses a canonical CBOR ticket.
func DecodeTicket(data []byte) (Ticket, error) {
	var t Ticket
	if err := decMode.Unmarshal(data, &t); err != nil {
		return Ticket{}, fault.New(fault.Serialization, CodeMalformedTicket, "cannot decode ticket").WithCause(err)
	}
	return t, nil
}

// TicketSigner is the quorum-signing surface the issuer needs. The
// threshold coordinator satisfies it.
type TicketSigner interface {
	Sign(ctx context.Context, msg []byte, epoch ids.Epoch) (threshold.Signature, []ids.LeafId, error)
}

// Issuer mints presence tickets for devices of one account.
type Issuer struct {
	Account ids.AccountId
	Signer  TicketSigner
	Clock   timeutil.Clock
	// TTLSeconds bounds ticket lifetime. Zero means 300.
	TTLSeconds uint64
}

const defaultTicketTTL = 300

// Issue signs a ticket for the device at the clock's current epoch.
func (is Issuer) Issue(ctx context.Context, device ids.DeviceId, capabilities []string) (Ticket, error) {
	ttl := is.TTLSeconds
	if ttl == 0 {
		ttl = defaultTicketTTL
	}
	now := is.Clock.CurrentTimestamp()
	t := Ticket{
		DeviceId:     device,
		AccountId:    is.Account,
		SessionEpoch: is.Clock.CurrentEpoch(),
		IssuedAt:     now,
		ExpiresAt:    now + ttl,
		Capabilities: append([]string(nil), capabilities...),
	}
	msg, err := t.SigningBytes()
	if err != nil {
		return Ticket{}, err
	}
	sig, _, err := is.Signer.Sign(ctx, msg, t.SessionEpoch)
	if err != nil {
		return Ticket{}, err
	}
	t.SignatureR = sig.R
	t.SignatureZ = sig.Z
	return t, nil
}

// VerifyTicket accepts a ticket iff its threshold signature verifies
// under groupKey, it has not expired at now (seconds), and it is bound
// to the current epoch.
func VerifyTicket(groupKey []byte, t Ticket, now uint64, currentEpoch ids.Epoch) error {
	msg, err := t.SigningBytes()
	if err != nil {
		return err
	}
	sig := threshold.Signature{R: t.SignatureR, Z: t.SignatureZ}
	if err := threshold.VerifySignature(groupKey, msg, sig); err != nil {
		return fault.New(fault.PermissionDenied, CodeBadTicketSig, "presence ticket signature does not verify").WithCause(err)
	}
	if now > t.ExpiresAt {
		return fault.Newf(fault.PermissionDenied, CodeTicketExpired,
			"ticket expired at %d, now %d", t.ExpiresAt, now)
	}
	if t.SessionEpoch != currentEpoch {
		return fault.Newf(fault.PermissionDenied, CodeStaleEpoch,
			"ticket bound to epoch %d, current epoch %d", t.SessionEpoch, currentEpoch)
	}
	return nil
}

// Acceptor verifies tickets against a live clock, pinning the group key.
type Acceptor struct {
	GroupKey []byte
	Clock    timeutil.Clock
}

// Accept verifies the ticket at the acceptor's current time and epoch.
func (a Acceptor) Accept(t Ticket) error {
	return VerifyTicket(a.GroupKey, t, a.Clock.CurrentTimestamp(), a.Clock.CurrentEpoch())
}
