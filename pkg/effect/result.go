package effect

import (
	"github.com/aura-comms/aura/pkg/flow"
)

// Status discriminates the effect result sum type.
type Status uint8

const (
	StatusSuccess Status = iota + 1
	StatusFailure
	StatusReceipt
	StatusNonce
	StatusRemainingBudget
)

// Result is the outcome of executing one effect command.
type Result struct {
	Status    Status        `cbor:"1,keyasint"`
	Reason    string        `cbor:"2,keyasint,omitempty"`
	Receipt   *flow.Receipt `cbor:"3,keyasint,omitempty"`
	Nonce     []byte        `cbor:"4,keyasint,omitempty"`
	Remaining uint64        `cbor:"5,keyasint,omitempty"`
}

// OK reports whether the result is any non-failure variant.
func (r Result) OK() bool { return r.Status != StatusFailure }

// Success returns the plain success result.
func Success() Result { return Result{Status: StatusSuccess} }

// Failure returns a failed result with the given reason.
func Failure(reason string) Result { return Result{Status: StatusFailure, Reason: reason} }

// ReceiptResult wraps a flow receipt.
func ReceiptResult(r flow.Receipt) Result {
	return Result{Status: StatusReceipt, Receipt: &r}
}

// NonceResult wraps generated randomness.
func NonceResult(b []byte) Result { return Result{Status: StatusNonce, Nonce: b} }

// RemainingBudget reports leftover headroom.
func RemainingBudget(u uint64) Result { return Result{Status: StatusRemainingBudget, Remaining: u} }
