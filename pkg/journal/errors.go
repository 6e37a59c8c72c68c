package journal

import (
	"fmt"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
)

// Error codes for journal operations.
const (
	CodeInvalidEpoch       = "INVALID_EPOCH"
	CodeInvalidAttestation = "INVALID_ATTESTATION"
	CodeConflict           = "CONFLICT"
	CodeInvalidRecord      = "INVALID_RECORD"
	CodeDiverged           = "DIVERGED"
	CodeInvalidSnapshot    = "INVALID_SNAPSHOT"
)

func errInvalidEpoch(parent, epoch ids.Epoch) error {
	return fault.Newf(fault.Invalid, CodeInvalidEpoch,
		"parent epoch %d must precede record epoch %d", parent, epoch)
}

func errInvalidAttestation(err error) error {
	return fault.New(fault.PermissionDenied, CodeInvalidAttestation, "attestation rejected").WithCause(err)
}

func errConflict(h ids.Hash32) error {
	return fault.Newf(fault.Invalid, CodeConflict, "distinct record collides on content hash %s", h)
}

func errInvalidRecord(detail string) error {
	return fault.Newf(fault.Invalid, CodeInvalidRecord, "malformed record: %s", detail)
}

// DivergenceError reports a record whose parent commitment never matched
// during replay. The record is retained so a future merge can supply the
// missing predecessor.
type DivergenceError struct {
	AtEpoch  ids.Epoch
	Expected ids.Hash32
	Actual   ids.Hash32
}

// Error implements the error interface.
func (e *DivergenceError) Error() string {
	return fmt.Sprintf("replay diverged at epoch %d: record expects parent %s, tree is at %s",
		e.AtEpoch, e.Expected, e.Actual)
}
