package agent

import (
	"context"
	"strconv"
	"strings"

	"github.com/aura-comms/aura/pkg/audit"
	"github.com/aura-comms/aura/pkg/authz"
	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
	"github.com/aura-comms/aura/pkg/tree"
)

// recoveryKey files recovery facts under the lost leaf.
func recoveryKey(lostLeaf ids.LeafId) string {
	return strconv.FormatUint(uint64(lostLeaf), 10)
}

// recoveryNote is the body of recovery lifecycle facts.
type recoveryNote struct {
	LostLeaf  ids.LeafId      `cbor:"1,keyasint"`
	Initiator ids.AuthorityId `cbor:"2,keyasint,omitempty"`
	Guardian  ids.LeafId      `cbor:"3,keyasint,omitempty"`
	NewLeaf   ids.LeafId      `cbor:"4,keyasint,omitempty"`
	Approvals int             `cbor:"5,keyasint,omitempty"`
}

// InitiateRecovery opens a recovery for a lost device leaf.
func (a *Agent) InitiateRecovery(ctx context.Context, principal authz.Principal, lostLeaf ids.LeafId) error {
	if err := a.authorize(ctx, principal, authz.ActionRecoveryInitiate); err != nil {
		return err
	}

	a.fence.RLock()
	defer a.fence.RUnlock()

	f, err := journal.NewFact(journal.KindRecoveryInit, recoveryKey(lostLeaf),
		a.clock.CurrentEpoch(), a.authority, recoveryNote{LostLeaf: lostLeaf, Initiator: a.authority})
	if err != nil {
		return err
	}
	a.journal.AppendFact(f)
	a.emit(audit.NewRecoveryInitiated(a.eventTime(), a.authority, lostLeaf))
	return nil
}

// ApproveRecovery records one guardian's approval. Approvals are keyed
// per guardian, so a guardian approving twice still counts once.
func (a *Agent) ApproveRecovery(ctx context.Context, principal authz.Principal, guardian, lostLeaf ids.LeafId) error {
	if err := a.authorize(ctx, principal, authz.ActionRecoveryApprove); err != nil {
		return err
	}

	a.fence.RLock()
	defer a.fence.RUnlock()

	if _, ok := a.journal.GetFact(journal.KindRecoveryInit, recoveryKey(lostLeaf)); !ok {
		return fault.Newf(fault.NotFound, "NO_RECOVERY", "no open recovery for leaf %d", lostLeaf)
	}

	key := recoveryKey(lostLeaf) + "/" + strconv.FormatUint(uint64(guardian), 10)
	f, err := journal.NewFact(journal.KindGuardianApprove, key,
		a.clock.CurrentEpoch(), a.authority, recoveryNote{LostLeaf: lostLeaf, Guardian: guardian})
	if err != nil {
		return err
	}
	a.journal.AppendFact(f)
	a.emit(audit.NewRecoveryApproved(a.eventTime(), guardian, lostLeaf))
	return nil
}

// ApprovalCount returns the number of distinct guardian approvals for
// the open recovery of lostLeaf.
func (a *Agent) ApprovalCount(lostLeaf ids.LeafId) int {
	prefix := recoveryKey(lostLeaf) + "/"
	n := 0
	for _, f := range a.journal.FactsByKind(journal.KindGuardianApprove) {
		if strings.HasPrefix(f.Key, prefix) {
			n++
		}
	}
	return n
}

// CompleteRecovery replaces the lost leaf once the guardian quorum is
// reached: the lost leaf is removed (swap-with-last) and a fresh device
// leaf with the recovered key package is added, both as attested records.
func (a *Agent) CompleteRecovery(ctx context.Context, principal authz.Principal, lostLeaf ids.LeafId, replacement tree.KeyPackage, quorum int) (ids.LeafId, error) {
	if err := a.authorize(ctx, principal, authz.ActionRecoveryInitiate); err != nil {
		return 0, err
	}

	a.fence.RLock()
	defer a.fence.RUnlock()

	approvals := a.ApprovalCount(lostLeaf)
	if approvals < quorum {
		return 0, fault.Newf(fault.PermissionDenied, CodeQuorumShort,
			"%d of %d guardian approvals", approvals, quorum)
	}

	tr, err := a.journal.GetTree()
	if err != nil {
		return 0, err
	}
	lost, ok := tr.FindLeaf(lostLeaf)
	if !ok {
		return 0, fault.Newf(fault.NotFound, "LEAF_MISSING", "leaf %d not in roster", lostLeaf)
	}

	if err := a.appendAttestedOp(ctx, journal.TreeOp{
		Kind: journal.OpRemoveLeaf, Target: lost.LeafIndex, Reason: "recovery",
	}); err != nil {
		return 0, err
	}
	if err := a.appendAttestedOp(ctx, journal.TreeOp{
		Kind: journal.OpAddLeaf, Role: tree.RoleDevice, KeyPackage: replacement,
	}); err != nil {
		return 0, err
	}

	after, err := a.journal.GetTree()
	if err != nil {
		return 0, err
	}
	// The added leaf is the last occupied position.
	leaves := after.Leaves()
	newLeaf := leaves[len(leaves)-1].LeafId

	f, err := journal.NewFact(journal.KindRecoveryDone, recoveryKey(lostLeaf),
		a.clock.CurrentEpoch(), a.authority, recoveryNote{
			LostLeaf: lostLeaf, NewLeaf: newLeaf, Approvals: approvals,
		})
	if err != nil {
		return 0, err
	}
	a.journal.AppendFact(f)
	a.emit(audit.NewRecoveryCompleted(a.eventTime(), lostLeaf, newLeaf, approvals))
	return newLeaf, nil
}

// appendAttestedOp authors, attests, and appends one tree operation.
func (a *Agent) appendAttestedOp(ctx context.Context, op journal.TreeOp) error {
	tr, err := a.journal.GetTree()
	if err != nil {
		return err
	}
	rec, err := journal.AuthorRecord(tr, op, a.authority, a.clock.CurrentTimestamp())
	if err != nil {
		return err
	}
	sb, err := rec.SigningBytes()
	if err != nil {
		return err
	}
	att, err := a.attester.Attest(ctx, sb, tr.Epoch())
	if err != nil {
		return fault.New(fault.Coordination, "ATTEST_FAILED",
			"tree op attestation did not reach quorum").WithCause(err)
	}
	rec.Attestation = att
	return a.journal.AppendTreeOp(rec)
}
