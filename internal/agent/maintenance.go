package agent

import (
	"context"

	"github.com/aura-comms/aura/pkg/audit"
	"github.com/aura-comms/aura/pkg/authz"
	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
	"github.com/aura-comms/aura/pkg/threshold"
)

// ReplaceAdmin records an admin replacement. The old admin keeps its
// authority until activation; from that epoch on every maintenance
// action it attempts is refused.
func (a *Agent) ReplaceAdmin(ctx context.Context, principal authz.Principal, newAdmin ids.AuthorityId, activation ids.Epoch) error {
	if err := a.authorize(ctx, principal, authz.ActionAdminReplace); err != nil {
		return err
	}

	a.fence.RLock()
	defer a.fence.RUnlock()

	a.mu.Lock()
	oldAdmin := a.admin
	a.mu.Unlock()

	f, err := journal.NewFact(journal.KindAdminReplaced, a.account.String(),
		a.clock.CurrentEpoch(), a.authority, journal.AdminReplacement{
			Account:         a.account,
			OldAdmin:        oldAdmin,
			NewAdmin:        newAdmin,
			ActivationEpoch: activation,
		})
	if err != nil {
		return err
	}
	a.journal.AppendFact(f)

	a.mu.Lock()
	a.admin = newAdmin
	a.mu.Unlock()

	a.emit(audit.NewAdminReplaced(a.eventTime(), oldAdmin, newAdmin, activation))
	return nil
}

// ScheduleHardFork records a version fence. Sessions whose epoch
// precedes the fence are refused once the fact lands.
func (a *Agent) ScheduleHardFork(ctx context.Context, principal authz.Principal, version string, fenceEpoch ids.Epoch) error {
	if err := a.authorize(ctx, principal, authz.ActionHardForkSchedule); err != nil {
		return err
	}

	a.fence.RLock()
	defer a.fence.RUnlock()

	f, err := journal.NewFact(journal.KindHardFork, version,
		a.clock.CurrentEpoch(), a.authority, journal.HardFork{
			Version: version, FenceEpoch: fenceEpoch,
		})
	if err != nil {
		return err
	}
	a.journal.AppendFact(f)
	a.logger.Info("hard fork scheduled", "version", version, "fence_epoch", fenceEpoch)
	return nil
}

// Reshare deals a fresh k-of-n share set over the current roster and
// records the new group key and commitment set as a resharing fact.
// Delivering sub-shares to witnesses happens out of band; callers use
// the returned keying to rebuild their witness and coordinator state.
func (a *Agent) Reshare(ctx context.Context, principal authz.Principal, k uint32) (threshold.GroupKeying, error) {
	if err := a.authorize(ctx, principal, authz.ActionPolicyRefresh); err != nil {
		return threshold.GroupKeying{}, err
	}

	a.fence.RLock()
	defer a.fence.RUnlock()

	tr, err := a.journal.GetTree()
	if err != nil {
		return threshold.GroupKeying{}, err
	}
	keying, err := threshold.DealShares(a.rand, k, tr.NumLeaves())
	if err != nil {
		return threshold.GroupKeying{}, err
	}
	groupKey, err := keying.GroupKeyBytes()
	if err != nil {
		return threshold.GroupKeying{}, err
	}
	commitments := make(map[uint32][]byte, len(keying.Shares))
	for _, share := range keying.Shares {
		pub, err := share.Public.MarshalBinary()
		if err != nil {
			return threshold.GroupKeying{}, err
		}
		commitments[share.Index] = pub
	}

	epoch := a.clock.CurrentEpoch()
	f, err := journal.NewFact(journal.KindResharing, a.account.String(),
		epoch, a.authority, journal.Resharing{
			Epoch:       epoch,
			Threshold:   k,
			GroupKey:    groupKey,
			Commitments: commitments,
		})
	if err != nil {
		return threshold.GroupKeying{}, err
	}
	a.journal.AppendFact(f)
	a.logger.Info("group key reshared", "threshold", k, "witnesses", tr.NumLeaves())
	return keying, nil
}

// epochFence returns the highest fence across all scheduled forks.
func (a *Agent) epochFence() ids.Epoch {
	var fence ids.Epoch
	for _, f := range a.journal.FactsByKind(journal.KindHardFork) {
		hf, err := journal.DecodeHardFork(f)
		if err != nil {
			a.logger.Error("hard fork fact decode failed", "error", err)
			continue
		}
		if hf.FenceEpoch > fence {
			fence = hf.FenceEpoch
		}
	}
	return fence
}

// CheckSession refuses sessions established before the newest hard-fork
// fence.
func (a *Agent) CheckSession(sessionEpoch ids.Epoch) error {
	if fence := a.epochFence(); sessionEpoch < fence {
		return fault.Newf(fault.PermissionDenied, CodeStaleSession,
			"session epoch %d predates fence %d, re-handshake required", sessionEpoch, fence)
	}
	return nil
}

// RotateEpoch authors an attested epoch bump, moves the clock, and
// invalidates the signing coordinator's nonce cache for the old epoch.
func (a *Agent) RotateEpoch(ctx context.Context) (ids.Epoch, error) {
	a.fence.RLock()
	defer a.fence.RUnlock()

	tr, err := a.journal.GetTree()
	if err != nil {
		return 0, err
	}
	rec, err := journal.AuthorRecord(tr, journal.TreeOp{Kind: journal.OpEpochBump},
		a.authority, a.clock.CurrentTimestamp())
	if err != nil {
		return 0, err
	}
	sb, err := rec.SigningBytes()
	if err != nil {
		return 0, err
	}
	att, err := a.attester.Attest(ctx, sb, tr.Epoch())
	if err != nil {
		return 0, fault.New(fault.Coordination, "ATTEST_FAILED",
			"epoch bump attestation did not reach quorum").WithCause(err)
	}
	rec.Attestation = att
	if err := a.journal.AppendTreeOp(rec); err != nil {
		return 0, err
	}

	from := a.clock.CurrentEpoch()
	a.clock.SetEpoch(rec.Epoch)
	if adv, ok := a.attester.(interface{ AdvanceEpoch() }); ok {
		adv.AdvanceEpoch()
	}
	if pw, ok := a.attester.(interface {
		Prewarm(context.Context, ids.Epoch) error
	}); ok {
		if err := pw.Prewarm(ctx, rec.Epoch); err != nil {
			a.logger.Warn("nonce prewarm failed", "epoch", rec.Epoch, "error", err)
		}
	}

	a.emit(audit.NewEpochRotated(a.eventTime(), from, rec.Epoch))
	return rec.Epoch, nil
}
