package agent

import (
	"context"
	"strconv"

	"github.com/aura-comms/aura/pkg/audit"
	"github.com/aura-comms/aura/pkg/authz"
	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
	"github.com/aura-comms/aura/pkg/store"
)

// ceremonyNote is the body of the snapshot proposed/completed facts.
type ceremonyNote struct {
	Epoch      ids.Epoch  `cbor:"1,keyasint"`
	Commitment ids.Hash32 `cbor:"2,keyasint"`
	Blob       ids.Hash32 `cbor:"3,keyasint"`
	Dropped    int        `cbor:"4,keyasint,omitempty"`
}

// ProposeSnapshot runs the snapshot ceremony: under the writer fence it
// cuts the tree, gathers a threshold attestation over the cut, stores
// the blob content-addressed, compacts the journal, and advances the
// cache-epoch floor. Derived state below the floor is swept from the
// store and the flow ledger before the fence is released.
func (a *Agent) ProposeSnapshot(ctx context.Context, principal authz.Principal) (journal.Snapshot, error) {
	if err := a.authorize(ctx, principal, authz.ActionSnapshotPropose); err != nil {
		return journal.Snapshot{}, err
	}

	a.fence.Lock()
	defer a.fence.Unlock()

	tr, err := a.journal.GetTree()
	if err != nil {
		return journal.Snapshot{}, err
	}
	snap := journal.TakeSnapshot(tr, a.clock.CurrentTimestamp())

	sb, err := snap.SigningBytes()
	if err != nil {
		return journal.Snapshot{}, err
	}
	att, err := a.attester.Attest(ctx, sb, snap.Epoch)
	if err != nil {
		a.emit(audit.NewSnapshotFailed(a.eventTime(), a.authority, snap.Epoch, "attestation failed"))
		return journal.Snapshot{}, fault.New(fault.Coordination, "ATTEST_FAILED",
			"snapshot attestation did not reach quorum").WithCause(err)
	}
	snap.Attestation = att

	blob, err := snap.Encode()
	if err != nil {
		return journal.Snapshot{}, err
	}
	cid := ids.Hash(ids.DomainSnapshot, blob)
	if err := a.store.Store(store.Key("journal", "snapshot", cid.String()), blob); err != nil {
		a.emit(audit.NewSnapshotFailed(a.eventTime(), a.authority, snap.Epoch, "blob store failed"))
		return journal.Snapshot{}, err
	}

	key := "snapshot:" + strconv.FormatUint(uint64(snap.Epoch), 10)
	proposed, err := journal.NewFact(journal.KindProposal, key, snap.Epoch, a.authority, ceremonyNote{
		Epoch: snap.Epoch, Commitment: snap.Commitment, Blob: cid,
	})
	if err != nil {
		return journal.Snapshot{}, err
	}
	a.journal.AppendFact(proposed)
	a.emit(audit.NewSnapshotProposed(a.eventTime(), a.authority, snap.Epoch, snap.Commitment))

	before := a.journal.NumRecords()
	if err := a.journal.Compact(snap, a.authority); err != nil {
		a.emit(audit.NewSnapshotFailed(a.eventTime(), a.authority, snap.Epoch, "compaction failed"))
		return journal.Snapshot{}, err
	}
	dropped := before - a.journal.NumRecords()

	completed, err := journal.NewFact(journal.KindCeremony, key, snap.Epoch, a.authority, ceremonyNote{
		Epoch: snap.Epoch, Commitment: snap.Commitment, Blob: cid, Dropped: dropped,
	})
	if err != nil {
		return journal.Snapshot{}, err
	}
	a.journal.AppendFact(completed)
	a.emit(audit.NewSnapshotCompleted(a.eventTime(), a.authority, snap.Epoch, snap.Commitment, dropped))

	// Floor advance: announce first, then sweep, so subscribers never
	// observe swept state under an old floor.
	if err := a.signals.Emit(SignalCacheFloor, snap.Epoch); err != nil {
		a.logger.Warn("cache floor signal emit failed", "error", err)
	}
	swept, err := store.SweepBelowFloor(a.store, "cache:", snap.Epoch)
	if err != nil {
		a.logger.Warn("cache sweep failed", "error", err)
	} else if len(swept) > 0 {
		a.logger.Info("cache entries swept", "floor", snap.Epoch, "count", len(swept))
	}
	a.ledger.DropBelow(snap.Epoch)

	return snap, nil
}

// LoadSnapshot retrieves a stored snapshot blob by its content id.
func (a *Agent) LoadSnapshot(cid ids.Hash32) (journal.Snapshot, error) {
	blob, ok, err := a.store.Retrieve(store.Key("journal", "snapshot", cid.String()))
	if err != nil {
		return journal.Snapshot{}, err
	}
	if !ok {
		return journal.Snapshot{}, fault.Newf(fault.NotFound, "SNAPSHOT_MISSING", "no snapshot blob %s", cid)
	}
	return journal.DecodeSnapshot(blob)
}
