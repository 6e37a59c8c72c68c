package agent

import (
	"github.com/aura-comms/aura/pkg/audit"
	"github.com/aura-comms/aura/pkg/fault"
)

// SyncWith runs one anti-entropy round against a peer agent: each side
// merges the other's records and facts above its own replay floor, then
// the replayed roots are compared. A root mismatch after a symmetric
// merge means a record failed validation somewhere and is reported as
// divergence.
func (a *Agent) SyncWith(peer *Agent) error {
	a.fence.RLock()
	defer a.fence.RUnlock()

	a.journal.Merge(peer.journal.Diff(a.journal.SnapshotFloor()))
	peer.journal.Merge(a.journal.Diff(peer.journal.SnapshotFloor()))
	a.ledger.Join(peer.ledger)
	peer.ledger.Join(a.ledger)

	ours, err := a.journal.CurrentRootCommitment()
	if err != nil {
		return err
	}
	theirs, err := peer.journal.CurrentRootCommitment()
	if err != nil {
		return err
	}
	if ours != theirs {
		a.emit(audit.NewDivergence(a.eventTime(), a.clock.CurrentEpoch(), ours, "root mismatch after merge"))
		return fault.Newf(fault.Coordination, CodeDivergence,
			"replayed roots differ after merge: %s vs %s", ours, theirs)
	}
	return nil
}

// Converged reports whether both journals replay to the same root.
func (a *Agent) Converged(peer *Agent) bool {
	ours, err := a.journal.CurrentRootCommitment()
	if err != nil {
		return false
	}
	theirs, err := peer.journal.CurrentRootCommitment()
	if err != nil {
		return false
	}
	return ours == theirs
}
