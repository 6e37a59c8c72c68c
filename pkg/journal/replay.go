package journal

import (
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/tree"
)

// replayLocked deterministically folds the record set into a tree. The
// base is the newest restorable snapshot fact (at or below limit when
// set); records are then applied in canonical order (epoch ascending,
// content hash tiebreak). A record is applied only when its parent epoch
// matches the tree and its parent commitment matches the root; records
// whose parent has not materialized yet are retried on later passes, and
// a record that names the current epoch with the wrong commitment is a
// divergence. Unapplied records are retained so a future merge can
// supply their predecessors.
func (j *Journal) replayLocked(limit *ids.Epoch) (*tree.Tree, error) {
	tr := tree.New()
	if s, ok := j.latestSnapshotLocked(limit); ok {
		restored, err := s.Restore()
		if err != nil {
			return tr, err
		}
		tr = restored
	}

	pending := j.opsOrderedLocked()
	for progress := true; progress; {
		progress = false
		rest := pending[:0]
		for _, rec := range pending {
			if limit != nil && rec.Epoch > *limit {
				continue
			}
			// Below the snapshot floor, or a forked sibling that lost
			// the canonical-order race at its epoch.
			if rec.Epoch <= tr.Epoch() {
				continue
			}
			if rec.ParentEpoch != tr.Epoch() {
				rest = append(rest, rec)
				continue
			}
			if rec.ParentCommitment != tr.RootCommitment() {
				return tr, &DivergenceError{
					AtEpoch:  rec.ParentEpoch,
					Expected: rec.ParentCommitment,
					Actual:   tr.RootCommitment(),
				}
			}
			if err := applyOp(tr, rec); err != nil {
				return tr, err
			}
			progress = true
		}
		pending = rest
	}

	// Residual records reference parents this journal has never seen.
	// They stay in the record set so a future merge can supply the
	// predecessor, but the replay is reported as diverged.
	for _, rec := range pending {
		if limit != nil && rec.Epoch > *limit {
			continue
		}
		j.logger.Warn("replay diverged",
			"record_epoch", uint64(rec.Epoch),
			"parent_epoch", uint64(rec.ParentEpoch),
			"tree_epoch", uint64(tr.Epoch()))
		return tr, &DivergenceError{
			AtEpoch:  rec.ParentEpoch,
			Expected: rec.ParentCommitment,
			Actual:   tr.RootCommitment(),
		}
	}
	return tr, nil
}

// latestSnapshotLocked returns the decoded snapshot with the greatest
// epoch, restricted to epochs at or below limit when limit is set.
// Undecodable snapshot facts are skipped.
func (j *Journal) latestSnapshotLocked(limit *ids.Epoch) (Snapshot, bool) {
	var best Snapshot
	found := false
	for _, f := range j.facts {
		if f.Kind != KindSnapshot {
			continue
		}
		s, err := decodeSnapshotFact(f)
		if err != nil {
			j.logger.Warn("skipping undecodable snapshot fact", "key", f.Key, "error", err)
			continue
		}
		if limit != nil && s.Epoch > *limit {
			continue
		}
		if !found || s.Epoch > best.Epoch {
			best = s
			found = true
		}
	}
	return best, found
}

// SnapshotFloor returns the epoch of the newest snapshot fact, or zero
// when the journal has never been compacted.
func (j *Journal) SnapshotFloor() ids.Epoch {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s, ok := j.latestSnapshotLocked(nil)
	if !ok {
		return 0
	}
	return s.Epoch
}
