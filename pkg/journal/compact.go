package journal

import (
	"github.com/aura-comms/aura/pkg/ids"
)

// Compact installs an attested snapshot as the new replay floor and
// drops every record whose parent epoch precedes the cut. Facts are
// never dropped, so merging two independently compacted journals still
// converges. Compaction is a pure function of (journal, snapshot):
// compacting a merge equals merging the compactions, and compacting
// twice with the same snapshot is a no-op.
func (j *Journal) Compact(s Snapshot, author ids.AuthorityId) error {
	f, err := s.Fact(author)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	dropped := 0
	for h, rec := range j.records {
		if rec.ParentEpoch < s.Epoch {
			delete(j.records, h)
			dropped++
		}
	}
	j.appendFactLocked(f)
	j.invalidateCacheLocked()

	j.logger.Info("compacted journal",
		"cut_epoch", uint64(s.Epoch), "dropped", dropped, "remaining", len(j.records))
	return nil
}
