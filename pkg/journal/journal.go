package journal

import (
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/tree"
)

// AttestationVerifier checks a record's threshold signature against the
// roster that existed at the record's parent epoch. The signing
// coordinator provides the production implementation.
type AttestationVerifier interface {
	Verify(signingBytes []byte, att Attestation, roster []*tree.LeafNode) error
}

// Config carries the journal's collaborators.
type Config struct {
	// Verifier validates record attestations on append. If nil, appends
	// are accepted unverified (tests, replay of pre-validated segments).
	Verifier AttestationVerifier
	// Logger for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Journal is the replicated account state: a content-addressed set of
// tree-op records plus a keyed map of facts. It is safe for concurrent
// use; a single writer lock protects mutation, and the replayed tree is
// cached until the record set changes.
type Journal struct {
	mu      sync.RWMutex
	records map[ids.Hash32]*TreeOpRecord
	facts   map[string]Fact

	verifier AttestationVerifier
	logger   *slog.Logger

	cacheKey  ids.Hash32
	cacheTree *tree.Tree
}

// New returns an empty journal.
func New(cfg Config) *Journal {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{
		records:  make(map[ids.Hash32]*TreeOpRecord),
		facts:    make(map[string]Fact),
		verifier: cfg.Verifier,
		logger:   logger,
	}
}

// NumRecords returns the number of tree-op records.
func (j *Journal) NumRecords() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}

// AppendTreeOp validates and adds a record. Adding an already-present
// record is a no-op. Fails with INVALID_EPOCH if the parent epoch does
// not precede the record epoch, INVALID_ATTESTATION if the threshold
// signature does not verify against the roster at the parent epoch, and
// CONFLICT if a distinct record collides on content hash.
func (j *Journal) AppendTreeOp(rec *TreeOpRecord) error {
	if rec.ParentEpoch >= rec.Epoch {
		return errInvalidEpoch(rec.ParentEpoch, rec.Epoch)
	}
	h, err := rec.ContentHash()
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if existing, ok := j.records[h]; ok {
		if reflect.DeepEqual(existing, rec) {
			return nil // idempotent
		}
		return errConflict(h)
	}

	if j.verifier != nil {
		roster, err := j.rosterAtLocked(rec.ParentEpoch)
		if err != nil {
			return errInvalidAttestation(err)
		}
		msg, err := rec.SigningBytes()
		if err != nil {
			return err
		}
		if err := j.verifier.Verify(msg, rec.Attestation, roster); err != nil {
			return errInvalidAttestation(err)
		}
	}

	cp := *rec
	j.records[h] = &cp
	j.invalidateCacheLocked()
	return nil
}

// AppendFact adds or joins a fact. Appending is monotone: an existing
// fact under the same (kind, key) is joined, never replaced destructively.
func (j *Journal) AppendFact(f Fact) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.appendFactLocked(f)
}

func (j *Journal) appendFactLocked(f Fact) {
	k := f.factKey()
	if cur, ok := j.facts[k]; ok {
		j.facts[k] = joinFacts(cur, f)
	} else {
		j.facts[k] = f
	}
	if f.Kind == KindSnapshot {
		j.invalidateCacheLocked()
	}
}

// GetFact returns the fact under (kind, key), if present.
func (j *Journal) GetFact(kind FactKind, key string) (Fact, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	f, ok := j.facts[Fact{Kind: kind, Key: key}.factKey()]
	return f, ok
}

// FactsByKind returns all facts of the given kind, ordered by key.
func (j *Journal) FactsByKind(kind FactKind) []Fact {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Fact
	for _, f := range j.facts {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Key < out[b].Key })
	return out
}

// Merge is the pairwise CRDT join: union of records by content hash and
// per-kind join of facts. Associative, commutative, and idempotent.
func (j *Journal) Merge(other *Journal) {
	other.mu.RLock()
	otherRecords := make(map[ids.Hash32]*TreeOpRecord, len(other.records))
	for h, r := range other.records {
		cp := *r
		otherRecords[h] = &cp
	}
	otherFacts := make([]Fact, 0, len(other.facts))
	for _, f := range other.facts {
		otherFacts = append(otherFacts, f)
	}
	other.mu.RUnlock()

	j.mu.Lock()
	defer j.mu.Unlock()
	for h, r := range otherRecords {
		if _, ok := j.records[h]; !ok {
			j.records[h] = r
		}
	}
	for _, f := range otherFacts {
		j.appendFactLocked(f)
	}
	j.invalidateCacheLocked()
}

// Clone returns a deep copy.
func (j *Journal) Clone() *Journal {
	cp := New(Config{Verifier: j.verifier, Logger: j.logger})
	cp.Merge(j)
	return cp
}

// Equal reports whether two journals hold the same records and facts.
func (j *Journal) Equal(other *Journal) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	if len(j.records) != len(other.records) || len(j.facts) != len(other.facts) {
		return false
	}
	for h := range j.records {
		o, ok := other.records[h]
		if !ok || !reflect.DeepEqual(j.records[h], o) {
			return false
		}
	}
	for k, f := range j.facts {
		o, ok := other.facts[k]
		if !ok || !reflect.DeepEqual(f, o) {
			return false
		}
	}
	return true
}

// LessOrEqual reports whether j is elementwise below other: every record
// of j is in other, and every fact of j is absorbed by other's fact under
// join.
func (j *Journal) LessOrEqual(other *Journal) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	for h := range j.records {
		if _, ok := other.records[h]; !ok {
			return false
		}
	}
	for k, f := range j.facts {
		o, ok := other.facts[k]
		if !ok || !reflect.DeepEqual(joinFacts(f, o), o) {
			return false
		}
	}
	return true
}

// OpsOrdered returns all records in replay order: ascending epoch, then
// content hash.
func (j *Journal) OpsOrdered() []*TreeOpRecord {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.opsOrderedLocked()
}

func (j *Journal) opsOrderedLocked() []*TreeOpRecord {
	type entry struct {
		hash ids.Hash32
		rec  *TreeOpRecord
	}
	entries := make([]entry, 0, len(j.records))
	for h, r := range j.records {
		entries = append(entries, entry{hash: h, rec: r})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].rec.Epoch != entries[b].rec.Epoch {
			return entries[a].rec.Epoch < entries[b].rec.Epoch
		}
		return entries[a].hash.Less(entries[b].hash)
	})
	out := make([]*TreeOpRecord, len(entries))
	for i, e := range entries {
		cp := *e.rec
		out[i] = &cp
	}
	return out
}

// Diff returns a journal holding every record with epoch greater than
// since, plus all facts. Used by anti-entropy sync rounds.
func (j *Journal) Diff(since ids.Epoch) *Journal {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := New(Config{Logger: j.logger})
	for h, r := range j.records {
		if r.Epoch > since {
			cp := *r
			out.records[h] = &cp
		}
	}
	for k, f := range j.facts {
		out.facts[k] = f
	}
	return out
}

// CurrentRootCommitment replays (or reads the cache) and returns the root.
func (j *Journal) CurrentRootCommitment() (ids.Hash32, error) {
	tr, err := j.GetTree()
	if err != nil {
		return ids.Hash32{}, err
	}
	return tr.RootCommitment(), nil
}

// GetTree returns the replayed tree, cached until the record set or the
// snapshot floor changes. The returned tree is a clone; callers cannot
// corrupt the cache.
func (j *Journal) GetTree() (*tree.Tree, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	key := j.stateKeyLocked()
	if j.cacheTree != nil && j.cacheKey == key {
		return j.cacheTree.Clone(), nil
	}
	tr, err := j.replayLocked(nil)
	if err != nil {
		return tr, err
	}
	j.cacheTree = tr
	j.cacheKey = key
	return tr.Clone(), nil
}

// ReplayToTree rebuilds the tree from scratch, ignoring the cache.
func (j *Journal) ReplayToTree() (*tree.Tree, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.replayLocked(nil)
}

// rosterAtLocked replays up to and including the given epoch and returns
// the leaves at that cut.
func (j *Journal) rosterAtLocked(epoch ids.Epoch) ([]*tree.LeafNode, error) {
	limit := epoch
	tr, err := j.replayLocked(&limit)
	if err != nil {
		return nil, err
	}
	return tr.Leaves(), nil
}

func (j *Journal) invalidateCacheLocked() {
	j.cacheTree = nil
	j.cacheKey = ids.Hash32{}
}

// stateKeyLocked digests the sorted record hashes and snapshot stamps; it
// identifies the replay input.
func (j *Journal) stateKeyLocked() ids.Hash32 {
	hashes := make([]ids.Hash32, 0, len(j.records))
	for h := range j.records {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(a, b int) bool { return hashes[a].Less(hashes[b]) })
	parts := make([][]byte, 0, len(hashes)+1)
	for i := range hashes {
		parts = append(parts, hashes[i][:])
	}
	for _, f := range j.facts {
		if f.Kind == KindSnapshot {
			stamp := f.Stamp()
			parts = append(parts, stamp[:])
		}
	}
	return ids.Hash(ids.DomainRecord, parts...)
}
