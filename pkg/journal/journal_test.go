package journal

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/flow"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/tree"
)

func testKeyPackage(seed byte) tree.KeyPackage {
	sk := make([]byte, 32)
	ek := make([]byte, 32)
	for i := range sk {
		sk[i] = seed
		ek[i] = seed ^ 0xff
	}
	return tree.KeyPackage{SigningKey: sk, EncryptionKey: ek}
}

// buildChain authors n records against a fresh tree: three adds, then an
// alternation of rotations and epoch bumps. Returns the records in
// authoring order together with the tree state after each epoch.
func buildChain(t *testing.T, n int) ([]*TreeOpRecord, map[ids.Epoch]*tree.Tree) {
	t.Helper()
	author := ids.AuthorityId{}
	tr := tree.New()
	cuts := map[ids.Epoch]*tree.Tree{0: tr.Clone()}
	var recs []*TreeOpRecord

	for i := 0; i < n; i++ {
		var op TreeOp
		switch {
		case i < 3:
			op = TreeOp{Kind: OpAddLeaf, Role: tree.RoleDevice, KeyPackage: testKeyPackage(byte(i + 1))}
		case i%2 == 0:
			op = TreeOp{Kind: OpRotatePath, Target: ids.LeafIndex(i % 3), KeyPackage: testKeyPackage(byte(i + 100))}
		default:
			op = TreeOp{Kind: OpEpochBump}
		}
		rec, err := AuthorRecord(tr, op, author, uint64(1000+i))
		require.NoError(t, err)
		require.NoError(t, applyOp(tr, rec))
		recs = append(recs, rec)
		cuts[tr.Epoch()] = tr.Clone()
	}
	return recs, cuts
}

func journalWith(t *testing.T, recs []*TreeOpRecord) *Journal {
	t.Helper()
	j := New(Config{})
	for _, r := range recs {
		require.NoError(t, j.AppendTreeOp(r))
	}
	return j
}

func TestAppendTreeOpIdempotent(t *testing.T) {
	recs, _ := buildChain(t, 3)
	j := journalWith(t, recs)
	require.Equal(t, 3, j.NumRecords())

	// Re-appending an identical record is a no-op.
	require.NoError(t, j.AppendTreeOp(recs[0]))
	assert.Equal(t, 3, j.NumRecords())
}

func TestAppendTreeOpRejectsNonAdvancingEpoch(t *testing.T) {
	recs, _ := buildChain(t, 1)
	bad := *recs[0]
	bad.ParentEpoch = bad.Epoch

	err := New(Config{}).AppendTreeOp(&bad)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Invalid))
}

func TestReplayDeterministicAcrossDeliveryOrders(t *testing.T) {
	recs, cuts := buildChain(t, 8)
	want := cuts[ids.Epoch(8)]

	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		shuffled := append([]*TreeOpRecord(nil), recs...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		j := journalWith(t, shuffled)
		got, err := j.ReplayToTree()
		require.NoError(t, err)
		require.NoError(t, got.Validate())
		assert.Equal(t, want.Epoch(), got.Epoch())
		assert.Equal(t, want.RootCommitment(), got.RootCommitment())
	}
}

func TestReplayDivergence(t *testing.T) {
	recs, _ := buildChain(t, 1)
	tampered := *recs[0]
	tampered.ParentCommitment = ids.Hash(ids.DomainRecord, []byte("elsewhere"))

	j := journalWith(t, []*TreeOpRecord{&tampered})
	_, err := j.ReplayToTree()
	require.Error(t, err)
	var div *DivergenceError
	require.True(t, errors.As(err, &div))
	assert.Equal(t, ids.Epoch(0), div.AtEpoch)
}

func TestReplayForkedSiblingLosesDeterministically(t *testing.T) {
	recs, cuts := buildChain(t, 2)
	base := cuts[ids.Epoch(2)]

	// Two competing children of epoch 2. Both are valid records; replay
	// applies whichever sorts first by content hash and parks the other.
	left, err := AuthorRecord(base, TreeOp{Kind: OpEpochBump}, ids.AuthorityId{}, 2000)
	require.NoError(t, err)
	right, err := AuthorRecord(base, TreeOp{
		Kind: OpAddLeaf, Role: tree.RoleGuardian, KeyPackage: testKeyPackage(9),
	}, ids.AuthorityId{}, 2001)
	require.NoError(t, err)

	a := journalWith(t, append(append([]*TreeOpRecord(nil), recs...), left, right))
	b := journalWith(t, append(append([]*TreeOpRecord(nil), recs...), right, left))

	ta, err := a.ReplayToTree()
	require.NoError(t, err)
	tb, err := b.ReplayToTree()
	require.NoError(t, err)
	assert.Equal(t, ta.RootCommitment(), tb.RootCommitment())
	assert.Equal(t, ta.Epoch(), tb.Epoch())
}

func randomFact(t *testing.T, rng *rand.Rand) Fact {
	t.Helper()
	author := ids.AuthorityId{}
	author[0] = byte(rng.Intn(4))
	epoch := ids.Epoch(rng.Intn(5))
	switch rng.Intn(3) {
	case 0:
		f, err := NewFact(KindFlowBudget, "ctx-a", epoch, author, flow.Budget{
			Limit: uint64(rng.Intn(100)), Spent: uint64(rng.Intn(100)), Epoch: epoch,
		})
		require.NoError(t, err)
		return f
	case 1:
		f, err := NewFact(KindLeakage, "ctx-a", epoch, author, flow.LeakageCounters{
			WindowStart: uint64(100 * rng.Intn(3)),
			External:    uint64(rng.Intn(10)),
			Neighbor:    uint64(rng.Intn(10)),
		})
		require.NoError(t, err)
		return f
	default:
		f, err := NewFact(KindMembership, "leaf-"+string(rune('a'+rng.Intn(3))), epoch, author, nil)
		require.NoError(t, err)
		return f
	}
}

func TestMergeSemilatticeLaws(t *testing.T) {
	recs, _ := buildChain(t, 6)
	rng := rand.New(rand.NewSource(99))

	randomJournal := func() *Journal {
		j := New(Config{})
		for _, r := range recs {
			if rng.Intn(2) == 0 {
				require.NoError(t, j.AppendTreeOp(r))
			}
		}
		for i := 0; i < 5; i++ {
			j.AppendFact(randomFact(t, rng))
		}
		return j
	}
	merged := func(a, b *Journal) *Journal {
		m := a.Clone()
		m.Merge(b)
		return m
	}

	for trial := 0; trial < 50; trial++ {
		x, y, z := randomJournal(), randomJournal(), randomJournal()

		assert.True(t, merged(x, y).Equal(merged(y, x)), "commutativity")
		assert.True(t, merged(merged(x, y), z).Equal(merged(x, merged(y, z))), "associativity")
		assert.True(t, merged(x, x).Equal(x), "idempotency")
		assert.True(t, x.LessOrEqual(merged(x, y)), "join is an upper bound")
	}
}

func TestFactJoinIsMonotone(t *testing.T) {
	j := New(Config{})
	author := ids.AuthorityId{}

	f1, err := NewFact(KindFlowBudget, "ctx", 1, author, flow.Budget{Limit: 100, Spent: 30, Epoch: 1})
	require.NoError(t, err)
	f2, err := NewFact(KindFlowBudget, "ctx", 1, author, flow.Budget{Limit: 100, Spent: 50, Epoch: 1})
	require.NoError(t, err)
	j.AppendFact(f1)
	j.AppendFact(f2)
	j.AppendFact(f1) // stale re-delivery cannot roll spend back

	got, ok := j.GetFact(KindFlowBudget, "ctx")
	require.True(t, ok)
	var b flow.Budget
	require.NoError(t, unmarshalCanonical(got.Body, &b))
	assert.Equal(t, uint64(50), b.Spent)
}

func TestCompactionRoundTrip(t *testing.T) {
	recs, cuts := buildChain(t, 10)
	j := journalWith(t, recs)

	full, err := j.ReplayToTree()
	require.NoError(t, err)

	snap := TakeSnapshot(cuts[ids.Epoch(8)], 5000)
	require.NoError(t, j.Compact(snap, ids.AuthorityId{}))

	// Only the two records past the cut survive, plus one snapshot fact.
	assert.Equal(t, 2, j.NumRecords())
	assert.Len(t, j.FactsByKind(KindSnapshot), 1)
	assert.Equal(t, ids.Epoch(8), j.SnapshotFloor())

	compacted, err := j.ReplayToTree()
	require.NoError(t, err)
	assert.Equal(t, full.Epoch(), compacted.Epoch())
	assert.Equal(t, full.RootCommitment(), compacted.RootCommitment())

	// Compacting again with the same snapshot changes nothing.
	before := j.Clone()
	require.NoError(t, j.Compact(snap, ids.AuthorityId{}))
	assert.True(t, j.Equal(before))
}

func TestCompactionCommutesWithMerge(t *testing.T) {
	recs, cuts := buildChain(t, 10)
	snap := TakeSnapshot(cuts[ids.Epoch(6)], 5000)
	author := ids.AuthorityId{}

	x := journalWith(t, recs[:7])
	y := journalWith(t, recs[4:])

	// compact(x ⊔ y, s)
	lhs := x.Clone()
	lhs.Merge(y)
	require.NoError(t, lhs.Compact(snap, author))

	// compact(x, s) ⊔ compact(y, s)
	cx, cy := x.Clone(), y.Clone()
	require.NoError(t, cx.Compact(snap, author))
	require.NoError(t, cy.Compact(snap, author))
	rhs := cx
	rhs.Merge(cy)

	assert.True(t, lhs.Equal(rhs))

	// Both replay to the full history's tree.
	full := journalWith(t, recs)
	want, err := full.ReplayToTree()
	require.NoError(t, err)
	got, err := lhs.ReplayToTree()
	require.NoError(t, err)
	assert.Equal(t, want.RootCommitment(), got.RootCommitment())
}

func TestCompactionDropsOnlyRecords(t *testing.T) {
	recs, cuts := buildChain(t, 4)
	j := journalWith(t, recs)
	j.AppendFact(mustFact(t, KindMembership, "leaf-a", 1, nil))

	require.NoError(t, j.Compact(TakeSnapshot(cuts[ids.Epoch(4)], 100), ids.AuthorityId{}))
	_, ok := j.GetFact(KindMembership, "leaf-a")
	assert.True(t, ok, "facts survive compaction")
	assert.Zero(t, j.NumRecords())
}

func mustFact(t *testing.T, kind FactKind, key string, epoch ids.Epoch, body any) Fact {
	t.Helper()
	f, err := NewFact(kind, key, epoch, ids.AuthorityId{}, body)
	require.NoError(t, err)
	return f
}

func TestGetTreeCacheTracksMutation(t *testing.T) {
	recs, _ := buildChain(t, 4)
	j := journalWith(t, recs[:2])

	t1, err := j.GetTree()
	require.NoError(t, err)
	assert.Equal(t, ids.Epoch(2), t1.Epoch())

	// Cached path returns an equal clone.
	t2, err := j.GetTree()
	require.NoError(t, err)
	assert.Equal(t, t1.RootCommitment(), t2.RootCommitment())

	require.NoError(t, j.AppendTreeOp(recs[2]))
	t3, err := j.GetTree()
	require.NoError(t, err)
	assert.Equal(t, ids.Epoch(3), t3.Epoch())
	assert.NotEqual(t, t1.RootCommitment(), t3.RootCommitment())
}

func TestDiffReturnsRecordsPastEpoch(t *testing.T) {
	recs, _ := buildChain(t, 6)
	j := journalWith(t, recs)
	j.AppendFact(mustFact(t, KindSession, "s1", 2, nil))

	d := j.Diff(4)
	assert.Equal(t, 2, d.NumRecords())
	_, ok := d.GetFact(KindSession, "s1")
	assert.True(t, ok, "diff always carries facts")

	// Merging the diff back is absorbed.
	before := j.Clone()
	j.Merge(d)
	assert.True(t, j.Equal(before))
}
