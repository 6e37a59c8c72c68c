package tree

import (
	"fmt"
	"testing"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeyPackage(seed byte) KeyPackage {
	sk := make([]byte, 32)
	for i := range sk {
		sk[i] = seed
	}
	return KeyPackage{SigningKey: sk}
}

func addDevices(t *testing.T, tr *Tree, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		_, err := tr.AddLeaf(RoleDevice, testKeyPackage(byte(i+1)), nil)
		require.NoError(t, err)
	}
}

func TestEmptyTree(t *testing.T) {
	tr := New()
	assert.Equal(t, uint32(0), tr.NumLeaves())
	assert.Equal(t, ids.Epoch(0), tr.Epoch())
	assert.False(t, tr.RootCommitment().IsZero())
	require.NoError(t, tr.Validate())
}

func TestAddLeafAdvancesEpochAndRoot(t *testing.T) {
	tr := New()
	seen := map[ids.Hash32]bool{tr.RootCommitment(): true}
	for i := 0; i < 5; i++ {
		path, err := tr.AddLeaf(RoleDevice, testKeyPackage(byte(i+1)), nil)
		require.NoError(t, err)
		assert.Equal(t, ids.Epoch(i+1), tr.Epoch())
		assert.Equal(t, tr.Epoch(), path.Epoch)
		assert.False(t, seen[tr.RootCommitment()], "root must change on every mutation")
		seen[tr.RootCommitment()] = true
		require.NoError(t, tr.Validate())
	}
	assert.Equal(t, uint32(5), tr.NumLeaves())
}

func TestAffectedPathCoversLeafToRoot(t *testing.T) {
	tr := New()
	addDevices(t, tr, 4)
	path, err := tr.AddLeaf(RoleDevice, testKeyPackage(9), nil)
	require.NoError(t, err)

	// First node is the new leaf, last is the root.
	require.NotEmpty(t, path.Nodes)
	assert.Equal(t, LeafToNode(4), path.Nodes[0].Index)
	assert.Equal(t, Root(5), path.Nodes[len(path.Nodes)-1].Index)
	for _, pn := range path.Nodes {
		assert.NotEqual(t, pn.Old, pn.New, "path nodes must record a change")
	}
}

func TestRemoveLeafSwapsWithLast(t *testing.T) {
	tr := New()
	addDevices(t, tr, 5)
	lastLeaf, err := tr.GetLeaf(4)
	require.NoError(t, err)

	_, err = tr.RemoveLeaf(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), tr.NumLeaves())
	require.NoError(t, tr.Validate())

	moved, err := tr.GetLeaf(1)
	require.NoError(t, err)
	assert.Equal(t, lastLeaf.LeafId, moved.LeafId, "last leaf moves into the vacated slot")
	assert.Equal(t, ids.LeafIndex(1), moved.LeafIndex)
}

func TestRemoveLastLeafYieldsEmptyTree(t *testing.T) {
	tr := New()
	addDevices(t, tr, 1)
	_, err := tr.RemoveLeaf(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), tr.NumLeaves())
	assert.Equal(t, New().RootCommitment(), tr.RootCommitment())
	require.NoError(t, tr.Validate())
}

func TestRemoveLeafNotFound(t *testing.T) {
	tr := New()
	addDevices(t, tr, 2)
	epoch := tr.Epoch()
	root := tr.RootCommitment()

	_, err := tr.RemoveLeaf(7)
	assert.True(t, fault.IsKind(err, fault.NotFound))
	assert.Equal(t, epoch, tr.Epoch(), "failed operation leaves the tree unchanged")
	assert.Equal(t, root, tr.RootCommitment())
}

func TestRotatePathChangesOnlyAffectedSubtree(t *testing.T) {
	tr := New()
	addDevices(t, tr, 4)
	rootBefore := tr.RootCommitment()

	path, err := tr.RotatePath(0, testKeyPackage(0xAA))
	require.NoError(t, err)
	assert.NotEqual(t, rootBefore, tr.RootCommitment())
	require.NoError(t, tr.Validate())

	// Leaf 3 sits in the right subtree; its commitment is untouched.
	for _, pn := range path.Nodes {
		assert.NotEqual(t, LeafToNode(3), pn.Index)
	}
	// Old commitments are captured for auditing.
	assert.False(t, path.Nodes[0].Old.IsZero())
}

func TestRefreshPolicy(t *testing.T) {
	tr := New()
	addDevices(t, tr, 5)
	root := Root(5)

	_, err := tr.RefreshPolicy(root, ThresholdPolicy(3, 5))
	require.NoError(t, err)
	require.NoError(t, tr.Validate())

	b, err := tr.GetBranch(root)
	require.NoError(t, err)
	require.NotNil(t, b.Policy)
	assert.Equal(t, uint32(3), b.Policy.K)
}

func TestRefreshPolicyRejectsBadThreshold(t *testing.T) {
	tr := New()
	addDevices(t, tr, 5)

	// k > n
	_, err := tr.RefreshPolicy(Root(5), ThresholdPolicy(6, 5))
	assert.True(t, fault.IsKind(err, fault.Invalid))

	// n does not match leaves under the branch
	_, err = tr.RefreshPolicy(Root(5), ThresholdPolicy(2, 3))
	assert.True(t, fault.IsKind(err, fault.Invalid))

	// leaf node is not a branch
	_, err = tr.RefreshPolicy(LeafToNode(0), ThresholdPolicy(1, 1))
	assert.True(t, fault.IsKind(err, fault.NotFound))
}

func TestPolicyCombinators(t *testing.T) {
	p := OneOf(ThresholdPolicy(3, 5), AnyPolicy())
	assert.NoError(t, p.CheckWellFormed(5))
	assert.True(t, p.Satisfied(1), "Any arm satisfies with one signer")

	all := AllOf(ThresholdPolicy(3, 5))
	assert.False(t, all.Satisfied(2))
	assert.True(t, all.Satisfied(3))

	empty := Policy{Kind: PolicyAll}
	assert.Error(t, empty.CheckWellFormed(5))
}

func TestCloneIsIndependent(t *testing.T) {
	tr := New()
	addDevices(t, tr, 3)
	cp := tr.Clone()
	require.Equal(t, tr.RootCommitment(), cp.RootCommitment())

	_, err := cp.AddLeaf(RoleGuardian, testKeyPackage(0x77), nil)
	require.NoError(t, err)
	assert.NotEqual(t, tr.RootCommitment(), cp.RootCommitment())
	assert.Equal(t, uint32(3), tr.NumLeaves())
}

func TestDeterministicCommitments(t *testing.T) {
	build := func() *Tree {
		tr := New()
		for i := 0; i < 6; i++ {
			_, err := tr.AddLeaf(RoleDevice, testKeyPackage(byte(i+1)), []byte(fmt.Sprintf("device-%d", i)))
			require.NoError(t, err)
		}
		_, err := tr.RemoveLeaf(2)
		require.NoError(t, err)
		_, err = tr.RotatePath(1, testKeyPackage(0xF0))
		require.NoError(t, err)
		return tr
	}
	a, b := build(), build()
	assert.Equal(t, a.RootCommitment(), b.RootCommitment())
	assert.Equal(t, a.Epoch(), b.Epoch())
}

func TestSetEpochMonotonic(t *testing.T) {
	tr := New()
	require.NoError(t, tr.SetEpoch(5))
	err := tr.SetEpoch(5)
	assert.True(t, fault.IsKind(err, fault.Invalid))
	err = tr.SetEpoch(3)
	assert.True(t, fault.IsKind(err, fault.Invalid))
	require.NoError(t, tr.SetEpoch(9))
}

func TestGuardianLeavesTracked(t *testing.T) {
	tr := New()
	addDevices(t, tr, 2)
	_, err := tr.AddLeaf(RoleGuardian, testKeyPackage(0x33), nil)
	require.NoError(t, err)

	leaf, err := tr.GetLeaf(2)
	require.NoError(t, err)
	assert.Equal(t, RoleGuardian, leaf.Role)
	assert.Equal(t, "guardian", leaf.Role.String())
}
