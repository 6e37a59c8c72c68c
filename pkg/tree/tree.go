package tree

import (
	"fmt"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
)

// PathNode records the commitment change at one node on an affected path.
type PathNode struct {
	Index ids.NodeIndex
	Old   ids.Hash32
	New   ids.Hash32
}

// AffectedPath is returned by every successful mutation: the old and new
// commitments of each node from the mutated leaf (or branch) up to the
// root, for downstream witnessing.
type AffectedPath struct {
	Epoch ids.Epoch
	Nodes []PathNode
}

// Tree is the in-memory ratchet tree. It is owned exclusively by the
// journal's writer; it is not safe for concurrent mutation.
type Tree struct {
	leaves     []*LeafNode
	policies   map[ids.NodeIndex]Policy
	epoch      ids.Epoch
	nextLeafID ids.LeafId
	commits    map[ids.NodeIndex]ids.Hash32
	root       ids.Hash32
}

// Restore rebuilds a tree from a snapshot cut: ordered leaves, policy
// overrides, and the epoch at which the cut was taken. Commitments are
// recomputed from scratch.
func Restore(leaves []*LeafNode, policies map[ids.NodeIndex]Policy, epoch ids.Epoch) (*Tree, error) {
	t := New()
	var maxID ids.LeafId
	for i, l := range leaves {
		if uint32(l.LeafIndex) != uint32(i) {
			return nil, errCommitmentMismatch(fmt.Sprintf("restored leaf %d carries index %d", i, l.LeafIndex))
		}
		t.leaves = append(t.leaves, l.clone())
		if l.LeafId >= maxID {
			maxID = l.LeafId + 1
		}
	}
	for x, p := range policies {
		t.policies[x] = p
	}
	t.nextLeafID = maxID
	t.epoch = epoch
	t.recompute()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// New returns an empty tree at epoch 0.
func New() *Tree {
	t := &Tree{policies: make(map[ids.NodeIndex]Policy), commits: make(map[ids.NodeIndex]ids.Hash32)}
	t.root = emptyRoot()
	return t
}

func emptyRoot() ids.Hash32 { return ids.Hash(ids.DomainEmpty) }

// Epoch returns the tree's current epoch.
func (t *Tree) Epoch() ids.Epoch { return t.epoch }

// NumLeaves returns the number of occupied leaves.
func (t *Tree) NumLeaves() uint32 { return uint32(len(t.leaves)) }

// RootCommitment returns the cached root commitment.
func (t *Tree) RootCommitment() ids.Hash32 { return t.root }

// GetLeaf returns the leaf at the given position.
func (t *Tree) GetLeaf(i ids.LeafIndex) (*LeafNode, error) {
	if uint32(i) >= uint32(len(t.leaves)) {
		return nil, errLeafNotFound(uint32(i))
	}
	return t.leaves[i].clone(), nil
}

// FindLeaf returns the leaf with the given stable id, if present.
func (t *Tree) FindLeaf(id ids.LeafId) (*LeafNode, bool) {
	for _, l := range t.leaves {
		if l.LeafId == id {
			return l.clone(), true
		}
	}
	return nil, false
}

// GetBranch returns the materialized branch node at index x.
func (t *Tree) GetBranch(x ids.NodeIndex) (*BranchNode, error) {
	n := t.NumLeaves()
	if IsLeaf(x) || uint32(x) >= NodeWidth(n) {
		return nil, errBranchNotFound(uint32(x))
	}
	b := &BranchNode{Index: x, Commitment: t.commits[x]}
	if p, ok := t.policies[x]; ok {
		cp := p
		b.Policy = &cp
	}
	return b, nil
}

// Roster returns the ordered list of occupied leaf ids.
func (t *Tree) Roster() []ids.LeafId {
	out := make([]ids.LeafId, len(t.leaves))
	for i, l := range t.leaves {
		out[i] = l.LeafId
	}
	return out
}

// Policies returns a copy of the per-branch policy overrides.
func (t *Tree) Policies() map[ids.NodeIndex]Policy {
	out := make(map[ids.NodeIndex]Policy, len(t.policies))
	for k, v := range t.policies {
		out[k] = v
	}
	return out
}

// Leaves returns clones of all occupied leaves in order.
func (t *Tree) Leaves() []*LeafNode {
	out := make([]*LeafNode, len(t.leaves))
	for i, l := range t.leaves {
		out[i] = l.clone()
	}
	return out
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	cp := New()
	cp.epoch = t.epoch
	cp.nextLeafID = t.nextLeafID
	for _, l := range t.leaves {
		cp.leaves = append(cp.leaves, l.clone())
	}
	for k, v := range t.policies {
		cp.policies[k] = v
	}
	cp.recompute()
	return cp
}

// SetEpoch forces the epoch to e. Used by journal replay, which stamps the
// tree with each applied record's epoch. e must exceed the current epoch.
func (t *Tree) SetEpoch(e ids.Epoch) error {
	if e <= t.epoch && !(t.epoch == 0 && e == 0) {
		return fault.Newf(fault.Invalid, CodeInvalidEpoch, "epoch %d does not advance %d", e, t.epoch)
	}
	t.epoch = e
	return nil
}

// BumpEpoch advances the epoch without touching the membership. Used for
// EpochBump records (key-schedule turnover, fence activation).
func (t *Tree) BumpEpoch() AffectedPath {
	t.epoch++
	return AffectedPath{Epoch: t.epoch}
}

// AddLeaf appends a leaf at the next free position and recomputes
// commitments along its path.
func (t *Tree) AddLeaf(role Role, kp KeyPackage, metadata []byte) (AffectedPath, error) {
	idx := ids.LeafIndex(len(t.leaves))
	leaf := &LeafNode{
		LeafId:     t.nextLeafID,
		LeafIndex:  idx,
		Role:       role,
		KeyPackage: kp,
		Metadata:   metadata,
	}
	t.nextLeafID++
	t.leaves = append(t.leaves, leaf)
	path := t.commitAndPath(idx)
	t.epoch++
	path.Epoch = t.epoch
	return path, nil
}

// RemoveLeaf removes the leaf at target by swap-with-last, keeping the
// occupied leaves a contiguous prefix.
func (t *Tree) RemoveLeaf(target ids.LeafIndex) (AffectedPath, error) {
	n := uint32(len(t.leaves))
	if uint32(target) >= n {
		return AffectedPath{}, errLeafNotFound(uint32(target))
	}
	last := ids.LeafIndex(n - 1)

	before := t.snapshotCommits()
	if target != last {
		moved := t.leaves[last]
		moved.LeafIndex = target
		t.leaves[target] = moved
	}
	t.leaves = t.leaves[:n-1]

	// Policies keyed on nodes that no longer exist are dropped.
	width := NodeWidth(uint32(len(t.leaves)))
	for x := range t.policies {
		if uint32(x) >= width {
			delete(t.policies, x)
		}
	}

	t.recompute()
	path := t.diffCommits(before)
	t.epoch++
	path.Epoch = t.epoch
	return path, nil
}

// RotatePath installs a fresh KeyPackage at the target leaf and recomputes
// commitments from leaf to root. Old commitments are captured in the
// returned path for forward-secrecy auditing.
func (t *Tree) RotatePath(target ids.LeafIndex, kp KeyPackage) (AffectedPath, error) {
	if uint32(target) >= uint32(len(t.leaves)) {
		return AffectedPath{}, errLeafNotFound(uint32(target))
	}
	t.leaves[target].KeyPackage = kp
	path := t.commitAndPath(target)
	t.epoch++
	path.Epoch = t.epoch
	return path, nil
}

// RefreshPolicy replaces the policy override on a branch node and
// recomputes commitments from that branch to the root.
func (t *Tree) RefreshPolicy(x ids.NodeIndex, p Policy) (AffectedPath, error) {
	n := t.NumLeaves()
	if IsLeaf(x) || uint32(x) >= NodeWidth(n) {
		return AffectedPath{}, errBranchNotFound(uint32(x))
	}
	lo, hi := LeavesUnder(x, n)
	if err := p.CheckWellFormed(uint32(hi-lo) + 1); err != nil {
		return AffectedPath{}, errInvalidPolicy(err)
	}

	before := t.snapshotCommits()
	t.policies[x] = p
	t.recompute()
	path := t.diffCommits(before)
	t.epoch++
	path.Epoch = t.epoch
	return path, nil
}

// Validate checks the tree invariants: contiguous leaf prefix, interior
// commitments equal to the hash of their children, well-formed threshold
// policies, and a cached root matching fresh recomputation.
func (t *Tree) Validate() error {
	for i, l := range t.leaves {
		if uint32(l.LeafIndex) != uint32(i) {
			return errCommitmentMismatch(fmt.Sprintf("leaf at position %d carries index %d", i, l.LeafIndex))
		}
	}
	n := t.NumLeaves()
	for x, p := range t.policies {
		lo, hi := LeavesUnder(x, n)
		if err := p.CheckWellFormed(uint32(hi-lo) + 1); err != nil {
			return errInvalidPolicy(err)
		}
	}
	fresh := t.computeNode(Root(n))
	if n == 0 {
		fresh = emptyRoot()
	}
	if fresh != t.root {
		return errCommitmentMismatch("cached root differs from recomputation")
	}
	for x, c := range t.commits {
		if !IsLeaf(x) {
			if got := t.computeNode(x); got != c {
				return errCommitmentMismatch(fmt.Sprintf("branch %d cached commitment stale", x))
			}
		}
	}
	return nil
}

// computeNode derives the commitment of node x from current leaf contents.
func (t *Tree) computeNode(x ids.NodeIndex) ids.Hash32 {
	n := t.NumLeaves()
	if n == 0 {
		return emptyRoot()
	}
	if IsLeaf(x) {
		return t.leaves[NodeToLeaf(x)].hash()
	}
	left := t.computeNode(Left(x))
	right := t.computeNode(Right(x, n))
	var policyEnc []byte
	if p, ok := t.policies[x]; ok {
		policyEnc = p.encode()
	}
	return ids.Hash(ids.DomainBranch, left[:], right[:], policyEnc)
}

// recompute rebuilds the full commitment cache and root eagerly.
func (t *Tree) recompute() {
	t.commits = make(map[ids.NodeIndex]ids.Hash32)
	n := t.NumLeaves()
	if n == 0 {
		t.root = emptyRoot()
		return
	}
	for x := uint32(0); x < NodeWidth(n); x++ {
		t.commits[ids.NodeIndex(x)] = t.computeNode(ids.NodeIndex(x))
	}
	t.root = t.commits[Root(n)]
}

// commitAndPath recomputes commitments and returns the affected path for
// the leaf at position i (leaf node plus its direct path to the root).
func (t *Tree) commitAndPath(i ids.LeafIndex) AffectedPath {
	before := t.snapshotCommits()
	t.recompute()

	n := t.NumLeaves()
	nodes := []ids.NodeIndex{LeafToNode(i)}
	nodes = append(nodes, DirectPath(i, n)...)

	var path AffectedPath
	for _, x := range nodes {
		path.Nodes = append(path.Nodes, PathNode{Index: x, Old: before[x], New: t.commits[x]})
	}
	return path
}

func (t *Tree) snapshotCommits() map[ids.NodeIndex]ids.Hash32 {
	cp := make(map[ids.NodeIndex]ids.Hash32, len(t.commits))
	for k, v := range t.commits {
		cp[k] = v
	}
	return cp
}

// diffCommits returns every node whose commitment changed relative to the
// snapshot, ordered by node index.
func (t *Tree) diffCommits(before map[ids.NodeIndex]ids.Hash32) AffectedPath {
	var path AffectedPath
	n := t.NumLeaves()
	for x := uint32(0); x < NodeWidth(n); x++ {
		idx := ids.NodeIndex(x)
		if before[idx] != t.commits[idx] {
			path.Nodes = append(path.Nodes, PathNode{Index: idx, Old: before[idx], New: t.commits[idx]})
		}
	}
	return path
}
