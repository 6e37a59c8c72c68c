package tree

import "github.com/aura-comms/aura/pkg/ids"

// Array-based left-balanced binary tree math. For n leaves the tree has
// 2n-1 nodes; leaves sit at even indices, branches at odd indices. The
// level of a node is the number of trailing one bits in its index.

// NodeWidth returns the number of nodes in a tree with n leaves.
func NodeWidth(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return 2*n - 1
}

// log2floor returns floor(log2(x)) for x > 0.
func log2floor(x uint32) uint32 {
	var k uint32
	for x>>1 > 0 {
		x >>= 1
		k++
	}
	return k
}

// level returns the height of a node above the leaf layer.
func level(x uint32) uint32 {
	if x&1 == 0 {
		return 0
	}
	var k uint32
	for (x>>k)&1 == 1 {
		k++
	}
	return k
}

// Root returns the root node index of a tree with n leaves (n > 0).
func Root(n uint32) ids.NodeIndex {
	w := NodeWidth(n)
	return ids.NodeIndex((uint32(1) << log2floor(w)) - 1)
}

// Left returns the left child of branch node x.
func Left(x ids.NodeIndex) ids.NodeIndex {
	k := level(uint32(x))
	return ids.NodeIndex(uint32(x) ^ (1 << (k - 1)))
}

// Right returns the right child of branch node x in a tree with n leaves.
// In a left-balanced tree the right child is pulled down until it lies
// within the node range.
func Right(x ids.NodeIndex, n uint32) ids.NodeIndex {
	k := level(uint32(x))
	r := uint32(x) ^ (3 << (k - 1))
	for r >= NodeWidth(n) {
		r = uint32(Left(ids.NodeIndex(r)))
	}
	return ids.NodeIndex(r)
}

// Parent returns the parent of node x in a tree with n leaves.
func Parent(x ids.NodeIndex, n uint32) ids.NodeIndex {
	if x == Root(n) {
		return x
	}
	// Climb from the theoretical parent until x falls inside its range.
	k := level(uint32(x))
	b := (uint32(x) >> (k + 1)) & 1
	p := (uint32(x) | (1 << k)) ^ (b << (k + 1))
	for p >= NodeWidth(n) {
		k := level(p)
		b := (p >> (k + 1)) & 1
		p = (p | (1 << k)) ^ (b << (k + 1))
	}
	return ids.NodeIndex(p)
}

// IsLeaf reports whether node x is a leaf.
func IsLeaf(x ids.NodeIndex) bool { return uint32(x)&1 == 0 }

// LeafToNode converts a leaf position to its node index.
func LeafToNode(i ids.LeafIndex) ids.NodeIndex { return ids.NodeIndex(2 * uint32(i)) }

// NodeToLeaf converts a leaf node index back to its leaf position.
func NodeToLeaf(x ids.NodeIndex) ids.LeafIndex { return ids.LeafIndex(uint32(x) / 2) }

// DirectPath returns the chain of branch nodes from leaf i (exclusive) up
// to and including the root, for a tree with n leaves.
func DirectPath(i ids.LeafIndex, n uint32) []ids.NodeIndex {
	if n == 0 {
		return nil
	}
	root := Root(n)
	x := LeafToNode(i)
	if x == root {
		return nil
	}
	var path []ids.NodeIndex
	for x != root {
		x = Parent(x, n)
		path = append(path, x)
	}
	return path
}

// LeavesUnder returns the contiguous range [lo, hi] of leaf positions
// covered by the subtree rooted at node x in a tree with n leaves.
func LeavesUnder(x ids.NodeIndex, n uint32) (lo, hi ids.LeafIndex) {
	if IsLeaf(x) {
		l := NodeToLeaf(x)
		return l, l
	}
	lo, _ = LeavesUnder(Left(x), n)
	_, hi = LeavesUnder(Right(x, n), n)
	return lo, hi
}
