// Package tree implements the left-balanced binary ratchet tree that is
// the authoritative interpretation of an account's journal.
//
// Leaves are devices and guardians; the root commitment plus the current
// epoch is the account's public identity. Node addressing uses the
// array-based numbering common to MLS-style trees: the leaf at position i
// occupies node index 2i, branch nodes occupy odd indices, and the
// parent/child arithmetic below keeps the tree left-balanced so that any
// subtree covers a contiguous range of leaves. The mapping is fixed; every
// implementation that replays the same journal derives the same indices
// and therefore the same commitments.
//
// Every mutation (AddLeaf, RemoveLeaf, RotatePath, RefreshPolicy) either
// succeeds, advancing the epoch and returning the affected commitment
// path, or fails leaving the tree untouched. Operations are never partial.
package tree
