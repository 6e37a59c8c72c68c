package tree

import "github.com/aura-comms/aura/pkg/fault"

// Error codes for tree operations. All tree errors leave the tree
// unchanged.
const (
	CodeLeafNotFound       = "LEAF_NOT_FOUND"
	CodeBranchNotFound     = "BRANCH_NOT_FOUND"
	CodeInvalidPolicy      = "INVALID_POLICY"
	CodeCommitmentMismatch = "COMMITMENT_MISMATCH"
	CodeInvalidEpoch       = "INVALID_EPOCH"
)

func errLeafNotFound(i uint32) error {
	return fault.Newf(fault.NotFound, CodeLeafNotFound, "leaf index %d not found", i)
}

func errBranchNotFound(x uint32) error {
	return fault.Newf(fault.NotFound, CodeBranchNotFound, "branch node %d not found", x)
}

func errInvalidPolicy(err error) error {
	return fault.New(fault.Invalid, CodeInvalidPolicy, "policy rejected").WithCause(err)
}

func errCommitmentMismatch(detail string) error {
	return fault.Newf(fault.Internal, CodeCommitmentMismatch, "commitment mismatch: %s", detail)
}
