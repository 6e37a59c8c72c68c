package threshold

import (
	"context"
	"crypto/rand"
	"sync/atomic"
	"testing"

	"github.com/cloudflare/circl/group"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/tree"
)

func makeGroup(t *testing.T, k, n uint32) (GroupKeying, []*Witness) {
	t.Helper()
	keying, err := DealShares(rand.Reader, k, n)
	require.NoError(t, err)
	witnesses := make([]*Witness, n)
	for i, share := range keying.Shares {
		seed := []byte{byte(i + 1), 0x5e, 0xed}
		witnesses[i] = NewWitness(ids.LeafId(i+1), share, seed)
	}
	return keying, witnesses
}

func makeCoordinator(t *testing.T, k uint32, keying GroupKeying, signers []Signer) *Coordinator {
	t.Helper()
	groupKey, err := keying.GroupKeyBytes()
	require.NoError(t, err)
	publics := make(map[uint32]group.Element, len(keying.Shares))
	for _, share := range keying.Shares {
		publics[share.Index] = share.Public
	}
	coord, err := NewCoordinator(Config{
		Threshold:    k,
		GroupKey:     groupKey,
		SharePublics: publics,
		Signers:      signers,
	})
	require.NoError(t, err)
	return coord
}

func asSigners(ws []*Witness) []Signer {
	out := make([]Signer, len(ws))
	for i, w := range ws {
		out[i] = w
	}
	return out
}

func TestDealSharesValidatesThreshold(t *testing.T) {
	_, err := DealShares(rand.Reader, 6, 5)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.Invalid))

	keying, err := DealShares(rand.Reader, 3, 5)
	require.NoError(t, err)
	assert.Len(t, keying.Shares, 5)
}

func TestThreeOfFiveSigns(t *testing.T) {
	keying, witnesses := makeGroup(t, 3, 5)
	coord := makeCoordinator(t, 3, keying, asSigners(witnesses))

	msg := []byte("tree-op record signing bytes")
	sig, leaves, err := coord.Sign(context.Background(), msg, 7)
	require.NoError(t, err)
	assert.Len(t, leaves, 3)

	groupKey, err := keying.GroupKeyBytes()
	require.NoError(t, err)
	require.NoError(t, VerifySignature(groupKey, msg, sig))
	assert.Error(t, VerifySignature(groupKey, []byte("different message"), sig))
}

type unresponsiveSigner struct{ *Witness }

func (u unresponsiveSigner) Commit(context.Context, ids.Epoch) (NonceCommitment, error) {
	return NonceCommitment{}, fault.New(fault.Network, "UNREACHABLE", "witness offline")
}

func TestMissingQuorumTimesOut(t *testing.T) {
	keying, witnesses := makeGroup(t, 3, 5)
	signers := asSigners(witnesses)
	// Three of five witnesses never respond; only two commitments arrive.
	for i := 2; i < 5; i++ {
		signers[i] = unresponsiveSigner{witnesses[i]}
	}
	coord := makeCoordinator(t, 3, keying, signers)

	_, _, err := coord.Sign(context.Background(), []byte("msg"), 1)
	require.Error(t, err)
	assert.Equal(t, CodeTimedOut, fault.CodeOf(err))
	assert.True(t, fault.Retryable(err))
}

type countingSigner struct {
	*Witness
	commits atomic.Int32
}

func (c *countingSigner) Commit(ctx context.Context, epoch ids.Epoch) (NonceCommitment, error) {
	c.commits.Add(1)
	return c.Witness.Commit(ctx, epoch)
}

func TestFastPathReusesCachedCommitments(t *testing.T) {
	keying, witnesses := makeGroup(t, 2, 3)
	counting := make([]*countingSigner, len(witnesses))
	signers := make([]Signer, len(witnesses))
	for i, w := range witnesses {
		counting[i] = &countingSigner{Witness: w}
		signers[i] = counting[i]
	}
	coord := makeCoordinator(t, 2, keying, signers)

	require.NoError(t, coord.Prewarm(context.Background(), 4))
	assert.Equal(t, 3, coord.CachedCommitments(4))
	before := counting[0].commits.Load() + counting[1].commits.Load() + counting[2].commits.Load()

	_, _, err := coord.Sign(context.Background(), []byte("msg"), 4)
	require.NoError(t, err)
	after := counting[0].commits.Load() + counting[1].commits.Load() + counting[2].commits.Load()
	assert.Equal(t, before, after, "round 1 skipped when cached commitments cover the threshold")
}

func TestEpochRotationInvalidatesNonces(t *testing.T) {
	keying, witnesses := makeGroup(t, 2, 3)
	coord := makeCoordinator(t, 2, keying, asSigners(witnesses))

	_, err := witnesses[0].SetNextNonce(9)
	require.NoError(t, err)
	require.NoError(t, coord.Prewarm(context.Background(), 9))
	assert.Equal(t, StateCached, witnesses[0].State(9))

	coord.AdvanceEpoch()
	assert.Equal(t, StateIdle, witnesses[0].State(9))
	assert.Zero(t, coord.CachedCommitments(9))
}

func TestSetNextNonceReplaces(t *testing.T) {
	_, witnesses := makeGroup(t, 2, 3)
	w := witnesses[0]

	first, err := w.SetNextNonce(2)
	require.NoError(t, err)
	second, err := w.SetNextNonce(2)
	require.NoError(t, err)
	assert.NotEqual(t, first.D, second.D, "a replacement nonce replaces, never appends")

	// Commit returns the replacement, not the original.
	got, err := w.Commit(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, second.D, got.D)
}

func TestNonceSingleUse(t *testing.T) {
	keying, witnesses := makeGroup(t, 1, 1)
	w := witnesses[0]
	groupKey, err := keying.GroupKeyBytes()
	require.NoError(t, err)

	commit, err := w.Commit(context.Background(), 3)
	require.NoError(t, err)
	req := PartialRequest{Msg: []byte("m"), Epoch: 3, Commitments: []NonceCommitment{commit}, GroupKey: groupKey}

	_, err = w.PartialSign(context.Background(), req)
	require.NoError(t, err)
	_, err = w.PartialSign(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, CodeNonceConsumed, fault.CodeOf(err))
}

type corruptSigner struct{ *Witness }

func (c corruptSigner) PartialSign(ctx context.Context, req PartialRequest) (PartialSignature, error) {
	p, err := c.Witness.PartialSign(ctx, req)
	if err != nil {
		return p, err
	}
	z := suite.NewScalar()
	if err := z.UnmarshalBinary(p.Z); err != nil {
		return p, err
	}
	z.Add(z, suite.NewScalar().SetUint64(1))
	p.Z, err = z.MarshalBinary()
	return p, err
}

func TestInvalidPartialExcludedAndQuorumSurvives(t *testing.T) {
	keying, witnesses := makeGroup(t, 3, 5)
	signers := asSigners(witnesses)
	signers[0] = corruptSigner{witnesses[0]} // lowest index, always chosen first

	coord := makeCoordinator(t, 3, keying, signers)
	msg := []byte("msg")
	sig, leaves, err := coord.Sign(context.Background(), msg, 1)
	require.NoError(t, err)
	assert.NotContains(t, leaves, ids.LeafId(1), "corrupt witness excluded from the final set")

	groupKey, err := keying.GroupKeyBytes()
	require.NoError(t, err)
	require.NoError(t, VerifySignature(groupKey, msg, sig))
}

func TestInvalidPartialBelowQuorumFails(t *testing.T) {
	keying, witnesses := makeGroup(t, 3, 3)
	signers := asSigners(witnesses)
	signers[1] = corruptSigner{witnesses[1]}

	coord := makeCoordinator(t, 3, keying, signers)
	_, _, err := coord.Sign(context.Background(), []byte("msg"), 1)
	require.Error(t, err)
	assert.Equal(t, CodeInsufficientSigners, fault.CodeOf(err))
}

func TestAttestationVerifier(t *testing.T) {
	keying, witnesses := makeGroup(t, 2, 3)
	coord := makeCoordinator(t, 2, keying, asSigners(witnesses))
	groupKey, err := keying.GroupKeyBytes()
	require.NoError(t, err)

	msg := []byte("signing bytes")
	att, err := coord.Attest(context.Background(), msg, 5)
	require.NoError(t, err)

	roster := []*tree.LeafNode{
		{LeafId: 1, Role: tree.RoleDevice},
		{LeafId: 2, Role: tree.RoleDevice},
		{LeafId: 3, Role: tree.RoleDevice},
	}
	v := Verifier{MinSigners: 2, GroupKey: groupKey}
	require.NoError(t, v.Verify(msg, att, roster))

	// Tampered message.
	assert.Error(t, v.Verify([]byte("other"), att, roster))

	// Signer absent from the roster.
	short := roster[1:]
	assert.Error(t, v.Verify(msg, att, short))

	// Guardian leaves cannot attest tree ops.
	roster[0].Role = tree.RoleGuardian
	assert.Error(t, v.Verify(msg, att, roster))
	roster[0].Role = tree.RoleDevice

	// Below quorum.
	strict := Verifier{MinSigners: 3, GroupKey: groupKey}
	assert.Error(t, strict.Verify(msg, att, roster))
}
