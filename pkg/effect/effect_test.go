package effect

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-comms/aura/pkg/flow"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
)

func newTestingInterp(seed int64) *Testing {
	return NewTesting(seed, flow.NewLedger(1000), journal.New(journal.Config{}))
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	in := newTestingInterp(1)
	ctxID := ids.NewContextId()
	auth := ids.NewAuthorityId()

	cmds := []Command{
		ChargeBudget(ctxID, auth, ids.AuthorityId{}, 1, 10),
		ChargeBudget(ctxID, auth, ids.AuthorityId{}, 1, 5000), // exceeds limit
		StoreMetadata("never", []byte("reached")),
	}
	results, err := Run(context.Background(), in, cmds)
	require.NoError(t, err)
	require.Len(t, results, 2, "execution halts at the failed charge")
	assert.Equal(t, StatusReceipt, results[0].Status)
	assert.Equal(t, StatusFailure, results[1].Status)

	_, present, err := in.Store.Retrieve("never")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestChargeProducesReceipt(t *testing.T) {
	in := newTestingInterp(1)
	ctxID := ids.NewContextId()
	auth := ids.NewAuthorityId()

	res, err := in.Execute(context.Background(), ChargeBudget(ctxID, auth, ids.AuthorityId{}, 1, 25))
	require.NoError(t, err)
	require.Equal(t, StatusReceipt, res.Status)
	assert.Equal(t, uint64(1), res.Receipt.Nonce)
	assert.Equal(t, uint64(25), res.Receipt.Cost)
}

func TestSeededNoncesAreReproducible(t *testing.T) {
	a := newTestingInterp(42)
	b := newTestingInterp(42)

	for i := 0; i < 3; i++ {
		ra, err := a.Execute(context.Background(), GenerateNonce(32))
		require.NoError(t, err)
		rb, err := b.Execute(context.Background(), GenerateNonce(32))
		require.NoError(t, err)
		assert.Equal(t, ra.Nonce, rb.Nonce)
		assert.Len(t, ra.Nonce, 32)
	}

	c := newTestingInterp(43)
	rc, err := c.Execute(context.Background(), GenerateNonce(32))
	require.NoError(t, err)
	ra, err := a.Execute(context.Background(), GenerateNonce(32))
	require.NoError(t, err)
	assert.NotEqual(t, ra.Nonce, rc.Nonce)
}

func TestEnvelopeQueuedNotSent(t *testing.T) {
	in := newTestingInterp(1)
	to := ids.NewAuthorityId()

	_, err := in.Execute(context.Background(), SendEnvelope(to, []byte("payload")))
	require.NoError(t, err)
	out := in.Outbox()
	require.Len(t, out, 1)
	assert.Equal(t, to, out[0].To)
	assert.Equal(t, []byte("payload"), out[0].Payload)
}

func TestLeakageAccumulates(t *testing.T) {
	in := newTestingInterp(1)
	for i := 0; i < 3; i++ {
		_, err := in.Execute(context.Background(), RecordLeakage(flow.ObserverExternal, 4))
		require.NoError(t, err)
	}
	_, err := in.Execute(context.Background(), RecordLeakage(flow.ObserverNeighbor, 2))
	require.NoError(t, err)

	c := in.Leakage()
	assert.Equal(t, uint64(12), c.External)
	assert.Equal(t, uint64(2), c.Neighbor)
}

func TestCommandRoundTrip(t *testing.T) {
	f, err := journal.NewFact(journal.KindSession, "s1", 3, ids.NewAuthorityId(), nil)
	require.NoError(t, err)
	cmd := AppendJournal(f)

	b, err := cmd.Encode()
	require.NoError(t, err)
	got, err := DecodeCommand(b)
	require.NoError(t, err)
	assert.Equal(t, cmd, got)
}

func TestSimulationRecordsAndReplays(t *testing.T) {
	ctx := context.Background()
	ctxID := ids.NewContextId()
	auth := ids.NewAuthorityId()
	peer := ids.NewAuthorityId()
	fact, err := journal.NewFact(journal.KindBudgetCharged, "r1", 1, auth, nil)
	require.NoError(t, err)

	a := NewSimulation(7, 1_000, flow.NewLedger(1000), journal.New(journal.Config{}))
	cmds := []Command{
		ChargeBudget(ctxID, auth, peer, 1, 10),
		AppendJournal(fact),
		RecordLeakage(flow.ObserverExternal, 8),
		StoreMetadata("meta:k", []byte("v")),
		SendEnvelope(peer, []byte("hello")),
		GenerateNonce(16),
	}
	results, err := Run(ctx, a, cmds)
	require.NoError(t, err)
	require.Len(t, results, len(cmds))
	events := a.Events()
	require.Len(t, events, len(cmds))
	assert.Equal(t, EventBudgetCharged, events[0].Kind)
	assert.Equal(t, EventNonceGenerated, events[5].Kind)

	// Replaying the event log against a fresh simulation with the same
	// seed reproduces the journal, the outbox, and the nonces.
	b := NewSimulation(7, 1_000, flow.NewLedger(1000), journal.New(journal.Config{}))
	require.NoError(t, b.Replay(ctx, events))
	assert.True(t, a.Journal.Equal(b.Journal))
	assert.Equal(t, a.Outbox(), b.Outbox())
	assert.Equal(t, events[5].Nonce, b.Events()[5].Nonce)
}

func TestSimulationClockStampsEvents(t *testing.T) {
	sim := NewSimulation(1, 500, flow.NewLedger(100), journal.New(journal.Config{}))
	_, err := sim.Execute(context.Background(), RecordLeakage(flow.ObserverInGroup, 1))
	require.NoError(t, err)

	sim.Clock.Advance(250_000_000) // 250ms in nanoseconds via time.Duration
	_, err = sim.Execute(context.Background(), RecordLeakage(flow.ObserverInGroup, 1))
	require.NoError(t, err)

	events := sim.Events()
	require.Len(t, events, 2)
	assert.Equal(t, uint64(500), events[0].AtMs)
	assert.Equal(t, uint64(750), events[1].AtMs)
}
