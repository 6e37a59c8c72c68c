package threshold

import (
	"bytes"
	"context"
	"sync"

	"github.com/cloudflare/circl/group"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
)

// NonceState is the witness's per-epoch nonce lifecycle.
type NonceState uint8

const (
	// StateIdle means no nonce is cached for the epoch.
	StateIdle NonceState = iota
	// StateCached means a nonce pair is generated and its commitment
	// published, awaiting use.
	StateCached
	// StateConsumed means the nonce was spent in a signing round.
	StateConsumed
)

// String returns the stable name of the state.
func (s NonceState) String() string {
	switch s {
	case StateCached:
		return "cached"
	case StateConsumed:
		return "consumed"
	default:
		return "idle"
	}
}

// NonceCommitment is a witness's round-1 output: hiding and binding
// commitments for one epoch.
type NonceCommitment struct {
	Index uint32
	Leaf  ids.LeafId
	Epoch ids.Epoch
	D     []byte
	E     []byte
}

// PartialRequest carries everything a witness needs for round 2: the
// message, the chosen commitment set (sorted by index), and the group
// verifying key.
type PartialRequest struct {
	Msg         []byte
	Epoch       ids.Epoch
	Commitments []NonceCommitment
	GroupKey    []byte
}

// PartialSignature is one witness's round-2 response share.
type PartialSignature struct {
	Index uint32
	Z     []byte
}

type cachedNonce struct {
	d, e   group.Scalar
	commit NonceCommitment
	state  NonceState
}

// Witness holds one key share and its per-epoch nonce cache. The cache
// is keyed on epoch; rotating the epoch clears it, so a nonce can never
// straddle two epochs.
type Witness struct {
	mu      sync.Mutex
	leaf    ids.LeafId
	share   KeyShare
	seed    []byte
	counter uint64
	cache   map[ids.Epoch]*cachedNonce
}

// NewWitness wraps a key share. seed binds nonce derivation to this
// witness; two witnesses must never share a seed.
func NewWitness(leaf ids.LeafId, share KeyShare, seed []byte) *Witness {
	return &Witness{
		leaf:  leaf,
		share: share,
		seed:  append([]byte(nil), seed...),
		cache: make(map[ids.Epoch]*cachedNonce),
	}
}

// Index returns the witness's Shamir evaluation point.
func (w *Witness) Index() uint32 { return w.share.Index }

// Leaf returns the tree leaf this witness occupies.
func (w *Witness) Leaf() ids.LeafId { return w.leaf }

// State reports the nonce state for an epoch.
func (w *Witness) State(epoch ids.Epoch) NonceState {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n, ok := w.cache[epoch]; ok {
		return n.state
	}
	return StateIdle
}

// deriveNonce derives one nonce scalar from the witness seed, the epoch,
// a monotone counter, and a role label.
func (w *Witness) deriveNonce(epoch ids.Epoch, counter uint64, label byte) group.Scalar {
	data := make([]byte, 0, len(w.seed)+8+8+1)
	data = append(data, w.seed...)
	data = append(data, ids.EpochBytes(epoch)...)
	data = append(data, ids.EpochBytes(ids.Epoch(counter))...)
	data = append(data, label)
	return suite.HashToScalar(data, []byte(dstNonce))
}

// SetNextNonce generates a fresh nonce pair for the epoch, replacing any
// cached value, and returns its commitment.
func (w *Witness) SetNextNonce(epoch ids.Epoch) (NonceCommitment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setNextNonceLocked(epoch)
}

func (w *Witness) setNextNonceLocked(epoch ids.Epoch) (NonceCommitment, error) {
	w.counter++
	d := w.deriveNonce(epoch, w.counter, 'd')
	e := w.deriveNonce(epoch, w.counter, 'e')

	dPub, err := suite.NewElement().MulGen(d).MarshalBinary()
	if err != nil {
		return NonceCommitment{}, fault.New(fault.Internal, CodeMalformedKey, "cannot encode nonce commitment").WithCause(err)
	}
	ePub, err := suite.NewElement().MulGen(e).MarshalBinary()
	if err != nil {
		return NonceCommitment{}, fault.New(fault.Internal, CodeMalformedKey, "cannot encode nonce commitment").WithCause(err)
	}

	commit := NonceCommitment{Index: w.share.Index, Leaf: w.leaf, Epoch: epoch, D: dPub, E: ePub}
	w.cache[epoch] = &cachedNonce{d: d, e: e, commit: commit, state: StateCached}
	return commit, nil
}

// Commit implements round 1. A cached, unconsumed nonce is reused (the
// fast path); otherwise a fresh one is generated.
func (w *Witness) Commit(_ context.Context, epoch ids.Epoch) (NonceCommitment, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n, ok := w.cache[epoch]; ok && n.state == StateCached {
		return n.commit, nil
	}
	return w.setNextNonceLocked(epoch)
}

// takeNonce consumes the cached nonce for the epoch.
func (w *Witness) takeNonce(epoch ids.Epoch) (*cachedNonce, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.cache[epoch]
	if !ok || n.state != StateCached {
		return nil, fault.Newf(fault.Coordination, CodeNonceConsumed,
			"witness %d has no usable nonce for epoch %d", w.share.Index, epoch)
	}
	n.state = StateConsumed
	return n, nil
}

// Invalidate discards any cached nonce for the epoch.
func (w *Witness) Invalidate(epoch ids.Epoch) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.cache, epoch)
}

// InvalidateAll clears the whole nonce cache. Called on epoch rotation.
func (w *Witness) InvalidateAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cache = make(map[ids.Epoch]*cachedNonce)
}

// PartialSign implements round 2: consume the epoch nonce and produce
// this witness's response share over the request's commitment set.
func (w *Witness) PartialSign(_ context.Context, req PartialRequest) (PartialSignature, error) {
	nonce, err := w.takeNonce(req.Epoch)
	if err != nil {
		return PartialSignature{}, err
	}

	// The request must reference the commitment this witness actually
	// published; a stale or cross-epoch commitment is rejected.
	var mine *NonceCommitment
	indices := make([]uint32, 0, len(req.Commitments))
	for i := range req.Commitments {
		indices = append(indices, req.Commitments[i].Index)
		if req.Commitments[i].Index == w.share.Index {
			mine = &req.Commitments[i]
		}
	}
	if mine == nil || !bytes.Equal(mine.D, nonce.commit.D) || !bytes.Equal(mine.E, nonce.commit.E) {
		return PartialSignature{}, fault.Newf(fault.Coordination, CodeNonceConsumed,
			"commitment set does not match witness %d's published nonce", w.share.Index)
	}

	listBytes := commitmentListBytes(req.Commitments)
	r, err := aggregateCommitments(req.Commitments, req.Msg, listBytes)
	if err != nil {
		return PartialSignature{}, err
	}
	rBytes, err := r.MarshalBinary()
	if err != nil {
		return PartialSignature{}, fault.New(fault.Internal, CodeMalformedSignature, "cannot encode aggregate commitment").WithCause(err)
	}

	c := challenge(rBytes, req.GroupKey, req.Msg)
	lambda, err := lagrangeAt0(w.share.Index, indices)
	if err != nil {
		return PartialSignature{}, err
	}
	rho := bindingFactor(w.share.Index, req.Msg, listBytes)

	// z_i = d + e*rho + c*lambda*secret
	z := suite.NewScalar()
	z.Mul(nonce.e, rho)
	z.Add(z, nonce.d)
	tail := suite.NewScalar()
	tail.Mul(c, lambda)
	tail.Mul(tail, w.share.Secret)
	z.Add(z, tail)

	zBytes, err := z.MarshalBinary()
	if err != nil {
		return PartialSignature{}, fault.New(fault.Internal, CodeMalformedSignature, "cannot encode response share").WithCause(err)
	}
	return PartialSignature{Index: w.share.Index, Z: zBytes}, nil
}

// commitmentListBytes canonically encodes a commitment set (the caller
// sorts by index) for binding-factor derivation.
func commitmentListBytes(commits []NonceCommitment) []byte {
	var out []byte
	for _, c := range commits {
		out = append(out, indexBytes(c.Index)...)
		out = append(out, c.D...)
		out = append(out, c.E...)
	}
	return out
}

// aggregateCommitments computes R = sum(D_i + rho_i * E_i).
func aggregateCommitments(commits []NonceCommitment, msg, listBytes []byte) (group.Element, error) {
	r := suite.Identity()
	for _, c := range commits {
		d := suite.NewElement()
		if err := d.UnmarshalBinary(c.D); err != nil {
			return nil, fault.Newf(fault.Invalid, CodeMalformedSignature, "witness %d hiding commitment malformed", c.Index).WithCause(err)
		}
		e := suite.NewElement()
		if err := e.UnmarshalBinary(c.E); err != nil {
			return nil, fault.Newf(fault.Invalid, CodeMalformedSignature, "witness %d binding commitment malformed", c.Index).WithCause(err)
		}
		rho := bindingFactor(c.Index, msg, listBytes)
		e.Mul(e, rho)
		d.Add(d, e)
		r.Add(r, d)
	}
	return r, nil
}
