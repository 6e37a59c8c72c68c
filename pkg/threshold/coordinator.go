package threshold

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cloudflare/circl/group"
	"golang.org/x/sync/errgroup"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
	"github.com/aura-comms/aura/pkg/journal"
)

// Signer is one witness from the coordinator's point of view. Local
// witnesses satisfy it directly; remote ones wrap a transport session.
type Signer interface {
	Index() uint32
	Leaf() ids.LeafId
	Commit(ctx context.Context, epoch ids.Epoch) (NonceCommitment, error)
	PartialSign(ctx context.Context, req PartialRequest) (PartialSignature, error)
	Invalidate(epoch ids.Epoch)
	InvalidateAll()
}

// Config wires a coordinator.
type Config struct {
	// Threshold is the number of partial signatures required.
	Threshold uint32
	// GroupKey is the serialized group verifying key.
	GroupKey []byte
	// SharePublics maps witness index to its share's public point, used
	// to verify partial signatures.
	SharePublics map[uint32]group.Element
	Signers      []Signer
	// RoundTimeout bounds each gather round. Zero means 10s.
	RoundTimeout time.Duration
	Logger       *slog.Logger
}

// Coordinator runs the two-round protocol against a witness set and
// caches round-1 commitments per epoch for the fast path.
type Coordinator struct {
	cfg     Config
	logger  *slog.Logger
	byIndex map[uint32]Signer

	mu     sync.Mutex
	commits map[ids.Epoch]map[uint32]NonceCommitment
}

const defaultRoundTimeout = 10 * time.Second

// NewCoordinator validates the configuration and returns a coordinator.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Threshold == 0 || int(cfg.Threshold) > len(cfg.Signers) {
		return nil, fault.Newf(fault.Invalid, CodeBadThreshold,
			"threshold %d out of range for %d signers", cfg.Threshold, len(cfg.Signers))
	}
	if cfg.RoundTimeout == 0 {
		cfg.RoundTimeout = defaultRoundTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	byIndex := make(map[uint32]Signer, len(cfg.Signers))
	for _, s := range cfg.Signers {
		byIndex[s.Index()] = s
	}
	return &Coordinator{
		cfg:     cfg,
		logger:  logger,
		byIndex: byIndex,
		commits: make(map[ids.Epoch]map[uint32]NonceCommitment),
	}, nil
}

// AdvanceEpoch invalidates every cached commitment and witness nonce.
// Must be called on every account epoch transition.
func (c *Coordinator) AdvanceEpoch() {
	c.mu.Lock()
	c.commits = make(map[ids.Epoch]map[uint32]NonceCommitment)
	c.mu.Unlock()
	for _, s := range c.cfg.Signers {
		s.InvalidateAll()
	}
}

// CachedCommitments reports how many round-1 commitments are cached for
// the epoch.
func (c *Coordinator) CachedCommitments(epoch ids.Epoch) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.commits[epoch])
}

// Prewarm runs round 1 ahead of time so the next Sign for this epoch
// takes the fast path.
func (c *Coordinator) Prewarm(ctx context.Context, epoch ids.Epoch) error {
	_, err := c.gatherCommitments(ctx, epoch)
	return err
}

// gatherCommitments fans round 1 out to every signer and returns the
// epoch's commitment cache once at least threshold witnesses responded.
// A duplicate commitment from the same signer replaces the previous one.
func (c *Coordinator) gatherCommitments(ctx context.Context, epoch ids.Epoch) (map[uint32]NonceCommitment, error) {
	roundCtx, cancel := context.WithTimeout(ctx, c.cfg.RoundTimeout)
	defer cancel()

	type reply struct {
		commit NonceCommitment
		err    error
		index  uint32
	}
	replies := make(chan reply, len(c.cfg.Signers))
	g, gctx := errgroup.WithContext(roundCtx)
	for _, s := range c.cfg.Signers {
		s := s
		g.Go(func() error {
			commit, err := s.Commit(gctx, epoch)
			replies <- reply{commit: commit, err: err, index: s.Index()}
			return nil
		})
	}
	_ = g.Wait()
	close(replies)

	c.mu.Lock()
	defer c.mu.Unlock()
	cache, ok := c.commits[epoch]
	if !ok {
		cache = make(map[uint32]NonceCommitment)
		c.commits[epoch] = cache
	}
	var missing []uint32
	for r := range replies {
		if r.err != nil {
			c.logger.Warn("witness did not commit", "index", r.index, "epoch", uint64(epoch), "error", r.err)
			missing = append(missing, r.index)
			continue
		}
		cache[r.commit.Index] = r.commit
	}
	if len(cache) < int(c.cfg.Threshold) {
		return nil, fault.Newf(fault.Coordination, CodeTimedOut,
			"round 1 gathered %d of %d commitments; unresponsive witnesses %v",
			len(cache), c.cfg.Threshold, missing).WithHint("retry, reshape the quorum, or abort")
	}
	return cache, nil
}

// Sign produces an aggregated signature over msg for the given epoch,
// together with the leaf ids of the witnesses that signed. Cached
// commitments are reused when at least threshold are available;
// otherwise round 1 runs first. An aggregate verification failure
// invalidates the nonce set and retries once from round 1.
func (c *Coordinator) Sign(ctx context.Context, msg []byte, epoch ids.Epoch) (Signature, []ids.LeafId, error) {
	sig, leaves, err := c.signOnce(ctx, msg, epoch, true)
	if err != nil && fault.CodeOf(err) == CodeAggregationFailed {
		c.logger.Warn("aggregate verification failed, retrying with fresh nonces", "epoch", uint64(epoch))
		c.invalidateEpoch(epoch)
		return c.signOnce(ctx, msg, epoch, false)
	}
	return sig, leaves, err
}

func (c *Coordinator) signOnce(ctx context.Context, msg []byte, epoch ids.Epoch, allowCached bool) (Signature, []ids.LeafId, error) {
	excluded := make(map[uint32]bool)
	for attempt := 0; attempt <= len(c.cfg.Signers); attempt++ {
		available := c.cachedFor(epoch)
		if !allowCached || attempt > 0 || len(available) < int(c.cfg.Threshold) {
			// Round 2 consumes nonces, so every retry regathers; a
			// witness with a spent nonce publishes a fresh commitment.
			gathered, err := c.gatherCommitments(ctx, epoch)
			if err != nil {
				return Signature{}, nil, err
			}
			available = cloneCommits(gathered)
		}
		for idx := range available {
			if excluded[idx] {
				delete(available, idx)
			}
		}
		if len(available) < int(c.cfg.Threshold) {
			break
		}

		chosen := lowestIndices(available, int(c.cfg.Threshold))
		sig, leaves, bad, err := c.round2(ctx, msg, epoch, chosen)
		if err == nil {
			return sig, leaves, nil
		}
		if len(bad) == 0 {
			return Signature{}, nil, err
		}
		for _, idx := range bad {
			c.logger.Warn("excluding witness after invalid partial", "index", idx, "epoch", uint64(epoch))
			excluded[idx] = true
		}
	}
	return Signature{}, nil, fault.Newf(fault.Coordination, CodeInsufficientSigners,
		"fewer than %d usable witnesses remain", c.cfg.Threshold)
}

// round2 requests partials from the chosen set and aggregates. The bad
// return lists indices whose partials failed point verification.
func (c *Coordinator) round2(ctx context.Context, msg []byte, epoch ids.Epoch, chosen []NonceCommitment) (Signature, []ids.LeafId, []uint32, error) {
	roundCtx, cancel := context.WithTimeout(ctx, c.cfg.RoundTimeout)
	defer cancel()

	req := PartialRequest{Msg: msg, Epoch: epoch, Commitments: chosen, GroupKey: c.cfg.GroupKey}
	listBytes := commitmentListBytes(chosen)
	indices := make([]uint32, len(chosen))
	for i, cm := range chosen {
		indices[i] = cm.Index
	}

	// Consumed either way: these nonces must not be offered again.
	defer func() {
		for _, idx := range indices {
			c.dropCommitment(epoch, idx)
		}
	}()

	type reply struct {
		partial PartialSignature
		err     error
		index   uint32
	}
	replies := make(chan reply, len(chosen))
	g, gctx := errgroup.WithContext(roundCtx)
	for _, cm := range chosen {
		signer, ok := c.byIndex[cm.Index]
		if !ok {
			return Signature{}, nil, nil, fault.Newf(fault.Invalid, CodeUnknownSigner, "no signer with index %d", cm.Index)
		}
		g.Go(func() error {
			p, err := signer.PartialSign(gctx, req)
			replies <- reply{partial: p, err: err, index: signer.Index()}
			return nil
		})
	}
	_ = g.Wait()
	close(replies)

	r, err := aggregateCommitments(chosen, msg, listBytes)
	if err != nil {
		return Signature{}, nil, nil, err
	}
	rBytes, err := r.MarshalBinary()
	if err != nil {
		return Signature{}, nil, nil, fault.New(fault.Internal, CodeMalformedSignature, "cannot encode aggregate commitment").WithCause(err)
	}
	chal := challenge(rBytes, c.cfg.GroupKey, msg)

	var bad []uint32
	partials := make(map[uint32]group.Scalar, len(chosen))
	for rep := range replies {
		if rep.err != nil {
			c.logger.Warn("witness did not sign", "index", rep.index, "error", rep.err)
			bad = append(bad, rep.index)
			continue
		}
		z := suite.NewScalar()
		if uerr := z.UnmarshalBinary(rep.partial.Z); uerr != nil {
			bad = append(bad, rep.index)
			continue
		}
		if verr := c.verifyPartial(rep.index, z, chal, msg, listBytes, chosen, indices); verr != nil {
			c.logger.Warn("invalid partial signature", "index", rep.index, "error", verr)
			bad = append(bad, rep.index)
			continue
		}
		partials[rep.index] = z
	}
	if len(bad) > 0 {
		return Signature{}, nil, bad, fault.Newf(fault.Coordination, CodeInsufficientSigners,
			"%d of %d partials rejected", len(bad), len(chosen))
	}

	zAgg := suite.NewScalar()
	for _, z := range partials {
		zAgg.Add(zAgg, z)
	}
	zBytes, err := zAgg.MarshalBinary()
	if err != nil {
		return Signature{}, nil, nil, fault.New(fault.Internal, CodeMalformedSignature, "cannot encode aggregate response").WithCause(err)
	}

	sig := Signature{R: rBytes, Z: zBytes}
	if err := VerifySignature(c.cfg.GroupKey, msg, sig); err != nil {
		return Signature{}, nil, nil, fault.New(fault.Coordination, CodeAggregationFailed,
			"aggregate signature does not verify").WithCause(err)
	}

	leaves := make([]ids.LeafId, len(chosen))
	for i, cm := range chosen {
		leaves[i] = cm.Leaf
	}
	return sig, leaves, nil, nil
}

// verifyPartial checks z_i*G == D_i + rho_i*E_i + c*lambda_i*P_i.
func (c *Coordinator) verifyPartial(index uint32, z, chal group.Scalar, msg, listBytes []byte, chosen []NonceCommitment, indices []uint32) error {
	pub, ok := c.cfg.SharePublics[index]
	if !ok {
		return fault.Newf(fault.Invalid, CodeUnknownSigner, "no share public for index %d", index)
	}
	var commit *NonceCommitment
	for i := range chosen {
		if chosen[i].Index == index {
			commit = &chosen[i]
			break
		}
	}
	if commit == nil {
		return fault.Newf(fault.Invalid, CodeUnknownSigner, "index %d not in chosen set", index)
	}

	d := suite.NewElement()
	if err := d.UnmarshalBinary(commit.D); err != nil {
		return err
	}
	e := suite.NewElement()
	if err := e.UnmarshalBinary(commit.E); err != nil {
		return err
	}
	lambda, err := lagrangeAt0(index, indices)
	if err != nil {
		return err
	}

	rho := bindingFactor(index, msg, listBytes)
	rhs := suite.NewElement().Mul(e, rho)
	rhs.Add(rhs, d)
	cl := suite.NewScalar()
	cl.Mul(chal, lambda)
	tail := suite.NewElement().Mul(pub, cl)
	rhs.Add(rhs, tail)

	lhs := suite.NewElement().MulGen(z)
	if !lhs.IsEqual(rhs) {
		return fault.Newf(fault.PermissionDenied, CodeVerifyFailed, "partial from %d does not verify", index)
	}
	return nil
}

// Attest wraps Sign into the journal's attestation form.
func (c *Coordinator) Attest(ctx context.Context, signingBytes []byte, epoch ids.Epoch) (journal.Attestation, error) {
	sig, leaves, err := c.Sign(ctx, signingBytes, epoch)
	if err != nil {
		return journal.Attestation{}, err
	}
	return journal.Attestation{
		Epoch:      epoch,
		Signers:    leaves,
		GroupKey:   append([]byte(nil), c.cfg.GroupKey...),
		Commitment: sig.R,
		Response:   sig.Z,
	}, nil
}

func (c *Coordinator) cachedFor(epoch ids.Epoch) map[uint32]NonceCommitment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneCommits(c.commits[epoch])
}

func (c *Coordinator) dropCommitment(epoch ids.Epoch, index uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.commits[epoch]; ok {
		delete(m, index)
	}
}

func (c *Coordinator) invalidateEpoch(epoch ids.Epoch) {
	c.mu.Lock()
	delete(c.commits, epoch)
	c.mu.Unlock()
	for _, s := range c.cfg.Signers {
		s.Invalidate(epoch)
	}
}

func cloneCommits(m map[uint32]NonceCommitment) map[uint32]NonceCommitment {
	out := make(map[uint32]NonceCommitment, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// lowestIndices picks the threshold-sized signing set with the smallest
// indices, sorted ascending, so the set choice is deterministic.
func lowestIndices(m map[uint32]NonceCommitment, n int) []NonceCommitment {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]NonceCommitment, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}
