package transport

import (
	"context"
	"sync"

	"github.com/aura-comms/aura/pkg/fault"
	"github.com/aura-comms/aura/pkg/ids"
)

// Fault codes returned by the in-memory network.
const (
	CodeOverloaded  = "OVERLOADED"
	CodeUnknownPeer = "UNKNOWN_PEER"
	CodeDetached    = "ENDPOINT_DETACHED"
)

// DefaultInboxDepth bounds each endpoint's inbox when no depth is given.
const DefaultInboxDepth = 64

// Delivery is one queued payload together with its sender.
type Delivery struct {
	From    ids.AuthorityId
	Payload []byte
}

// Network is an in-memory fabric connecting authority endpoints. Safe
// for concurrent use.
type Network struct {
	mu    sync.RWMutex
	depth int
	peers map[ids.AuthorityId]*Endpoint
}

// NewNetwork returns a fabric whose endpoints buffer up to depth
// deliveries. A non-positive depth selects DefaultInboxDepth.
func NewNetwork(depth int) *Network {
	if depth <= 0 {
		depth = DefaultInboxDepth
	}
	return &Network{depth: depth, peers: make(map[ids.AuthorityId]*Endpoint)}
}

// Attach registers an authority and returns its endpoint. Attaching an
// already-attached authority returns the existing endpoint.
func (n *Network) Attach(id ids.AuthorityId) *Endpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, ok := n.peers[id]; ok {
		return ep
	}
	ep := &Endpoint{id: id, net: n, inbox: make(chan Delivery, n.depth)}
	n.peers[id] = ep
	return ep
}

// Detach removes an authority from the fabric. In-flight deliveries
// already queued on its inbox are dropped.
func (n *Network) Detach(id ids.AuthorityId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.peers, id)
}

func (n *Network) lookup(id ids.AuthorityId) (*Endpoint, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	ep, ok := n.peers[id]
	return ep, ok
}

// Endpoint is one authority's attachment point. Its Send method
// satisfies the sender contract the effect interpreter expects.
type Endpoint struct {
	id    ids.AuthorityId
	net   *Network
	inbox chan Delivery
}

// Id returns the attached authority.
func (e *Endpoint) Id() ids.AuthorityId { return e.id }

// Pending returns the number of queued deliveries.
func (e *Endpoint) Pending() int { return len(e.inbox) }

// Send queues payload on the peer's inbox. A full inbox refuses the
// send with a retryable overload fault; the payload is copied, so the
// caller may reuse its buffer.
func (e *Endpoint) Send(ctx context.Context, to ids.AuthorityId, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return fault.New(fault.Cancelled, "SEND_CANCELLED", "send cancelled").WithCause(err)
	}
	peer, ok := e.net.lookup(to)
	if !ok {
		return fault.Newf(fault.NotFound, CodeUnknownPeer, "authority %s is not attached", to)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	select {
	case peer.inbox <- Delivery{From: e.id, Payload: cp}:
		return nil
	default:
		return fault.Newf(fault.Network, CodeOverloaded, "inbox for %s is full", to).
			WithHint("back off and retry; the peer is draining its inbox")
	}
}

// Recv blocks until a delivery arrives or ctx is done.
func (e *Endpoint) Recv(ctx context.Context) (Delivery, error) {
	select {
	case d := <-e.inbox:
		return d, nil
	case <-ctx.Done():
		return Delivery{}, fault.New(fault.Cancelled, "RECV_CANCELLED", "receive cancelled").WithCause(ctx.Err())
	}
}

// TryRecv drains one delivery without blocking.
func (e *Endpoint) TryRecv() (Delivery, bool) {
	select {
	case d := <-e.inbox:
		return d, true
	default:
		return Delivery{}, false
	}
}
