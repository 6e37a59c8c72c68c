// Package transport moves sealed envelopes between authorities.
//
// The in-memory network models every peer as a bounded inbox, so
// backpressure is observable without sockets: a full inbox refuses the
// send with a retryable overload fault instead of blocking the caller.
// Retry and CircuitBreaker wrap send paths against transient failures.
package transport
