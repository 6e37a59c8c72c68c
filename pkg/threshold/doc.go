// Package threshold produces attestations for journal records using a
// two-round Schnorr threshold scheme over ristretto255. A dealer splits
// the group signing key into Shamir shares; witnesses publish nonce
// commitments in round one and partial signatures in round two; the
// coordinator aggregates and verifies. Nonce commitments are cached per
// (witness, epoch) and every cache entry dies on epoch rotation, so no
// nonce is ever usable across two epochs.
package threshold
