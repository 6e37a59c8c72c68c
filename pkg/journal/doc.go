// Package journal implements the account's replicated state: an
// append-only, join-only log of tree operations and facts.
//
// A [Journal] is a join-semilattice CRDT. Tree-op records are keyed by
// content hash and merged by set union; facts are merged by a per-kind
// join that is commutative, associative, and idempotent. Two replicas that
// have received overlapping records in any order converge to the same
// ratchet tree under [Journal.ReplayToTree], which applies records in
// strict (epoch, content hash) order.
//
// Compaction replaces every record folded into an attested snapshot by the
// snapshot fact, preserving the semilattice homomorphism:
// compact(x ⊔ y, s) = compact(x, s) ⊔ compact(y, s).
package journal
