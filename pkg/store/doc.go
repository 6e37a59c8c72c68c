// Package store implements the storage effect contract for the account
// runtime.
//
// Two backends satisfy the [Store] interface:
//
//   - [Memory]: in-memory map, used by the testing and simulation
//     interpreters.
//   - [SQLite]: durable key-value table backed by modernc.org/sqlite in
//     WAL mode, used by the production interpreter.
//
// Keys follow the grammar <namespace>:<kind>:<id-or-epoch>. The reserved
// namespaces are journal, tree, maintenance, receipt, and cache. Keys whose
// final segment is an epoch number (journal:segment:<epoch>,
// cache:entry:<epoch>) become eligible for deletion once the cache-epoch
// floor exceeds the suffix; see [SweepBelowFloor].
//
// All operations are idempotent on repeat with identical arguments, and
// prefix scans return keys in lexicographic order.
package store
