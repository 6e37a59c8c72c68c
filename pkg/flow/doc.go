// Package flow implements the flow-budget discipline that prices and
// rate-limits externally visible operations.
//
// A [Budget] is a join-semilattice value per (context, authority) pair:
// join takes the tighter limit, the higher spend, and the newer epoch, so
// replicas can exchange budgets in any order and converge. A [Ledger]
// owns the budgets and receipt nonces for one device; every successful
// charge mutates the budget before its [Receipt] is returned, which is
// what makes No-Observable-Without-Charge enforceable.
//
// The privacy budget (three leakage counters per observer class over a
// rolling window) lives here too; its values join elementwise by max.
package flow
