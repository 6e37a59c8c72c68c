// Package fault defines the closed error taxonomy used across the account
// runtime.
//
// Every component error is classified into one of a fixed set of kinds so
// callers can exhaustively match. Errors carry an operator-facing code, a
// message, a retryability flag, and an optional recovery hint. The CLI maps
// kinds to exit codes; see cmd/aura.
package fault
