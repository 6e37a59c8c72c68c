// Package timeutil provides the time effect contract for the account
// runtime, plus human-readable relative time formatting for CLI output.
//
// Two clocks satisfy the contract: [System], backed by the wall clock, and
// [Sim], which advances logical time deterministically and is used by the
// simulation interpreter.
//
// # Usage
//
//	timeutil.Relative(time.Now().Add(-5 * time.Minute)) // "5 minutes ago"
//	clock := timeutil.NewSim(0)
//	clock.Advance(3 * time.Second)
package timeutil
