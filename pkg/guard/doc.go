// Package guard decides whether a requested operation is authorized and
// produces the ordered effect commands that must run if it proceeds.
// The chain is a pure function of an immutable GuardSnapshot and a
// request: it performs no I/O, reads no wall clock, and yields a
// bit-identical outcome for identical inputs. Guards run in a fixed
// order: capability, effect policy, flow budget, journal coupling,
// leakage tracking.
package guard
