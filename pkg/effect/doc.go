// Package effect separates the decision to perform a side effect from
// its execution. The guard chain emits ordered, serializable effect
// commands; an interpreter executes them. Three interpreters share one
// contract: Production (wall clock, cryptographic randomness, durable
// storage, real transport), Testing (seeded randomness, in-memory
// storage and outbox), and Simulation (controllable clock, recorded
// events, deterministic replay).
package effect
