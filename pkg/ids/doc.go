// Package ids defines the identifier and digest types shared by every
// component of the account runtime.
//
// All 16-byte identifiers (authorities, devices, accounts, contexts,
// sessions) are distinct named types over UUIDs so they cannot be
// interchanged by accident. Epoch is the 64-bit monotonic counter advanced
// on every tree mutation. Hash32 is the single 32-byte digest used for
// content addressing and commitments throughout the system.
package ids
