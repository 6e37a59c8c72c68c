// Package envelope implements the fixed-size wire format for peer
// payloads. Every envelope is exactly 2048 bytes: a canonical CBOR
// encoding of header plus ciphertext, right-padded with zero bytes.
// The header binds a content id over both parts and a keyed routing
// tag, so relays can route without learning anything beyond the tag.
package envelope
