package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-comms/aura/pkg/fault"
)

var testTagKey = [32]byte{1, 2, 3, 4}

func TestSealProducesExactWireSize(t *testing.T) {
	wire, env, err := Seal(testTagKey, 7, 42, 3, []byte("ciphertext bytes"))
	require.NoError(t, err)
	assert.Len(t, wire, Size)
	assert.Equal(t, uint8(Version), env.Header.Bare.Version)
	assert.Equal(t, uint64(7), env.Header.Bare.Epoch)

	got, err := Open(wire)
	require.NoError(t, err)
	assert.Equal(t, env, got)
}

func TestOpenRejectsWrongSize(t *testing.T) {
	wire, _, err := Seal(testTagKey, 1, 1, 1, []byte("x"))
	require.NoError(t, err)

	for _, n := range []int{0, Size - 1, Size + 1} {
		buf := make([]byte, n)
		copy(buf, wire)
		_, err := Open(buf)
		require.Error(t, err)
		assert.Equal(t, CodeWrongSize, fault.CodeOf(err))
	}
}

func TestOpenRejectsNonZeroPadding(t *testing.T) {
	wire, _, err := Seal(testTagKey, 1, 1, 1, []byte("x"))
	require.NoError(t, err)
	wire[Size-1] = 0xff

	_, err = Open(wire)
	require.Error(t, err)
	assert.Equal(t, CodeBadPadding, fault.CodeOf(err))
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	wire, _, err := Seal(testTagKey, 1, 1, 1, []byte("attested payload"))
	require.NoError(t, err)

	// Flip one bit inside the encoded body; the cid no longer binds.
	wire[60] ^= 0x01
	_, err = Open(wire)
	require.Error(t, err)
}

func TestSealRejectsOversizedPayload(t *testing.T) {
	_, _, err := Seal(testTagKey, 1, 1, 1, make([]byte, Size))
	require.Error(t, err)
	assert.Equal(t, CodePayloadTooLarge, fault.CodeOf(err))
}

func TestRoutingTagDerivation(t *testing.T) {
	wire, env, err := Seal(testTagKey, 9, 100, 1, []byte("x"))
	require.NoError(t, err)
	_ = wire

	assert.True(t, VerifyRoutingTag(testTagKey, env))
	assert.Equal(t, RoutingTag(testTagKey, 9, 100), env.Header.Bare.RTag)

	// Different slot or key derives a different tag.
	assert.NotEqual(t, env.Header.Bare.RTag, RoutingTag(testTagKey, 9, 101))
	other := [32]byte{0xff}
	assert.False(t, VerifyRoutingTag(other, env))
}

func TestLargePayloadRoundTrip(t *testing.T) {
	// Near the practical ceiling: the header and CBOR framing leave a
	// little under Size bytes for ciphertext.
	payload := make([]byte, 1900)
	for i := range payload {
		payload[i] = byte(i)
	}
	wire, _, err := Seal(testTagKey, 2, 3, 10, payload)
	require.NoError(t, err)

	got, err := Open(wire)
	require.NoError(t, err)
	assert.Equal(t, payload, got.Ciphertext)
}
