package threshold

import (
	"encoding/binary"

	"github.com/cloudflare/circl/group"

	"github.com/aura-comms/aura/pkg/fault"
)

// suite is the prime-order group every protocol value lives in.
var suite = group.Ristretto255

// Domain-separation tags for the scheme's two hash-to-scalar uses.
const (
	dstChallenge = "aura/threshold/v1/challenge"
	dstBinding   = "aura/threshold/v1/binding"
	dstNonce     = "aura/threshold/v1/nonce"
)

// Signature is an aggregated Schnorr signature (R, z).
type Signature struct {
	R []byte
	Z []byte
}

func indexBytes(i uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], i)
	return b[:]
}

// challenge derives the Schnorr challenge c = H(R || P || msg).
func challenge(rBytes, groupKey, msg []byte) group.Scalar {
	data := make([]byte, 0, len(rBytes)+len(groupKey)+len(msg))
	data = append(data, rBytes...)
	data = append(data, groupKey...)
	data = append(data, msg...)
	return suite.HashToScalar(data, []byte(dstChallenge))
}

// bindingFactor ties a witness's second nonce to the full commitment
// list and the message, preventing nonce-reuse forgeries.
func bindingFactor(index uint32, msg, commitmentList []byte) group.Scalar {
	data := make([]byte, 0, 4+len(msg)+len(commitmentList))
	data = append(data, indexBytes(index)...)
	data = append(data, msg...)
	data = append(data, commitmentList...)
	return suite.HashToScalar(data, []byte(dstBinding))
}

// VerifySignature checks an aggregated signature against the group
// verifying key: z*G == R + c*P.
func VerifySignature(groupKey, msg []byte, sig Signature) error {
	pub := suite.NewElement()
	if err := pub.UnmarshalBinary(groupKey); err != nil {
		return fault.New(fault.Invalid, CodeMalformedKey, "cannot parse group key").WithCause(err)
	}
	r := suite.NewElement()
	if err := r.UnmarshalBinary(sig.R); err != nil {
		return fault.New(fault.Invalid, CodeMalformedSignature, "cannot parse commitment").WithCause(err)
	}
	z := suite.NewScalar()
	if err := z.UnmarshalBinary(sig.Z); err != nil {
		return fault.New(fault.Invalid, CodeMalformedSignature, "cannot parse response").WithCause(err)
	}

	c := challenge(sig.R, groupKey, msg)
	lhs := suite.NewElement().MulGen(z)
	rhs := suite.NewElement().Mul(pub, c)
	rhs.Add(rhs, r)
	if !lhs.IsEqual(rhs) {
		return fault.New(fault.PermissionDenied, CodeVerifyFailed, "signature does not verify against group key")
	}
	return nil
}

// lagrangeAt0 computes the Lagrange coefficient for share index i over
// the signer index set, evaluated at zero.
func lagrangeAt0(i uint32, signers []uint32) (group.Scalar, error) {
	num := suite.NewScalar().SetUint64(1)
	den := suite.NewScalar().SetUint64(1)
	xi := suite.NewScalar().SetUint64(uint64(i))
	for _, j := range signers {
		if j == i {
			continue
		}
		xj := suite.NewScalar().SetUint64(uint64(j))
		num.Mul(num, xj)
		diff := suite.NewScalar()
		diff.Sub(xj, xi)
		den.Mul(den, diff)
	}
	if den.IsZero() {
		return nil, fault.Newf(fault.Invalid, CodeDuplicateSigner, "duplicate signer index %d", i)
	}
	den.Inv(den)
	return num.Mul(num, den), nil
}
