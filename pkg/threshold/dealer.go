package threshold

import (
	"io"

	"github.com/cloudflare/circl/group"
	"github.com/cloudflare/circl/secretsharing"

	"github.com/aura-comms/aura/pkg/fault"
)

// KeyShare is one witness's slice of the group signing key. Index is the
// Shamir evaluation point, starting at 1.
type KeyShare struct {
	Index  uint32
	Secret group.Scalar
	Public group.Element
}

// GroupKeying is the dealer's output: the group verifying key plus one
// share per witness.
type GroupKeying struct {
	GroupKey group.Element
	Shares   []KeyShare
}

// GroupKeyBytes returns the serialized group verifying key.
func (g GroupKeying) GroupKeyBytes() ([]byte, error) {
	return g.GroupKey.MarshalBinary()
}

// DealShares splits a fresh random signing key into n Shamir shares with
// reconstruction threshold k. Any k shares sign; k-1 reveal nothing.
func DealShares(rnd io.Reader, k, n uint32) (GroupKeying, error) {
	if k == 0 || k > n {
		return GroupKeying{}, fault.Newf(fault.Invalid, CodeBadThreshold,
			"threshold %d out of range for %d witnesses", k, n)
	}

	secret := suite.RandomScalar(rnd)
	ss := secretsharing.New(rnd, uint(k-1), secret)
	shares := ss.Share(uint(n))

	out := GroupKeying{GroupKey: suite.NewElement().MulGen(secret)}
	for i, sh := range shares {
		out.Shares = append(out.Shares, KeyShare{
			Index:  uint32(i + 1),
			Secret: sh.Value,
			Public: suite.NewElement().MulGen(sh.Value),
		})
	}
	return out, nil
}
