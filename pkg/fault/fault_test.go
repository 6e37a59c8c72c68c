package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindClassification(t *testing.T) {
	err := New(PermissionDenied, "CAP_MISSING", "capability does not cover operation")
	k, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, PermissionDenied, k)
	assert.True(t, IsKind(err, PermissionDenied))
	assert.False(t, IsKind(err, Storage))
}

func TestWrappedErrorsClassify(t *testing.T) {
	inner := New(Timeout, "QUORUM_TIMEOUT", "2 of 3 signatures received")
	outer := fmt.Errorf("signing round: %w", inner)
	assert.True(t, IsKind(outer, Timeout))
	assert.True(t, Retryable(outer))
}

func TestDefaultRetryability(t *testing.T) {
	assert.True(t, New(Network, "X", "x").Retryable)
	assert.True(t, New(Coordination, "X", "x").Retryable)
	assert.False(t, New(Serialization, "X", "x").Retryable)
	assert.False(t, New(PermissionDenied, "X", "x").Retryable)
}

func TestCauseUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := New(Storage, "KV_WRITE", "store failed").WithCause(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestPlainErrorsAreNotClassified(t *testing.T) {
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, Retryable(errors.New("plain")))
}
