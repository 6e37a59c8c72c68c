package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-comms/aura/pkg/ids"
)

func newTestAuthorizer(t *testing.T) *Authorizer {
	t.Helper()
	a, err := NewAuthorizer(DefaultConfig())
	require.NoError(t, err)
	return a
}

func request(role Role, action string) Request {
	return Request{
		Principal: Principal{UID: "authority-1", Role: role},
		Action:    action,
		Resource:  AccountResource(ids.NewAccountId()),
	}
}

func TestEmbeddedPoliciesParse(t *testing.T) {
	a := newTestAuthorizer(t)
	assert.Equal(t, 4, a.PolicyCount())
}

func TestAdminHoldsAllMaintenanceActions(t *testing.T) {
	a := newTestAuthorizer(t)
	for _, action := range []string{
		ActionSnapshotPropose,
		ActionAdminReplace,
		ActionHardForkSchedule,
		ActionPolicyRefresh,
		ActionLeafEvict,
		ActionRecoveryInitiate,
	} {
		d := a.Authorize(context.Background(), request(RoleAdmin, action))
		assert.True(t, d.Allowed, "admin denied %s: %s", action, d.Reason)
	}
}

func TestAdminCannotApproveRecovery(t *testing.T) {
	a := newTestAuthorizer(t)
	d := a.Authorize(context.Background(), request(RoleAdmin, ActionRecoveryApprove))
	assert.False(t, d.Allowed, "recovery approval belongs to guardians alone")
}

func TestDeviceMayOnlyProposeSnapshots(t *testing.T) {
	a := newTestAuthorizer(t)

	d := a.Authorize(context.Background(), request(RoleDevice, ActionSnapshotPropose))
	assert.True(t, d.Allowed)

	for _, action := range []string{ActionAdminReplace, ActionHardForkSchedule, ActionRecoveryApprove} {
		d := a.Authorize(context.Background(), request(RoleDevice, action))
		assert.False(t, d.Allowed, "device allowed %s", action)
	}
}

func TestGuardianMayOnlyApproveRecovery(t *testing.T) {
	a := newTestAuthorizer(t)

	d := a.Authorize(context.Background(), request(RoleGuardian, ActionRecoveryApprove))
	assert.True(t, d.Allowed)

	for _, action := range []string{ActionSnapshotPropose, ActionAdminReplace, ActionRecoveryInitiate} {
		d := a.Authorize(context.Background(), request(RoleGuardian, action))
		assert.False(t, d.Allowed, "guardian allowed %s", action)
	}
}

func TestReplacedAdminForbiddenEverything(t *testing.T) {
	a := newTestAuthorizer(t)

	req := request(RoleAdmin, ActionSnapshotPropose)
	req.Context = map[string]any{"admin_replaced": true}
	d := a.Authorize(context.Background(), req)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "admin replaced")

	// The forbid only bites when the flag is set.
	req.Context = map[string]any{"admin_replaced": false}
	d = a.Authorize(context.Background(), req)
	assert.True(t, d.Allowed)
}

func TestCustomPolicyBytes(t *testing.T) {
	_, err := NewAuthorizer(Config{PolicyBytes: []byte("not cedar at all (")})
	require.Error(t, err)
}
