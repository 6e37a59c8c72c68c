package authz

import (
	"time"

	"github.com/aura-comms/aura/pkg/ids"
)

// Role represents a principal's standing in the account.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleDevice   Role = "device"
	RoleGuardian Role = "guardian"
)

// Maintenance actions evaluated by the policy set.
const (
	ActionSnapshotPropose  = "snapshot.propose"
	ActionAdminReplace     = "admin.replace"
	ActionHardForkSchedule = "hardfork.schedule"
	ActionPolicyRefresh    = "policy.refresh"
	ActionLeafEvict        = "leaf.evict"
	ActionRecoveryInitiate = "recovery.initiate"
	ActionRecoveryApprove  = "recovery.approve"
)

// Principal represents the authority making the request.
type Principal struct {
	UID  string
	Role Role
}

// Resource represents the entity being acted on.
type Resource struct {
	UID  string
	Type string // "Account" unless stated otherwise
}

// AccountResource wraps an account id as the usual target resource.
func AccountResource(account ids.AccountId) Resource {
	return Resource{UID: account.String(), Type: "Account"}
}

// Request contains everything needed for an authorization decision.
type Request struct {
	Principal Principal
	Action    string
	Resource  Resource
	// Context carries dynamic state: admin_replaced (bool) marks a
	// principal whose replacement activation epoch has passed.
	Context map[string]any
}

// Decision contains the result of an authorization check.
type Decision struct {
	Allowed  bool
	Reason   string
	PolicyID string // policy that determined the outcome, for audit
	Duration time.Duration
}
