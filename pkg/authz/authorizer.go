package authz

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/cedar-policy/cedar-go"
)

//go:embed policies.cedar
var policiesContent []byte

// Config contains options for the Authorizer.
type Config struct {
	// Logger for structured decision logging. If nil, uses slog.Default().
	Logger *slog.Logger

	// PolicyBytes allows loading policies from a custom source (for
	// testing). If nil, the embedded policies.cedar is used.
	PolicyBytes []byte
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{}
}

// Authorizer wraps the Cedar policy engine. All maintenance
// authorization decisions flow through this single component.
type Authorizer struct {
	policies *cedar.PolicySet
	logger   *slog.Logger
}

// NewAuthorizer creates an authorizer with the given configuration.
func NewAuthorizer(cfg Config) (*Authorizer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policyData := cfg.PolicyBytes
	if policyData == nil {
		policyData = policiesContent
	}

	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", policyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}

	return &Authorizer{policies: ps, logger: logger}, nil
}

// Authorize evaluates an authorization request against the Cedar
// policies. This is the single entry point for maintenance decisions;
// none should be made outside this method.
func (a *Authorizer) Authorize(_ context.Context, req Request) Decision {
	start := time.Now()

	entities := buildEntities(req.Principal, req.Resource)
	cedarReq := buildCedarRequest(req)

	decision, diagnostic := cedar.Authorize(a.policies, entities, cedarReq)

	policyID := ""
	if len(diagnostic.Reasons) > 0 {
		policyID = string(diagnostic.Reasons[0].PolicyID)
	}

	allowed := decision == cedar.Allow
	result := Decision{
		Allowed:  allowed,
		Reason:   a.buildReason(req, allowed, diagnostic),
		PolicyID: policyID,
		Duration: time.Since(start),
	}

	a.logDecision(req, result, diagnostic)
	return result
}

func (a *Authorizer) buildReason(req Request, allowed bool, diag cedar.Diagnostic) string {
	if allowed {
		return "access permitted"
	}
	if replaced, ok := req.Context["admin_replaced"].(bool); ok && replaced {
		return "admin replaced - authority revoked at activation epoch"
	}
	if len(diag.Reasons) > 0 {
		return fmt.Sprintf("denied by policy %s", diag.Reasons[0].PolicyID)
	}
	return "access denied - no matching permit policy"
}

// logDecision logs the authorization decision with structured fields.
func (a *Authorizer) logDecision(req Request, result Decision, diag cedar.Diagnostic) {
	a.logger.Info("authorization decision",
		"principal", req.Principal.UID,
		"role", req.Principal.Role,
		"action", req.Action,
		"resource", req.Resource.UID,
		"decision", result.Allowed,
		"reason", result.Reason,
		"policy_id", result.PolicyID,
		"duration_us", result.Duration.Microseconds(),
	)

	for _, err := range diag.Errors {
		a.logger.Error("policy evaluation error",
			"policy", err.PolicyID,
			"error", err.Message,
		)
	}
}

// PolicyCount returns the number of loaded policies.
func (a *Authorizer) PolicyCount() int {
	count := 0
	for range a.policies.All() {
		count++
	}
	return count
}
