// Package authz provides Cedar-based authorization for account
// maintenance operations.
//
// Guard-chain authorization (capabilities, flow budgets, privacy) is a
// separate concern; this package only answers who may run the
// administrative ceremonies: snapshot proposals, admin replacement,
// hard-fork scheduling, policy refresh, and guardian recovery.
//
// # Role Model
//
//   - admin: full maintenance authority over the account
//   - device: may propose snapshots of its own account
//   - guardian: may approve recoveries, nothing else
//
// A replaced admin is forbidden everything once its replacement's
// activation epoch is reached; the caller passes that state through the
// request context.
//
// # Usage
//
//	authorizer, err := authz.NewAuthorizer(authz.DefaultConfig())
//
//	decision := authorizer.Authorize(ctx, authz.Request{
//		Principal: authz.Principal{UID: admin.String(), Role: authz.RoleAdmin},
//		Action:    authz.ActionSnapshotPropose,
//		Resource:  authz.AccountResource(account),
//		Context:   map[string]any{"admin_replaced": false},
//	})
//
// # Thread Safety
//
// Authorizer is safe for concurrent use. The underlying Cedar PolicySet
// is immutable after construction.
package authz
