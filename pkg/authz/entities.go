package authz

import "github.com/cedar-policy/cedar-go"

// buildEntities constructs the Cedar entity graph for one decision:
// the principal with its role attribute and the target resource.
func buildEntities(principal Principal, resource Resource) cedar.EntityMap {
	entities := cedar.EntityMap{}

	principalUID := cedar.NewEntityUID("Authority", cedar.String(principal.UID))
	entities[principalUID] = cedar.Entity{
		UID:     principalUID,
		Parents: cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(cedar.RecordMap{
			"role": cedar.String(string(principal.Role)),
		}),
	}

	resourceType := resource.Type
	if resourceType == "" {
		resourceType = "Account"
	}
	resourceUID := cedar.NewEntityUID(cedar.EntityType(resourceType), cedar.String(resource.UID))
	entities[resourceUID] = cedar.Entity{
		UID:        resourceUID,
		Parents:    cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(cedar.RecordMap{}),
	}

	return entities
}

// buildCedarRequest maps the application-level request to Cedar's
// evaluation format.
func buildCedarRequest(req Request) cedar.Request {
	contextMap := cedar.RecordMap{}
	if replaced, ok := req.Context["admin_replaced"].(bool); ok {
		contextMap["admin_replaced"] = cedar.Boolean(replaced)
	}

	resourceType := req.Resource.Type
	if resourceType == "" {
		resourceType = "Account"
	}
	return cedar.Request{
		Principal: cedar.NewEntityUID("Authority", cedar.String(req.Principal.UID)),
		Action:    cedar.NewEntityUID("Action", cedar.String(req.Action)),
		Resource:  cedar.NewEntityUID(cedar.EntityType(resourceType), cedar.String(req.Resource.UID)),
		Context:   cedar.NewRecord(contextMap),
	}
}
