package domain

import "strings"

// RoleDefinition is a catalog entry for an assignable role.
// ID is the full ARM resource id; Name is the human-readable role name.
type RoleDefinition struct {
	ID   string
	Name string
}

// GUID returns the trailing GUID of the role definition id, the form used for
// matching. Assignments and definitions report role definition ids in
// different shapes (bare GUID vs full resource id), so everything is
// normalized through this before comparison.
func (d RoleDefinition) GUID() string { return NormalizeRoleDefinitionID(d.ID) }

// RoleGrant is a single role assignment at a scope.
// Uniquely identified by ID (the full assignment resource id); logically keyed
// by (role definition, scope, principal).
type RoleGrant struct {
	ID               string
	Name             string // assignment name (GUID segment of ID)
	Scope            string
	RoleDefinitionID string
	PrincipalID      string
	PrincipalType    PrincipalType
}

// RoleDefinitionGUID returns the normalized role definition GUID for matching.
func (g RoleGrant) RoleDefinitionGUID() string {
	return NormalizeRoleDefinitionID(g.RoleDefinitionID)
}

// DuplicateCandidate is a direct user grant that is redundant because at least
// one group the user transitively belongs to holds the same role at the same
// scope. ViaGroups is always non-empty and sorted ascending.
type DuplicateCandidate struct {
	Grant    RoleGrant
	RoleName string
	// Principal metadata resolved at scan time; blank when the directory
	// could not resolve the principal.
	PrincipalDisplayName       string
	PrincipalUserPrincipalName string
	ViaGroups                  []string
}

// NormalizeRoleDefinitionID reduces a role definition reference to its
// trailing GUID, lowercased. Accepts either a bare GUID or a full ARM
// resource id.
func NormalizeRoleDefinitionID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return strings.ToLower(id)
}

// ScopesEqual compares two ARM scopes. Scope comparison is case-insensitive;
// ARM returns inconsistent casing for resource group segments.
func ScopesEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimRight(a, "/"), strings.TrimRight(b, "/"))
}

// SubscriptionFromScope extracts the subscription id from an ARM scope, or
// returns empty when the scope is not under a subscription.
func SubscriptionFromScope(scope string) string {
	parts := strings.Split(strings.Trim(scope, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if strings.EqualFold(parts[i], "subscriptions") {
			return parts[i+1]
		}
	}
	return ""
}

// SubscriptionScope builds the subscription-level ARM scope.
func SubscriptionScope(subscriptionID string) string {
	return "/subscriptions/" + subscriptionID
}
