package domain

import "context"

// PrincipalDirectory resolves principals and one level of group membership.
// Implemented by azure.Directory. Recursive expansion is the scanner's job,
// not the directory's.
type PrincipalDirectory interface {
	// GetPrincipal resolves a directory object id to its snapshot.
	// Returns a NotFoundError for soft-deleted or out-of-tenant objects.
	GetPrincipal(ctx context.Context, id string) (*Principal, error)
	// ListGroupMembers returns the direct member ids of a group, one level
	// deep, across all member types.
	ListGroupMembers(ctx context.Context, groupID string) ([]string, error)
}

// AuthorizationStore enumerates and mutates role assignments at a scope.
// Implemented by azure.AuthStore.
type AuthorizationStore interface {
	ListRoleDefinitions(ctx context.Context, scope string) ([]RoleDefinition, error)
	ListRoleAssignments(ctx context.Context, scope string) ([]RoleGrant, error)
	// DeleteRoleAssignment deletes by full assignment resource id.
	// Returns a NotFoundError when the assignment is already gone.
	DeleteRoleAssignment(ctx context.Context, assignmentID string) error
}
