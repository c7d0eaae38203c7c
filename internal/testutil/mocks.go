// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"
	"sort"
	"sync"

	"rolesweep/internal/domain"
)

// === Principal Directory Mock ===

// MockDirectory implements domain.PrincipalDirectory backed by in-memory
// principal and membership tables. Individual calls can be overridden through
// the Fn fields.
type MockDirectory struct {
	GetPrincipalFn     func(ctx context.Context, id string) (*domain.Principal, error)
	ListGroupMembersFn func(ctx context.Context, groupID string) ([]string, error)

	mu         sync.Mutex
	Principals map[string]domain.Principal
	Members    map[string][]string // groupID -> direct member ids

	GetCalls  []string // principal ids looked up, in call order
	ListCalls []string // group ids listed, in call order
}

// NewMockDirectory creates an empty in-memory directory.
func NewMockDirectory() *MockDirectory {
	return &MockDirectory{
		Principals: map[string]domain.Principal{},
		Members:    map[string][]string{},
	}
}

// AddUser registers a user principal.
func (m *MockDirectory) AddUser(id, displayName, upn string) {
	m.Principals[id] = domain.Principal{
		ID: id, Type: domain.PrincipalTypeUser,
		DisplayName: displayName, UserPrincipalName: upn,
	}
}

// AddGroup registers a group principal with the given direct members.
func (m *MockDirectory) AddGroup(id, displayName string, memberIDs ...string) {
	m.Principals[id] = domain.Principal{
		ID: id, Type: domain.PrincipalTypeGroup, DisplayName: displayName,
	}
	m.Members[id] = append([]string{}, memberIDs...)
}

// AddServicePrincipal registers a service principal.
func (m *MockDirectory) AddServicePrincipal(id, displayName string) {
	m.Principals[id] = domain.Principal{
		ID: id, Type: domain.PrincipalTypeServicePrincipal, DisplayName: displayName,
	}
}

// GetPrincipal implements the interface method for testing.
func (m *MockDirectory) GetPrincipal(ctx context.Context, id string) (*domain.Principal, error) {
	m.mu.Lock()
	m.GetCalls = append(m.GetCalls, id)
	m.mu.Unlock()
	if m.GetPrincipalFn != nil {
		return m.GetPrincipalFn(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.Principals[id]
	if !ok {
		return nil, domain.ErrNotFound("principal %s not found", id)
	}
	return &p, nil
}

// ListGroupMembers implements the interface method for testing.
func (m *MockDirectory) ListGroupMembers(ctx context.Context, groupID string) ([]string, error) {
	m.mu.Lock()
	m.ListCalls = append(m.ListCalls, groupID)
	m.mu.Unlock()
	if m.ListGroupMembersFn != nil {
		return m.ListGroupMembersFn(ctx, groupID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.Members[groupID]
	if !ok {
		return nil, domain.ErrNotFound("group %s not found", groupID)
	}
	return append([]string{}, members...), nil
}

// ListCallsFor returns how many times groupID was listed.
func (m *MockDirectory) ListCallsFor(groupID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.ListCalls {
		if id == groupID {
			n++
		}
	}
	return n
}

// === Authorization Store Mock ===

// MockAuthStore implements domain.AuthorizationStore with fixed definition
// and assignment lists and a record of deletions.
type MockAuthStore struct {
	ListRoleDefinitionsFn  func(ctx context.Context, scope string) ([]domain.RoleDefinition, error)
	ListRoleAssignmentsFn  func(ctx context.Context, scope string) ([]domain.RoleGrant, error)
	DeleteRoleAssignmentFn func(ctx context.Context, assignmentID string) error

	mu          sync.Mutex
	Definitions []domain.RoleDefinition
	Assignments []domain.RoleGrant
	Deleted     []string // assignment ids passed to delete, in call order
}

// NewMockAuthStore creates an empty in-memory authorization store.
func NewMockAuthStore() *MockAuthStore {
	return &MockAuthStore{}
}

// ListRoleDefinitions implements the interface method for testing.
func (m *MockAuthStore) ListRoleDefinitions(ctx context.Context, scope string) ([]domain.RoleDefinition, error) {
	if m.ListRoleDefinitionsFn != nil {
		return m.ListRoleDefinitionsFn(ctx, scope)
	}
	return append([]domain.RoleDefinition{}, m.Definitions...), nil
}

// ListRoleAssignments implements the interface method for testing.
func (m *MockAuthStore) ListRoleAssignments(ctx context.Context, scope string) ([]domain.RoleGrant, error) {
	if m.ListRoleAssignmentsFn != nil {
		return m.ListRoleAssignmentsFn(ctx, scope)
	}
	return append([]domain.RoleGrant{}, m.Assignments...), nil
}

// DeleteRoleAssignment implements the interface method for testing.
func (m *MockAuthStore) DeleteRoleAssignment(ctx context.Context, assignmentID string) error {
	if m.DeleteRoleAssignmentFn != nil {
		if err := m.DeleteRoleAssignmentFn(ctx, assignmentID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Deleted = append(m.Deleted, assignmentID)
	m.mu.Unlock()
	return nil
}

// DeletedSorted returns the deleted assignment ids, sorted.
func (m *MockAuthStore) DeletedSorted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string{}, m.Deleted...)
	sort.Strings(out)
	return out
}
