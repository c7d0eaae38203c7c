package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rolesweep/internal/domain"
	"rolesweep/internal/testutil"
)

func TestCollectIndexesByNormalizedRole(t *testing.T) {
	store := testutil.NewMockAuthStore()
	store.Definitions = []domain.RoleDefinition{
		{ID: readerDef, Name: "Reader"},
		{ID: ownerDef, Name: "Owner"},
	}
	store.Assignments = []domain.RoleGrant{
		grant("a1", readerDef, "u1", domain.PrincipalTypeUser),
		// Bare GUID form must land in the same bucket as the full id.
		{ID: "a2-id", Name: "a2", Scope: subScope, RoleDefinitionID: "READER-GUID", PrincipalID: "g1", PrincipalType: domain.PrincipalTypeGroup},
	}

	index, err := NewCollector(store, discardLogger()).Collect(context.Background(), subScope)
	require.NoError(t, err)

	require.Len(t, index.ByRole, 1)
	assert.Len(t, index.ByRole["reader-guid"], 2)
	assert.Equal(t, "Reader", index.RoleName("reader-guid"))
	assert.Equal(t, readerDef, index.RoleDefinitionID("reader-guid"))
}

func TestCollectExcludesOtherScopes(t *testing.T) {
	inherited := grant("a1", readerDef, "u1", domain.PrincipalTypeUser)
	inherited.Scope = subScope + "/resourceGroups/rg1"

	store := testutil.NewMockAuthStore()
	store.Assignments = []domain.RoleGrant{
		inherited,
		grant("a2", readerDef, "u2", domain.PrincipalTypeUser),
	}

	index, err := NewCollector(store, discardLogger()).Collect(context.Background(), subScope)
	require.NoError(t, err)
	require.Len(t, index.ByRole["reader-guid"], 1)
	assert.Equal(t, "u2", index.ByRole["reader-guid"][0].PrincipalID)
}

func TestCollectScopeComparisonIsCaseInsensitive(t *testing.T) {
	g := grant("a1", readerDef, "u1", domain.PrincipalTypeUser)
	g.Scope = "/Subscriptions/SUB1"

	store := testutil.NewMockAuthStore()
	store.Assignments = []domain.RoleGrant{g}

	index, err := NewCollector(store, discardLogger()).Collect(context.Background(), subScope)
	require.NoError(t, err)
	assert.Len(t, index.ByRole["reader-guid"], 1)
}

func TestCollectRoleNameFallsBackToGUID(t *testing.T) {
	store := testutil.NewMockAuthStore()
	store.Assignments = []domain.RoleGrant{
		grant("a1", "/definitions/mystery-guid", "u1", domain.PrincipalTypeUser),
	}

	index, err := NewCollector(store, discardLogger()).Collect(context.Background(), subScope)
	require.NoError(t, err)
	assert.Equal(t, "mystery-guid", index.RoleName("mystery-guid"))
}

func TestCollectPropagatesForbidden(t *testing.T) {
	store := testutil.NewMockAuthStore()
	store.ListRoleAssignmentsFn = func(ctx context.Context, scope string) ([]domain.RoleGrant, error) {
		return nil, domain.ErrForbidden("caller may not list assignments at %s", scope)
	}

	_, err := NewCollector(store, discardLogger()).Collect(context.Background(), subScope)
	require.Error(t, err)
	assert.True(t, domain.IsForbidden(err))
}
