package scan

import (
	"context"
	"fmt"
	"log/slog"

	"rolesweep/internal/domain"
)

// GrantIndex groups the role assignments at a scope by normalized role
// definition GUID, alongside the role definition catalog.
type GrantIndex struct {
	Scope   string
	ByRole  map[string][]domain.RoleGrant
	Catalog map[string]domain.RoleDefinition
}

// RoleName resolves a normalized role definition GUID to its display name,
// falling back to the GUID when the definition is not in the catalog.
func (i *GrantIndex) RoleName(roleGUID string) string {
	if def, ok := i.Catalog[roleGUID]; ok && def.Name != "" {
		return def.Name
	}
	return roleGUID
}

// RoleDefinitionID resolves a normalized GUID to the full definition resource
// id from the catalog, falling back to the GUID.
func (i *GrantIndex) RoleDefinitionID(roleGUID string) string {
	if def, ok := i.Catalog[roleGUID]; ok && def.ID != "" {
		return def.ID
	}
	return roleGUID
}

// Collector enumerates role assignments at a scope. It performs no
// reconciliation; that is the Detector's job.
type Collector struct {
	store  domain.AuthorizationStore
	logger *slog.Logger
}

// NewCollector creates a Collector backed by the given authorization store.
func NewCollector(store domain.AuthorizationStore, logger *slog.Logger) *Collector {
	return &Collector{store: store, logger: logger}
}

// Collect lists the role definitions and assignments at scope and indexes the
// assignments by role. Only assignments scoped exactly at scope enter the
// index; inherited broader-scope assignments are excluded from matching.
func (c *Collector) Collect(ctx context.Context, scope string) (*GrantIndex, error) {
	defs, err := c.store.ListRoleDefinitions(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list role definitions at %s: %w", scope, err)
	}
	c.logger.Info("role definitions loaded", "scope", scope, "count", len(defs))

	grants, err := c.store.ListRoleAssignments(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list role assignments at %s: %w", scope, err)
	}
	c.logger.Info("role assignments loaded", "scope", scope, "count", len(grants))

	index := &GrantIndex{
		Scope:   scope,
		ByRole:  map[string][]domain.RoleGrant{},
		Catalog: map[string]domain.RoleDefinition{},
	}
	for _, def := range defs {
		index.Catalog[def.GUID()] = def
	}

	skipped := 0
	for _, g := range grants {
		if !domain.ScopesEqual(g.Scope, scope) {
			skipped++
			continue
		}
		guid := g.RoleDefinitionGUID()
		if guid == "" {
			c.logger.Warn("assignment without role definition id", "assignment_id", g.ID)
			continue
		}
		index.ByRole[guid] = append(index.ByRole[guid], g)
	}
	if skipped > 0 {
		c.logger.Debug("assignments outside requested scope excluded", "count", skipped)
	}

	return index, nil
}
