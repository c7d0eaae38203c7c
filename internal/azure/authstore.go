package azure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/authorization/armauthorization/v2"

	"rolesweep/internal/domain"
)

// AuthStore implements domain.AuthorizationStore on top of the ARM
// authorization management plane.
type AuthStore struct {
	definitions *armauthorization.RoleDefinitionsClient
	assignments *armauthorization.RoleAssignmentsClient
	logger      *slog.Logger
}

// NewAuthStore creates an AuthStore for one subscription.
func NewAuthStore(subscriptionID string, cred azcore.TokenCredential, logger *slog.Logger, opts *arm.ClientOptions) (*AuthStore, error) {
	factory, err := armauthorization.NewClientFactory(subscriptionID, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("create authorization clients: %w", err)
	}
	return &AuthStore{
		definitions: factory.NewRoleDefinitionsClient(),
		assignments: factory.NewRoleAssignmentsClient(),
		logger:      logger,
	}, nil
}

// ListRoleDefinitions returns the role definition catalog visible at scope.
func (s *AuthStore) ListRoleDefinitions(ctx context.Context, scope string) ([]domain.RoleDefinition, error) {
	var defs []domain.RoleDefinition
	pager := s.definitions.NewListPager(scope, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapARMError(err)
		}
		for _, def := range page.Value {
			if def == nil || def.ID == nil {
				continue
			}
			d := domain.RoleDefinition{ID: *def.ID}
			if def.Properties != nil && def.Properties.RoleName != nil {
				d.Name = *def.Properties.RoleName
			}
			defs = append(defs, d)
		}
	}
	return defs, nil
}

// ListRoleAssignments returns every role assignment visible at scope,
// including inherited ones; scope filtering is the collector's concern.
func (s *AuthStore) ListRoleAssignments(ctx context.Context, scope string) ([]domain.RoleGrant, error) {
	var grants []domain.RoleGrant
	pager := s.assignments.NewListForScopePager(scope, nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapARMError(err)
		}
		for _, ra := range page.Value {
			if ra == nil {
				continue
			}
			grants = append(grants, grantOf(ra))
		}
	}
	return grants, nil
}

// DeleteRoleAssignment deletes by full assignment resource id.
func (s *AuthStore) DeleteRoleAssignment(ctx context.Context, assignmentID string) error {
	if _, err := s.assignments.DeleteByID(ctx, assignmentID, nil); err != nil {
		return mapARMError(err)
	}
	return nil
}

func grantOf(ra *armauthorization.RoleAssignment) domain.RoleGrant {
	g := domain.RoleGrant{}
	if ra.ID != nil {
		g.ID = *ra.ID
	}
	if ra.Name != nil {
		g.Name = *ra.Name
	}
	if p := ra.Properties; p != nil {
		if p.Scope != nil {
			g.Scope = *p.Scope
		}
		if p.RoleDefinitionID != nil {
			g.RoleDefinitionID = *p.RoleDefinitionID
		}
		if p.PrincipalID != nil {
			g.PrincipalID = *p.PrincipalID
		}
		if p.PrincipalType != nil {
			g.PrincipalType = principalTypeOfARM(*p.PrincipalType)
		} else {
			g.PrincipalType = domain.PrincipalTypeUnknown
		}
	}
	return g
}

func principalTypeOfARM(t armauthorization.PrincipalType) domain.PrincipalType {
	switch t {
	case armauthorization.PrincipalTypeUser:
		return domain.PrincipalTypeUser
	case armauthorization.PrincipalTypeGroup:
		return domain.PrincipalTypeGroup
	case armauthorization.PrincipalTypeServicePrincipal:
		return domain.PrincipalTypeServicePrincipal
	default:
		return domain.PrincipalTypeUnknown
	}
}

// mapARMError translates azcore response errors into the domain taxonomy.
func mapARMError(err error) error {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return err
	}
	switch respErr.StatusCode {
	case http.StatusNotFound:
		return domain.ErrNotFound("authorization store: %s", respErr.Error())
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrForbidden("authorization store: %s", respErr.Error())
	case http.StatusTooManyRequests:
		return domain.ErrThrottled("authorization store: %s", respErr.Error())
	}
	if respErr.StatusCode >= 500 {
		return domain.ErrThrottled("authorization store: %s", respErr.Error())
	}
	return err
}
