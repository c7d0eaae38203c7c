package scan

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"rolesweep/internal/domain"
)

// Detector reconciles direct user grants against group-derived membership,
// role by role. Detection is role-local: coverage for one role says nothing
// about any other role.
type Detector struct {
	dir         domain.PrincipalDirectory
	expander    *Expander
	logger      *slog.Logger
	concurrency int
}

// NewDetector creates a Detector. concurrency bounds the number of group
// expansions in flight at once.
func NewDetector(dir domain.PrincipalDirectory, expander *Expander, logger *slog.Logger, concurrency int) *Detector {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Detector{dir: dir, expander: expander, logger: logger, concurrency: concurrency}
}

// Detect produces the duplicate candidates for every role in the index,
// sorted by role definition GUID, then principal id, then assignment id.
func (d *Detector) Detect(ctx context.Context, index *GrantIndex) ([]domain.DuplicateCandidate, error) {
	roleGUIDs := make([]string, 0, len(index.ByRole))
	for guid := range index.ByRole {
		roleGUIDs = append(roleGUIDs, guid)
	}
	sort.Strings(roleGUIDs)

	var candidates []domain.DuplicateCandidate
	for _, guid := range roleGUIDs {
		found, err := d.detectRole(ctx, index, guid)
		if err != nil {
			return nil, fmt.Errorf("detect duplicates for role %s: %w", index.RoleName(guid), err)
		}
		candidates = append(candidates, found...)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ag, bg := a.Grant.RoleDefinitionGUID(), b.Grant.RoleDefinitionGUID(); ag != bg {
			return ag < bg
		}
		if a.Grant.PrincipalID != b.Grant.PrincipalID {
			return a.Grant.PrincipalID < b.Grant.PrincipalID
		}
		return a.Grant.ID < b.Grant.ID
	})
	return candidates, nil
}

// detectRole reconciles one role's grants. Group principals are expanded with
// a bounded worker pool; coveredUsers is the only shared state and is guarded
// by a mutex.
func (d *Detector) detectRole(ctx context.Context, index *GrantIndex, roleGUID string) ([]domain.DuplicateCandidate, error) {
	grants := index.ByRole[roleGUID]

	var groupGrants, userGrants []domain.RoleGrant
	for _, g := range grants {
		switch g.PrincipalType {
		case domain.PrincipalTypeGroup:
			groupGrants = append(groupGrants, g)
		case domain.PrincipalTypeUser:
			userGrants = append(userGrants, g)
		default:
			// Service principals and unknown types have no membership
			// relationship; never flagged.
		}
	}
	if len(groupGrants) == 0 || len(userGrants) == 0 {
		return nil, nil
	}

	var (
		mu           sync.Mutex
		coveredUsers = map[string]map[string]bool{} // userID -> set of covering group ids
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(d.concurrency)
	for _, g := range groupGrants {
		groupID := g.PrincipalID
		eg.Go(func() error {
			leaves, err := d.expander.Expand(egCtx, groupID)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, userID := range leaves {
				if coveredUsers[userID] == nil {
					coveredUsers[userID] = map[string]bool{}
				}
				coveredUsers[userID][groupID] = true
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var candidates []domain.DuplicateCandidate
	for _, u := range userGrants {
		via, ok := coveredUsers[u.PrincipalID]
		if !ok {
			continue
		}
		viaGroups := make([]string, 0, len(via))
		for gid := range via {
			viaGroups = append(viaGroups, gid)
		}
		sort.Strings(viaGroups)

		cand := domain.DuplicateCandidate{
			Grant:     u,
			RoleName:  index.RoleName(roleGUID),
			ViaGroups: viaGroups,
		}
		d.enrich(ctx, &cand)
		candidates = append(candidates, cand)

		d.logger.Info("duplicate assignment found",
			"role", cand.RoleName,
			"principal_id", u.PrincipalID,
			"assignment_id", u.ID,
			"via_groups", len(viaGroups))
	}
	return candidates, nil
}

// enrich fills in principal display metadata. A principal that vanished
// between listing and lookup leaves the metadata blank; the candidate stands.
func (d *Detector) enrich(ctx context.Context, cand *domain.DuplicateCandidate) {
	p, err := d.dir.GetPrincipal(ctx, cand.Grant.PrincipalID)
	if err != nil {
		d.logger.Warn("principal metadata unavailable", "principal_id", cand.Grant.PrincipalID, "error", err)
		return
	}
	cand.PrincipalDisplayName = p.DisplayName
	cand.PrincipalUserPrincipalName = p.UserPrincipalName
}
