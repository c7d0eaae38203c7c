// Package scan implements the duplicate-assignment detection engine:
// transitive group membership expansion, grant collection, and reconciliation
// of direct user grants against group-derived membership.
package scan

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"rolesweep/internal/domain"
)

// ExpanderStats is a snapshot of expansion activity for one scan.
type ExpanderStats struct {
	GroupsExpanded int      // unique groups traversed
	MembersSkipped int      // members dropped as unresolvable or exhausted
	PartialGroups  []string // top-level groups whose expansion lost members, sorted
}

// Expander computes the transitive leaf membership of groups. It is scoped to
// a single scan: results are memoized per group id, and concurrent requests
// for the same group coordinate through singleflight so each group is
// expanded exactly once.
type Expander struct {
	dir        domain.PrincipalDirectory
	logger     *slog.Logger
	maxRetries uint64
	baseWait   time.Duration

	flight singleflight.Group

	mu      sync.Mutex
	memo    map[string][]string
	stats   ExpanderStats
	partial map[string]bool
}

// NewExpander creates a scan-scoped Expander. maxRetries and baseWait tune
// the backoff applied to throttled directory calls.
func NewExpander(dir domain.PrincipalDirectory, logger *slog.Logger, maxRetries int, baseWait time.Duration) *Expander {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Expander{
		dir:        dir,
		logger:     logger,
		maxRetries: uint64(maxRetries),
		baseWait:   baseWait,
		memo:       map[string][]string{},
		partial:    map[string]bool{},
	}
}

// Expand returns the sorted set of non-group principal ids transitively
// reachable from groupID. Unresolvable members are skipped and counted;
// a ForbiddenError from the directory aborts the expansion.
func (e *Expander) Expand(ctx context.Context, groupID string) ([]string, error) {
	e.mu.Lock()
	if leaves, ok := e.memo[groupID]; ok {
		e.mu.Unlock()
		return leaves, nil
	}
	e.mu.Unlock()

	v, err, _ := e.flight.Do(groupID, func() (interface{}, error) {
		leaves, err := e.expand(ctx, groupID)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		e.memo[groupID] = leaves
		e.mu.Unlock()
		return leaves, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Stats returns a snapshot of the expansion counters.
func (e *Expander) Stats() ExpanderStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.PartialGroups = make([]string, 0, len(e.partial))
	for id := range e.partial {
		s.PartialGroups = append(s.PartialGroups, id)
	}
	sort.Strings(s.PartialGroups)
	return s
}

// expand runs the iterative traversal for one group. An explicit frontier and
// a per-call visited set keep cyclic membership graphs from looping; memoized
// results for nested groups are reused instead of re-traversed.
func (e *Expander) expand(ctx context.Context, rootID string) ([]string, error) {
	leaves := map[string]bool{}
	visited := map[string]bool{}
	frontier := []string{rootID}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		gid := frontier[0]
		frontier = frontier[1:]
		if visited[gid] {
			continue
		}
		visited[gid] = true

		if gid != rootID {
			e.mu.Lock()
			cached, ok := e.memo[gid]
			e.mu.Unlock()
			if ok {
				for _, id := range cached {
					leaves[id] = true
				}
				continue
			}
		}

		members, err := e.listMembers(ctx, gid)
		if err != nil {
			if domain.IsForbidden(err) {
				return nil, err
			}
			// Unresolvable or exhausted group: drop the branch, keep going.
			e.logger.Warn("group membership unavailable", "group_id", gid, "error", err)
			e.markPartial(rootID, 0)
			continue
		}
		e.countGroupExpanded()

		for _, memberID := range members {
			p, err := e.getPrincipal(ctx, memberID)
			if err != nil {
				if domain.IsForbidden(err) {
					return nil, err
				}
				e.logger.Warn("skipping unresolvable member", "group_id", gid, "member_id", memberID, "error", err)
				e.markPartial(rootID, 1)
				continue
			}
			if p.IsGroup() {
				frontier = append(frontier, p.ID)
			} else {
				leaves[p.ID] = true
			}
		}
	}

	out := make([]string, 0, len(leaves))
	for id := range leaves {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (e *Expander) listMembers(ctx context.Context, groupID string) ([]string, error) {
	var members []string
	err := e.retry(ctx, func() error {
		var err error
		members, err = e.dir.ListGroupMembers(ctx, groupID)
		return err
	})
	return members, err
}

func (e *Expander) getPrincipal(ctx context.Context, id string) (*domain.Principal, error) {
	var p *domain.Principal
	err := e.retry(ctx, func() error {
		var err error
		p, err = e.dir.GetPrincipal(ctx, id)
		return err
	})
	return p, err
}

// retry runs op, retrying throttled failures with exponential backoff and
// jitter. NotFound and Forbidden are permanent.
func (e *Expander) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.baseWait
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, e.maxRetries), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if domain.IsThrottled(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (e *Expander) countGroupExpanded() {
	e.mu.Lock()
	e.stats.GroupsExpanded++
	e.mu.Unlock()
}

func (e *Expander) markPartial(rootID string, skipped int) {
	e.mu.Lock()
	e.partial[rootID] = true
	e.stats.MembersSkipped += skipped
	e.mu.Unlock()
}
