// Package removal replays a reviewed candidate ledger against the
// authorization store, deleting the listed assignments under an explicit
// dry-run/live mode switch.
package removal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"rolesweep/internal/domain"
)

// Mode selects whether the executor deletes anything.
type Mode int

const (
	// DryRun logs every row but issues no store calls.
	DryRun Mode = iota
	// Live deletes the listed assignments.
	Live
)

func (m Mode) String() string {
	if m == Live {
		return "live"
	}
	return "dry-run"
}

// RowFailure records one candidate that could not be removed.
type RowFailure struct {
	AssignmentID string
	PrincipalID  string
	RoleName     string
	Reason       string
}

// Report summarizes one execution pass.
type Report struct {
	Mode        Mode
	Attempted   int
	Succeeded   int
	AlreadyGone int
	Skipped     int
	Failed      int
	Failures    []RowFailure
}

// Executor deletes candidate assignments row by row, isolating per-row
// failures. It never aborts the batch for a single row; only a store-wide
// authorization failure stops the pass early.
type Executor struct {
	store      domain.AuthorizationStore
	logger     *slog.Logger
	maxRetries uint64
	baseWait   time.Duration
}

// NewExecutor creates an Executor. maxRetries and baseWait tune the backoff
// applied to throttled delete calls.
func NewExecutor(store domain.AuthorizationStore, logger *slog.Logger, maxRetries int, baseWait time.Duration) *Executor {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Executor{store: store, logger: logger, maxRetries: uint64(maxRetries), baseWait: baseWait}
}

// Execute processes candidates under the given mode. Cancellation is honored
// between rows only: a deletion that has started runs to completion so the
// store is never left in an ambiguous half-state.
func (e *Executor) Execute(ctx context.Context, candidates []domain.DuplicateCandidate, mode Mode) (*Report, error) {
	report := &Report{Mode: mode}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if c.Grant.ID == "" {
			e.logger.Warn("skipping row without assignment id", "principal_id", c.Grant.PrincipalID)
			report.Skipped++
			continue
		}
		report.Attempted++

		if mode == DryRun {
			e.logger.Info("dry-run: would remove assignment",
				"assignment_id", c.Grant.ID,
				"role", c.RoleName,
				"principal", principalLabel(c))
			report.Succeeded++
			continue
		}

		switch err := e.delete(c.Grant.ID); {
		case err == nil:
			e.logger.Info("assignment removed",
				"assignment_id", c.Grant.ID,
				"role", c.RoleName,
				"principal", principalLabel(c))
			report.Succeeded++
		case domain.IsNotFound(err):
			// A prior partial run or concurrent cleanup got here first;
			// the desired end state holds.
			e.logger.Info("assignment already gone", "assignment_id", c.Grant.ID)
			report.AlreadyGone++
		case domain.IsForbidden(err):
			if report.Attempted == 1 && report.Failed == 0 {
				// Forbidden on the very first live row: almost certainly a
				// store-wide credential problem, not a row-local one.
				return report, fmt.Errorf("delete %s: %w", c.Grant.ID, err)
			}
			report.fail(c, err)
			e.logger.Error("assignment removal forbidden", "assignment_id", c.Grant.ID, "error", err)
		default:
			report.fail(c, err)
			e.logger.Error("assignment removal failed", "assignment_id", c.Grant.ID, "error", err)
		}
	}

	e.logger.Info("removal pass complete",
		"mode", mode.String(),
		"attempted", report.Attempted,
		"succeeded", report.Succeeded,
		"already_gone", report.AlreadyGone,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report, nil
}

// delete runs one deletion with bounded backoff on throttling. It
// deliberately takes no context: once started, the attempt is not cancelled.
func (e *Executor) delete(assignmentID string) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.baseWait
	policy := backoff.WithMaxRetries(bo, e.maxRetries)

	return backoff.Retry(func() error {
		err := e.store.DeleteRoleAssignment(context.Background(), assignmentID)
		if err == nil {
			return nil
		}
		if domain.IsThrottled(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (r *Report) fail(c domain.DuplicateCandidate, err error) {
	r.Failed++
	r.Failures = append(r.Failures, RowFailure{
		AssignmentID: c.Grant.ID,
		PrincipalID:  c.Grant.PrincipalID,
		RoleName:     c.RoleName,
		Reason:       err.Error(),
	})
}

func principalLabel(c domain.DuplicateCandidate) string {
	if c.PrincipalDisplayName != "" {
		return c.PrincipalDisplayName
	}
	return c.Grant.PrincipalID
}
