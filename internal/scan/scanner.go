package scan

import (
	"context"
	"log/slog"
	"time"

	"rolesweep/internal/domain"
)

// Summary reports what one scan covered.
type Summary struct {
	Scope           string
	RolesScanned    int
	GroupsExpanded  int
	CandidatesFound int
	MembersSkipped  int
	PartialGroups   []string
	Elapsed         time.Duration
}

// Result is the output of one scan: the candidate list and its summary.
type Result struct {
	Candidates []domain.DuplicateCandidate
	Summary    Summary
}

// Scanner wires the collector, expander, and detector into a single pass over
// a scope. All entities are fetched once; the result is a pure function of
// the grant set and membership graph at scan time.
type Scanner struct {
	collector *Collector
	expander  *Expander
	detector  *Detector
	logger    *slog.Logger
}

// NewScanner assembles a scan pipeline over the given store and directory.
func NewScanner(store domain.AuthorizationStore, dir domain.PrincipalDirectory, logger *slog.Logger, concurrency, maxRetries int, retryBaseWait time.Duration) *Scanner {
	expander := NewExpander(dir, logger, maxRetries, retryBaseWait)
	return &Scanner{
		collector: NewCollector(store, logger),
		expander:  expander,
		detector:  NewDetector(dir, expander, logger, concurrency),
		logger:    logger,
	}
}

// Scan collects grants at scope and detects duplicate user assignments.
func (s *Scanner) Scan(ctx context.Context, scope string) (*Result, error) {
	start := time.Now()

	index, err := s.collector.Collect(ctx, scope)
	if err != nil {
		return nil, err
	}

	candidates, err := s.detector.Detect(ctx, index)
	if err != nil {
		return nil, err
	}

	stats := s.expander.Stats()
	res := &Result{
		Candidates: candidates,
		Summary: Summary{
			Scope:           scope,
			RolesScanned:    len(index.ByRole),
			GroupsExpanded:  stats.GroupsExpanded,
			CandidatesFound: len(candidates),
			MembersSkipped:  stats.MembersSkipped,
			PartialGroups:   stats.PartialGroups,
			Elapsed:         time.Since(start),
		},
	}
	s.logger.Info("scan complete",
		"scope", scope,
		"roles", res.Summary.RolesScanned,
		"groups_expanded", res.Summary.GroupsExpanded,
		"candidates", res.Summary.CandidatesFound,
		"elapsed", res.Summary.Elapsed)
	return res, nil
}
