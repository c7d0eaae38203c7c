// Package ledger persists duplicate candidates to a reviewable CSV file and
// reads them back for the removal pass.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"rolesweep/internal/domain"
)

// Columns is the fixed ledger schema, in exact output order. Reordering or
// renaming breaks downstream review tooling.
var Columns = []string{
	"subscription_id",
	"role_name",
	"role_definition_id",
	"assignment_id",
	"assignment_name",
	"principal_type",
	"principal_id",
	"principal_displayName",
	"principal_userPrincipalName",
	"assignment_scope",
	"duplicated_via_groups",
}

// Mandatory columns: a row missing any of these is skipped on read.
var mandatory = []string{"subscription_id", "role_definition_id", "assignment_id", "principal_id"}

const groupSeparator = ";"

// Ledger reads and writes candidate CSV files.
type Ledger struct {
	logger *slog.Logger
}

// New creates a Ledger.
func New(logger *slog.Logger) *Ledger {
	return &Ledger{logger: logger}
}

// Write serializes candidates to path, replacing any existing file so the
// ledger always reflects exactly one scan.
func (l *Ledger) Write(candidates []domain.DuplicateCandidate, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create ledger %s: %w", path, err)
	}
	defer f.Close()

	if err := l.write(f, candidates); err != nil {
		return fmt.Errorf("write ledger %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close ledger %s: %w", path, err)
	}
	l.logger.Info("ledger written", "path", path, "rows", len(candidates))
	return nil
}

func (l *Ledger) write(w io.Writer, candidates []domain.DuplicateCandidate) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, c := range candidates {
		if err := cw.Write(rowOf(c)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read parses a ledger file. Rows missing a mandatory field are skipped with
// a logged reason; the read continues.
func (l *Ledger) Read(path string) ([]domain.DuplicateCandidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	defer f.Close()

	candidates, err := l.read(f)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	return candidates, nil
}

func (l *Ledger) read(r io.Reader) ([]domain.DuplicateCandidate, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, domain.ErrValidation("ledger is empty")
	}
	if err != nil {
		return nil, err
	}
	col, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var candidates []domain.DuplicateCandidate
	line := 1
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			l.logger.Warn("skipping malformed ledger row", "line", line, "error", err)
			continue
		}

		cand, err := candidateOf(record, col)
		if err != nil {
			l.logger.Warn("skipping invalid ledger row", "line", line, "error", err)
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// columnIndex validates the header and maps column name to position.
func columnIndex(header []string) (map[string]int, error) {
	col := map[string]int{}
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, name := range mandatory {
		if _, ok := col[name]; !ok {
			return nil, domain.ErrValidation("ledger header missing required column %q", name)
		}
	}
	return col, nil
}

func rowOf(c domain.DuplicateCandidate) []string {
	return []string{
		domain.SubscriptionFromScope(c.Grant.Scope),
		c.RoleName,
		c.Grant.RoleDefinitionID,
		c.Grant.ID,
		c.Grant.Name,
		string(c.Grant.PrincipalType),
		c.Grant.PrincipalID,
		c.PrincipalDisplayName,
		c.PrincipalUserPrincipalName,
		c.Grant.Scope,
		strings.Join(c.ViaGroups, groupSeparator),
	}
}

func candidateOf(record []string, col map[string]int) (domain.DuplicateCandidate, error) {
	field := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	for _, name := range mandatory {
		if field(name) == "" {
			return domain.DuplicateCandidate{}, domain.ErrValidation("missing mandatory field %q", name)
		}
	}

	var viaGroups []string
	for _, g := range strings.Split(field("duplicated_via_groups"), groupSeparator) {
		if g = strings.TrimSpace(g); g != "" {
			viaGroups = append(viaGroups, g)
		}
	}

	ptype := domain.PrincipalType(field("principal_type"))
	if ptype == "" {
		ptype = domain.PrincipalTypeUser
	}

	return domain.DuplicateCandidate{
		Grant: domain.RoleGrant{
			ID:               field("assignment_id"),
			Name:             field("assignment_name"),
			Scope:            field("assignment_scope"),
			RoleDefinitionID: field("role_definition_id"),
			PrincipalID:      field("principal_id"),
			PrincipalType:    ptype,
		},
		RoleName:                   field("role_name"),
		PrincipalDisplayName:       field("principal_displayName"),
		PrincipalUserPrincipalName: field("principal_userPrincipalName"),
		ViaGroups:                  viaGroups,
	}, nil
}
