package ledger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rolesweep/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleCandidates() []domain.DuplicateCandidate {
	return []domain.DuplicateCandidate{
		{
			Grant: domain.RoleGrant{
				ID:               "/subscriptions/sub1/providers/Microsoft.Authorization/roleAssignments/a1",
				Name:             "a1",
				Scope:            "/subscriptions/sub1",
				RoleDefinitionID: "/subscriptions/sub1/providers/Microsoft.Authorization/roleDefinitions/reader-guid",
				PrincipalID:      "u1",
				PrincipalType:    domain.PrincipalTypeUser,
			},
			RoleName:                   "Reader",
			PrincipalDisplayName:       "User One",
			PrincipalUserPrincipalName: "u1@example.com",
			ViaGroups:                  []string{"g1", "g2"},
		},
		{
			Grant: domain.RoleGrant{
				ID:               "/subscriptions/sub1/providers/Microsoft.Authorization/roleAssignments/a2",
				Name:             "a2",
				Scope:            "/subscriptions/sub1",
				RoleDefinitionID: "/subscriptions/sub1/providers/Microsoft.Authorization/roleDefinitions/owner-guid",
				PrincipalID:      "u2",
				PrincipalType:    domain.PrincipalTypeUser,
			},
			RoleName:  "Owner",
			ViaGroups: []string{"g3"},
		},
	}
}

func TestLedgerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup_roles.csv")
	l := New(discardLogger())
	want := sampleCandidates()

	require.NoError(t, l.Write(want, path))
	got, err := l.Read(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLedgerWriteReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup_roles.csv")
	l := New(discardLogger())

	require.NoError(t, l.Write(sampleCandidates(), path))
	require.NoError(t, l.Write(sampleCandidates()[:1], path))

	got, err := l.Read(path)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLedgerWriteHeaderOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup_roles.csv")
	require.NoError(t, New(discardLogger()).Write(nil, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t,
		"subscription_id,role_name,role_definition_id,assignment_id,assignment_name,principal_type,principal_id,principal_displayName,principal_userPrincipalName,assignment_scope,duplicated_via_groups",
		lines[0])
}

func TestLedgerViaGroupsJoined(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup_roles.csv")
	require.NoError(t, New(discardLogger()).Write(sampleCandidates(), path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "g1;g2")
	assert.NotContains(t, string(data), "g1;g2;")
}

func TestLedgerReadSkipsRowsMissingMandatoryFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup_roles.csv")
	content := strings.Join([]string{
		strings.Join(Columns, ","),
		// Missing assignment_id: skipped.
		"sub1,Reader,def1,,a1,User,u1,User One,u1@example.com,/subscriptions/sub1,g1",
		// Valid row.
		"sub1,Reader,def1,assign-2,a2,User,u2,User Two,u2@example.com,/subscriptions/sub1,g1",
		// Missing principal_id: skipped.
		"sub1,Reader,def1,assign-3,a3,User,,User Three,,/subscriptions/sub1,g1",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := New(discardLogger()).Read(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "assign-2", got[0].Grant.ID)
}

func TestLedgerReadRejectsWrongHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("foo,bar\n1,2\n"), 0o644))

	_, err := New(discardLogger()).Read(path)
	require.Error(t, err)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestLedgerReadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := New(discardLogger()).Read(path)
	require.Error(t, err)
}

func TestLedgerReadToleratesMessyGroupList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup_roles.csv")
	content := strings.Join([]string{
		strings.Join(Columns, ","),
		"sub1,Reader,def1,assign-1,a1,User,u1,,,/subscriptions/sub1,g1;;g2; ",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	got, err := New(discardLogger()).Read(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"g1", "g2"}, got[0].ViaGroups)
}

func TestSplitBlobURL(t *testing.T) {
	service, container, blob, err := splitBlobURL("https://acct.blob.core.windows.net/ledgers/2026/dup.csv")
	require.NoError(t, err)
	assert.Equal(t, "https://acct.blob.core.windows.net", service)
	assert.Equal(t, "ledgers", container)
	assert.Equal(t, "2026/dup.csv", blob)

	_, _, _, err = splitBlobURL("https://acct.blob.core.windows.net/ledgers")
	require.Error(t, err)
	_, _, _, err = splitBlobURL("not a url")
	require.Error(t, err)
}
