package scan

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rolesweep/internal/domain"
	"rolesweep/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExpander(dir domain.PrincipalDirectory) *Expander {
	return NewExpander(dir, discardLogger(), 2, time.Millisecond)
}

func TestExpandFlatGroup(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("u1", "User One", "u1@example.com")
	dir.AddUser("u2", "User Two", "u2@example.com")
	dir.AddGroup("g1", "Group One", "u1", "u2")

	leaves, err := newTestExpander(dir).Expand(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, leaves)
}

func TestExpandNestedGroups(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("u1", "", "")
	dir.AddUser("u2", "", "")
	dir.AddUser("u3", "", "")
	dir.AddGroup("a", "Inner", "u1", "u2")
	dir.AddGroup("b", "Outer", "a", "u3")

	e := newTestExpander(dir)
	leavesB, err := e.Expand(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2", "u3"}, leavesB)

	leavesA, err := e.Expand(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, leavesA)
}

func TestExpandTerminatesOnCycle(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddGroup("g1", "One")
	dir.AddGroup("g2", "Two")
	dir.Members["g1"] = []string{"g2"}
	dir.Members["g2"] = []string{"g1"}

	leaves, err := newTestExpander(dir).Expand(context.Background(), "g1")
	require.NoError(t, err)
	assert.Empty(t, leaves)
}

func TestExpandCycleWithLeaves(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("u1", "", "")
	dir.AddUser("u2", "", "")
	dir.AddGroup("g1", "One", "g2", "u1")
	dir.AddGroup("g2", "Two", "g1", "u2")

	leaves, err := newTestExpander(dir).Expand(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, leaves)
}

func TestExpandSkipsUnresolvableMember(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("u1", "", "")
	dir.AddGroup("g1", "One", "u1", "ghost")

	e := newTestExpander(dir)
	leaves, err := e.Expand(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, leaves)

	stats := e.Stats()
	assert.Equal(t, 1, stats.MembersSkipped)
	assert.Equal(t, []string{"g1"}, stats.PartialGroups)
}

func TestExpandServicePrincipalIsLeaf(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddServicePrincipal("sp1", "Automation")
	dir.AddUser("u1", "", "")
	dir.AddGroup("g1", "One", "sp1", "u1")

	leaves, err := newTestExpander(dir).Expand(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"sp1", "u1"}, leaves)
}

func TestExpandForbiddenAborts(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.ListGroupMembersFn = func(ctx context.Context, groupID string) ([]string, error) {
		return nil, domain.ErrForbidden("missing Directory.Read.All")
	}

	_, err := newTestExpander(dir).Expand(context.Background(), "g1")
	require.Error(t, err)
	assert.True(t, domain.IsForbidden(err))
}

func TestExpandRetriesThrottled(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("u1", "", "")
	dir.AddGroup("g1", "One", "u1")

	var calls int
	var mu sync.Mutex
	dir.ListGroupMembersFn = func(ctx context.Context, groupID string) ([]string, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			return nil, domain.ErrThrottled("429 too many requests")
		}
		return []string{"u1"}, nil
	}

	leaves, err := newTestExpander(dir).Expand(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, leaves)
	assert.Equal(t, 2, calls)
}

func TestExpandThrottledExhaustionIsSoft(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.ListGroupMembersFn = func(ctx context.Context, groupID string) ([]string, error) {
		return nil, domain.ErrThrottled("429 too many requests")
	}

	e := newTestExpander(dir)
	leaves, err := e.Expand(context.Background(), "g1")
	require.NoError(t, err)
	assert.Empty(t, leaves)
	assert.Equal(t, []string{"g1"}, e.Stats().PartialGroups)
}

func TestExpandMemoizesAcrossCalls(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("u1", "", "")
	dir.AddGroup("g1", "One", "u1")

	e := newTestExpander(dir)
	_, err := e.Expand(context.Background(), "g1")
	require.NoError(t, err)
	_, err = e.Expand(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, 1, dir.ListCallsFor("g1"))
}

func TestExpandConcurrentSingleComputation(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("u1", "", "")
	dir.AddGroup("g1", "One", "u1")

	dir.ListGroupMembersFn = func(ctx context.Context, groupID string) ([]string, error) {
		time.Sleep(10 * time.Millisecond)
		return []string{"u1"}, nil
	}

	e := newTestExpander(dir)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			leaves, err := e.Expand(context.Background(), "g1")
			assert.NoError(t, err)
			assert.Equal(t, []string{"u1"}, leaves)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, dir.ListCallsFor("g1"))
}

func TestExpandReusesNestedMemo(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddUser("u1", "", "")
	dir.AddGroup("inner", "Inner", "u1")
	dir.AddGroup("outer", "Outer", "inner")

	e := newTestExpander(dir)
	_, err := e.Expand(context.Background(), "inner")
	require.NoError(t, err)

	leaves, err := e.Expand(context.Background(), "outer")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, leaves)
	assert.Equal(t, 1, dir.ListCallsFor("inner"))
}

func TestExpandCancelled(t *testing.T) {
	dir := testutil.NewMockDirectory()
	dir.AddGroup("g1", "One")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestExpander(dir).Expand(ctx, "g1")
	require.ErrorIs(t, err, context.Canceled)
}
