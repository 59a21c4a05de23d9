package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

func TestCreateAndAdvance(t *testing.T) {
	ctx := context.Background()
	s := NewStore(docstore.NewMemory())

	c, err := s.Create(ctx, "client-1", "agent-7", "q-branch", map[string]string{"Fromdate": "2024-05-01"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, c.Status)

	got, err := s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", got.Variables["Fromdate"])
	assert.Equal(t, "agent-7", got.SubmitterID)

	require.NoError(t, s.Advance(ctx, c.ID, StatusRunning, Update{}))
	require.NoError(t, s.Advance(ctx, c.ID, StatusSuccess, Update{ColumnOrder: []string{"a", "b"}, QueryType: QueryTypeSelect}))

	got, err = s.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, []string{"a", "b"}, got.ColumnOrder)
	assert.False(t, got.CompletedAt.IsZero())

	err = s.Advance(ctx, c.ID, StatusFailed, Update{Error: "late"})
	assert.ErrorIs(t, err, ErrInvalidTransition, "terminal status never changes")
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusRunning))
	assert.True(t, CanTransition(StatusRunning, StatusFailed))
	assert.False(t, CanTransition(StatusRunning, StatusPending))
	assert.False(t, CanTransition(StatusSuccess, StatusRunning))
	assert.False(t, CanTransition(StatusFailed, StatusSuccess))
}

func TestCreatedSince(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	s := NewStore(docs).WithClock(func() time.Time { return now })

	_, err := s.Create(ctx, "client-1", "system", "daily", nil)
	require.NoError(t, err)

	today := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	got, err := s.CreatedSince(ctx, "daily", "client-1", today)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.CreatedSince(ctx, "daily", "client-1", today.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = s.CreatedSince(ctx, "daily", "client-2", today)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResultStorePublishListDelete(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	r := NewResultStore(docs)

	rows := []*ordered.Map{ordered.FromPairs("a", 1), ordered.FromPairs("a", 2)}
	require.NoError(t, r.Publish(ctx, "cmd1", "agent", []string{"a"}, rows, 1, 0))
	require.NoError(t, r.Publish(ctx, "cmd2", "agent", nil, rows))
	require.NoError(t, r.Publish(ctx, "cmd3", "someone-else", nil, rows))

	ids, err := r.ListBySubmitter(ctx, "agent")
	require.NoError(t, err)
	assert.Equal(t, []string{"cmd1_agent", "cmd2_agent"}, ids)

	stored, err := docs.Query(ctx, docstore.Query{Collection: RowsPath("cmd1_agent")})
	require.NoError(t, err)
	require.Len(t, stored, 2)
	idx, ok := RowIndex(stored[0].Data)
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	require.NoError(t, r.Delete(ctx, "cmd1_agent"))
	require.NoError(t, r.Delete(ctx, "cmd1_agent"), "deleting a gone result set is tolerated")

	stored, err = docs.Query(ctx, docstore.Query{Collection: RowsPath("cmd1_agent")})
	require.NoError(t, err)
	assert.Empty(t, stored)
}
