package rendezvous

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/rcs-reporting/internal/command"
	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

// fakeWorker answers every pending command with the given rows.
func fakeWorker(t *testing.T, docs docstore.Store, columns []string, rows []*ordered.Map) {
	t.Helper()
	commands := command.NewStore(docs)
	results := command.NewResultStore(docs)
	var mu sync.Mutex
	handled := map[string]bool{}

	sub, err := docs.WatchQuery(context.Background(), docstore.Query{
		Collection: command.Collection,
		Filters:    []docstore.Filter{docstore.Where("status", string(command.StatusPending))},
	}, func(snap docstore.Snapshot) {
		for _, d := range snap.Docs {
			mu.Lock()
			seen := handled[d.ID]
			handled[d.ID] = true
			mu.Unlock()
			if seen {
				continue
			}
			cmd, err := command.FromDocument(d)
			if err != nil {
				continue
			}
			go func(cmd command.Command) {
				ctx := context.Background()
				_ = commands.Advance(ctx, cmd.ID, command.StatusRunning, command.Update{})
				_ = results.Publish(ctx, cmd.ID, cmd.SubmitterID, columns, rows)
				_ = commands.Advance(ctx, cmd.ID, command.StatusSuccess, command.Update{QueryType: command.QueryTypeSelect})
			}(cmd)
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
}

func TestAwaitCommandSuccess(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	c := New(docs, nil)

	id, err := c.SubmitCommand(ctx, "client-1", "agent", "q1", nil)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = c.Commands().Advance(ctx, id, command.StatusRunning, command.Update{})
		_ = c.Commands().Advance(ctx, id, command.StatusSuccess, command.Update{QueryType: command.QueryTypeSelect})
	}()

	cmd, err := c.AwaitCommand(ctx, id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, command.StatusSuccess, cmd.Status)
	assert.Equal(t, 0, docs.WatcherCount())
}

func TestAwaitCommandFailed(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	c := New(docs, nil)

	id, err := c.SubmitCommand(ctx, "client-1", "agent", "q1", nil)
	require.NoError(t, err)
	require.NoError(t, c.Commands().Advance(ctx, id, command.StatusFailed, command.Update{Error: "relation does not exist"}))

	_, err = c.AwaitCommand(ctx, id, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQueryFailed)
	var qf *QueryFailedError
	require.True(t, errors.As(err, &qf))
	assert.Equal(t, "relation does not exist", qf.Message)
	assert.Equal(t, 0, docs.WatcherCount())
}

func TestAwaitCommandTimeout(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	c := New(docs, nil)

	id, err := c.SubmitCommand(ctx, "client-1", "agent", "q1", nil)
	require.NoError(t, err)

	_, err = c.AwaitCommand(ctx, id, 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 0, docs.WatcherCount(), "listener released on timeout")

	_, err = c.AwaitCommand(ctx, id, 0)
	assert.ErrorIs(t, err, ErrTimeoutRequired)
}

func TestPollCommand(t *testing.T) {
	ctx := context.Background()
	c := New(docstore.NewMemory(), nil)
	c.PollInterval = 5 * time.Millisecond

	id, err := c.SubmitCommand(ctx, "client-1", "agent", "q1", nil)
	require.NoError(t, err)
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = c.Commands().Advance(ctx, id, command.StatusSuccess, command.Update{})
	}()

	cmd, err := c.PollCommand(ctx, id, time.Second)
	require.NoError(t, err)
	assert.Equal(t, command.StatusSuccess, cmd.Status)

	other, err := c.SubmitCommand(ctx, "client-1", "agent", "q1", nil)
	require.NoError(t, err)
	_, err = c.PollCommand(ctx, other, 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestColumnOrderPrecedence(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	c := New(docs, nil)
	results := command.NewResultStore(docs)
	rows := []*ordered.Map{ordered.FromPairs("z", 1, "b", 2, "a", 3)}

	t.Run("command order wins", func(t *testing.T) {
		id, err := c.SubmitCommand(ctx, "cl", "agent", "q", nil)
		require.NoError(t, err)
		require.NoError(t, c.Commands().Advance(ctx, id, command.StatusSuccess, command.Update{ColumnOrder: []string{"a", "b", "z"}}))
		require.NoError(t, results.Publish(ctx, id, "agent", []string{"b", "a", "z"}, rows))

		got, err := c.FetchResults(ctx, id, "agent", time.Second)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "z"}, got.Columns)
	})

	t.Run("meta order next", func(t *testing.T) {
		id, err := c.SubmitCommand(ctx, "cl", "agent", "q", nil)
		require.NoError(t, err)
		require.NoError(t, results.Publish(ctx, id, "agent", []string{"b", "a", "z"}, rows))

		got, err := c.FetchResults(ctx, id, "agent", time.Second)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "a", "z"}, got.Columns)
	})

	t.Run("first row keys last", func(t *testing.T) {
		id, err := c.SubmitCommand(ctx, "cl", "agent", "q", nil)
		require.NoError(t, err)
		require.NoError(t, results.Publish(ctx, id, "agent", nil, rows))

		got, err := c.FetchResults(ctx, id, "agent", time.Second)
		require.NoError(t, err)
		assert.Equal(t, []string{"z", "b", "a"}, got.Columns)
	})
}

func TestStreamPicksUpLateCommandColumnOrder(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	c := New(docs, nil)
	results := command.NewResultStore(docs)

	id, err := c.SubmitCommand(ctx, "cl", "agent", "q", nil)
	require.NoError(t, err)

	stream, err := c.StreamResults(ctx, id, "agent", nil)
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, c.Commands().Advance(ctx, id, command.StatusRunning, command.Update{ColumnOrder: []string{"a", "b", "z"}}))
	require.NoError(t, results.Publish(ctx, id, "agent", []string{"b", "a", "z"}, []*ordered.Map{
		ordered.FromPairs("z", 1, "b", 2, "a", 3),
	}))

	require.Eventually(t, func() bool { return stream.Current().Complete() }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		cols := stream.Current().Columns
		return len(cols) == 3 && cols[0] == "a"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "z"}, stream.Current().Columns)
}

func TestRowsSortedByIndexRegardlessOfArrival(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	c := New(docs, nil)
	results := command.NewResultStore(docs)

	var mu sync.Mutex
	var views []Results
	stream, err := c.StreamResults(ctx, "cmd1", "agent", func(r Results) {
		mu.Lock()
		views = append(views, r)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer stream.Close()

	rows := []*ordered.Map{
		ordered.FromPairs("n", 0),
		ordered.FromPairs("n", 1),
		ordered.FromPairs("n", 2),
	}
	require.NoError(t, results.Publish(ctx, "cmd1", "agent", []string{"n"}, rows, 2, 0, 1))

	require.Eventually(t, func() bool { return stream.Current().Complete() }, time.Second, 5*time.Millisecond)

	final := stream.Current()
	require.Len(t, final.Rows, 3)
	for i, row := range final.Rows {
		assert.Equal(t, i, nField(row))
		assert.False(t, row.Has(command.FieldRowIndex))
		assert.False(t, row.Has(command.FieldStoredAt))
	}

	mu.Lock()
	defer mu.Unlock()
	for _, v := range views {
		for i := 1; i < len(v.Rows); i++ {
			assert.Less(t, nField(v.Rows[i-1]), nField(v.Rows[i]))
		}
	}
}

func TestRefreshDoesNotDuplicateListeners(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	c := New(docs, nil)

	stream, err := c.StreamResults(ctx, "cmd1", "agent", nil)
	require.NoError(t, err)
	assert.Equal(t, 3, docs.WatcherCount())

	require.NoError(t, stream.Refresh(ctx))
	require.NoError(t, stream.Refresh(ctx))
	assert.Equal(t, 3, docs.WatcherCount())

	require.NoError(t, stream.Close())
	assert.Equal(t, 0, docs.WatcherCount())
}

func TestCleanupSweepsOrphans(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	c := New(docs, nil)
	results := command.NewResultStore(docs)
	rows := []*ordered.Map{ordered.FromPairs("a", 1)}

	require.NoError(t, results.Publish(ctx, "current", "agent", nil, rows))
	require.NoError(t, results.Publish(ctx, "orphan", "agent", nil, rows))
	require.NoError(t, results.Publish(ctx, "theirs", "someone-else", nil, rows))

	require.NoError(t, c.Cleanup(ctx, "current", "agent"))

	left, err := results.ListBySubmitter(ctx, "agent")
	require.NoError(t, err)
	assert.Empty(t, left)

	theirs, err := results.ListBySubmitter(ctx, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, []string{"theirs_someone-else"}, theirs)

	require.NoError(t, c.Cleanup(ctx, "current", "agent"), "a second cleanup finds nothing and succeeds")
}

func TestExecuteEndToEnd(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	fakeWorker(t, docs, []string{"name", "code"}, []*ordered.Map{
		ordered.FromPairs("code", "01", "name", "Main"),
		ordered.FromPairs("code", "02", "name", "East"),
	})
	c := New(docs, nil)

	got, err := c.Execute(ctx, "client-1", "agent", "branch", map[string]string{"Fromdate": "2024-05-01"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "code"}, got.Columns)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, "East", got.Rows[1].String("name"))
}

func TestExecuteWithPolling(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	fakeWorker(t, docs, []string{"code"}, []*ordered.Map{ordered.FromPairs("code", "01")})
	c := New(docs, nil)
	c.Poll, c.PollInterval = true, 5*time.Millisecond

	got, err := c.Execute(ctx, "client-1", "agent", "branch", nil, time.Second)
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, "01", got.Rows[0].String("code"))
}

func TestCleanupWithoutCommandOnlySweeps(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	c := New(docs, nil)
	results := command.NewResultStore(docs)
	require.NoError(t, results.Publish(ctx, "left", "agent", nil, []*ordered.Map{ordered.FromPairs("a", 1)}))

	require.NoError(t, c.Cleanup(ctx, "", "agent"))

	left, err := results.ListBySubmitter(ctx, "agent")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func nField(row *ordered.Map) int {
	v, _ := row.Get("n")
	n, _ := v.(int)
	return n
}
