package submission

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/rcs-reporting/internal/command"
	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
	"github.com/farxc/rcs-reporting/internal/rendezvous"
	"github.com/farxc/rcs-reporting/internal/report"
)

type fakeLocal struct {
	saved []report.Report
	err   error
}

func (f *fakeLocal) SaveReport(_ context.Context, r report.Report) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, r)
	return nil
}

func filledDraft() *report.Draft {
	d := report.NewDraft()
	d.SetIdentity("acme", "2024-05-01")
	d.SetTable(report.SectionBranch, report.TableFromRows([]*ordered.Map{ordered.FromPairs("sdscode", "B1")}))
	d.UpdateEmployee(report.EmployeePatch{Permanent: func() *report.Numeric { n := report.Numeric("4"); return &n }()})
	return d
}

func TestSubmitRequiresDestination(t *testing.T) {
	local := &fakeLocal{}
	p := New(nil, nil, local, nil)
	d := filledDraft()

	_, err := p.Submit(context.Background(), d, "agent", Destinations{})
	assert.ErrorIs(t, err, ErrNoDestinationSelected)
	assert.Empty(t, local.saved)
	assert.False(t, d.Report().IsZero(), "nothing is reset on a rejected submit")
}

func TestSubmitRequiresIdentity(t *testing.T) {
	p := New(nil, nil, &fakeLocal{}, nil)
	_, err := p.Submit(context.Background(), report.NewDraft(), "agent", Destinations{Offline: true})
	assert.ErrorIs(t, err, report.ErrMissingIdentity)
}

func TestSubmitOnlineUpsertsAndSweeps(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	results := command.NewResultStore(docs)
	rows := []*ordered.Map{ordered.FromPairs("a", 1)}
	require.NoError(t, results.Publish(ctx, "c1", "agent", nil, rows))
	require.NoError(t, results.Publish(ctx, "c2", "agent", nil, rows))

	repo := report.NewRepository(docs)
	p := New(repo, rendezvous.New(docs, nil), nil, nil)
	d := filledDraft()

	res, err := p.Submit(ctx, d, "agent", Destinations{Online: true})
	require.NoError(t, err)
	assert.True(t, res.Online)
	assert.Equal(t, 2, res.Swept)

	stored, err := repo.Exact(ctx, "acme", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, report.Numeric("4"), stored.Employee.Permanent)

	left, err := results.ListBySubmitter(ctx, "agent")
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.True(t, d.Report().IsZero(), "draft reset after success")
}

func TestSubmitPartialFailure(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	local := &fakeLocal{err: errors.New("connection refused")}
	p := New(report.NewRepository(docs), nil, local, nil)
	d := filledDraft()

	res, err := p.Submit(ctx, d, "agent", Destinations{Online: true, Offline: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
	assert.True(t, res.Online)
	assert.False(t, res.Offline)
	assert.True(t, d.Report().IsZero(), "one successful destination resets the draft")
}

func TestSubmitAllFail(t *testing.T) {
	local := &fakeLocal{err: errors.New("down")}
	p := New(nil, nil, local, nil)
	d := filledDraft()

	_, err := p.Submit(context.Background(), d, "agent", Destinations{Offline: true})
	require.Error(t, err)
	assert.False(t, d.Report().IsZero(), "draft kept for a retry")
}
