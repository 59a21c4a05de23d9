package report

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/ordered"
)

func ptr[T any](v T) *T { return &v }

func TestPartition(t *testing.T) {
	combined := Table{
		Columns: []string{"modules", "scheme_code", "amount"},
		Rows: []*ordered.Map{
			ordered.FromPairs("modules", "Members", "scheme_code", "M1", "amount", 10),
			ordered.FromPairs("modules", "deposits", "scheme_code", "D1", "amount", 20),
			ordered.FromPairs("modules", "LOANS", "scheme_code", "L1", "amount", 30),
			ordered.FromPairs("modules", "Deposits", "scheme_code", "D2", "amount", 40),
		},
	}
	p, err := Partition(combined)
	require.NoError(t, err)
	assert.Len(t, p.Member.Rows, 1)
	assert.Len(t, p.Deposit.Rows, 2)
	assert.Len(t, p.Loan.Rows, 1)
	assert.Equal(t, combined.Columns, p.Deposit.Columns)

	combined.Rows = append(combined.Rows, ordered.FromPairs("modules", "Memebrs"))
	_, err = Partition(combined)
	assert.ErrorIs(t, err, ErrUnknownModule, "a misspelt tag is not silently dropped")
}

func TestDeriveIdentity(t *testing.T) {
	r := Report{
		Profit:   Profit{Date: "2024-04-30T00:00:00.000Z"},
		Employee: Employee{Date: "2024-01-01", SdsCode: "E1"},
		Branch: TableFromRows([]*ordered.Map{
			ordered.FromPairs("name", "Main", "SDSCODE", "B1"),
		}),
	}
	date, sds := r.DeriveIdentity()
	assert.Equal(t, "2024-04-30", date)
	assert.Equal(t, "E1", sds)

	r.Employee.SdsCode = ""
	_, sds = r.DeriveIdentity()
	assert.Equal(t, "B1", sds)

	r.NPA.Date = "2024-03-31"
	date, _ = r.DeriveIdentity()
	assert.Equal(t, "2024-03-31", date, "NPA is consulted first")
}

func TestNumericDecoding(t *testing.T) {
	var e Employee
	require.NoError(t, json.Unmarshal([]byte(`{"permanent": 12, "temporary": "3", "contract": null, "monthly_salary": 1250.5}`), &e))
	assert.Equal(t, Numeric("12"), e.Permanent)
	assert.Equal(t, Numeric("3"), e.Temporary)
	assert.Equal(t, Numeric(""), e.Contract)

	f, ok := e.MonthlySalary.Float()
	assert.True(t, ok)
	assert.Equal(t, 1250.5, f)
	_, ok = e.Contract.Float()
	assert.False(t, ok)
}

func TestApplyKeepsSiblingFields(t *testing.T) {
	n := NPA{Date: "2024-05-01", GrossNPA: CountAmount{Count: "4", Amount: "1000"}}
	next := n.Apply(NPAPatch{GrossNPA: &CountAmountPatch{Amount: ptr(Numeric("1500"))}})

	assert.Equal(t, Numeric("4"), next.GrossNPA.Count)
	assert.Equal(t, Numeric("1500"), next.GrossNPA.Amount)
	assert.Equal(t, "2024-05-01", next.Date)
	assert.Equal(t, Numeric("1000"), n.GrossNPA.Amount, "the previous value is untouched")

	s := Safety{StrongRoom: "Yes"}.Apply(SafetyPatch{CCTV: ptr("No")})
	assert.Equal(t, "Yes", s.StrongRoom)
	assert.Equal(t, "No", s.CCTV)
}

func TestPayloadRoundTrip(t *testing.T) {
	r := Report{
		ClientName: "acme",
		Date:       "2024-05-01",
		Deposit: Table{
			Columns: []string{"scheme_code", "opened_on", "amount"},
			Rows: []*ordered.Map{
				ordered.FromPairs("amount", 10, "opened_on", "2023-02-01T00:00:00.000Z", "scheme_code", "D1"),
			},
		},
		Safety: Safety{Locker: "Yes"},
	}

	b, err := json.Marshal(r.Payload())
	require.NoError(t, err)
	var p Payload
	require.NoError(t, json.Unmarshal(b, &p))
	got := FromPayload(p)

	assert.Equal(t, "acme", got.ClientName)
	assert.Equal(t, []string{"scheme_code", "opened_on", "amount"}, got.Deposit.Columns)
	assert.Equal(t, "2023-02-01", got.Deposit.Rows[0].String("opened_on"))
	assert.Equal(t, "Yes", got.Safety.Locker)
	assert.True(t, got.Branch.Empty())
}

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2024-05-01", NormalizeDate("2024-05-01"))
	assert.Equal(t, "2024-05-01", NormalizeDate("2024-05-01T18:30:00.000Z"))
	assert.Equal(t, "2024-05-01", NormalizeDate("2024-05-01 00:00:00"))
	assert.Equal(t, "2024-05-01x", NormalizeDate("2024-05-01x"))
	assert.Equal(t, "Main branch", NormalizeDate("Main branch"))
}

func TestDraftReset(t *testing.T) {
	d := NewDraft()
	var seen []string
	d.OnProgress(func(msg string) { seen = append(seen, msg) })
	d.SetIdentity("acme", "2024-05-01")
	d.SetTable(SectionJewel, TableFromRows([]*ordered.Map{ordered.FromPairs("a", 1)}))
	d.UpdateProfit(ProfitPatch{NetProfit: ptr(Numeric("10"))})
	d.SetProgress("loaded")

	require.False(t, d.Report().IsZero())
	d.Reset()
	r := d.Report()
	assert.True(t, r.IsZero())
	assert.Equal(t, "acme", r.ClientName)
	assert.Equal(t, []string{"loaded"}, seen)
}

func TestRepositoryUpsertExactLatest(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	repo := NewRepository(docs)
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return clock }

	first := Report{
		ClientName: "acme",
		Date:       "2024-04-30",
		Branch:     TableFromRows([]*ordered.Map{ordered.FromPairs("sdscode", "B1", "name", "Main")}),
		NPA:        NPA{Date: "2024-04-30", SdsCode: "B1", Provision: "12"},
	}
	require.NoError(t, repo.Upsert(ctx, first))

	clock = clock.Add(time.Hour)
	second := Report{ClientName: "acme", Date: "2024-05-01", Profit: Profit{Date: "2024-05-01", Audited: "Yes"}}
	require.NoError(t, repo.Upsert(ctx, second))

	got, err := repo.Exact(ctx, "acme", "2024-04-30")
	require.NoError(t, err)
	assert.Equal(t, []string{"sdscode", "name"}, got.Branch.Columns)
	assert.Equal(t, "Main", got.Branch.Rows[0].String("name"))
	assert.Equal(t, Numeric("12"), got.NPA.Provision)

	latest, err := repo.Latest(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", latest.Date)

	_, err = repo.Exact(ctx, "acme", "2023-01-01")
	assert.ErrorIs(t, err, docstore.ErrNotFound)
	_, err = repo.Latest(ctx, "nobody")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	clock = clock.Add(time.Hour)
	first.Jewel = TableFromRows([]*ordered.Map{ordered.FromPairs("weight", 5)})
	require.NoError(t, repo.Upsert(ctx, first))
	doc, err := docs.Get(ctx, Collection, first.Key())
	require.NoError(t, err)
	created, _ := doc.Data.Get("createdAt")
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), created, "merge keeps creation metadata")

	assert.ErrorIs(t, repo.Upsert(ctx, Report{ClientName: "acme"}), ErrMissingIdentity)
}
