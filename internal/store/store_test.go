package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farxc/rcs-reporting/internal/db"
	"github.com/farxc/rcs-reporting/internal/ordered"
	"github.com/farxc/rcs-reporting/internal/report"
)

func sampleReport() report.Report {
	return report.Report{
		ClientName: "acme",
		Date:       "2024-05-01",
		Branch: report.TableFromRows([]*ordered.Map{
			ordered.FromPairs("sdscode", "B1", "name", "Main"),
		}),
		Member: report.TableFromRows([]*ordered.Map{
			ordered.FromPairs("modules", "Members", "scheme_code", "M1", "upto_month_count", "", "upto_month_amount", "120.5"),
			ordered.FromPairs("modules", "Members", "scheme_code", "M2", "upto_month_count", 4),
		}),
		Deposit: report.TableFromRows([]*ordered.Map{
			ordered.FromPairs("modules", "Deposits", "scheme_code", "D1", "during_month_amount", 900),
		}),
		Jewel: report.TableFromRows([]*ordered.Map{
			ordered.FromPairs("loan_count", 3, "net_weight", "41.2"),
		}),
		NPA:    report.NPA{Date: "2024-05-01", SdsCode: "B1", GrossNPA: report.CountAmount{Count: "2", Amount: "5000"}},
		Safety: report.Safety{StrongRoom: "Yes", Locker: "Maybe", CCTV: "No"},
	}
}

func TestSaveDerivesSubmissionType(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(db.OpenTestDB(t))

	first, err := s.Reports.Save(ctx, sampleReport())
	require.NoError(t, err)
	assert.Equal(t, SubmissionFirst, first.SubmissionType)
	assert.Equal(t, "B1", first.SdsCode)
	assert.True(t, first.HasBranch)
	assert.True(t, first.HasNPA)
	assert.False(t, first.HasLoan)
	assert.False(t, first.HasProfit)

	second, err := s.Reports.Save(ctx, sampleReport())
	require.NoError(t, err)
	assert.Equal(t, SubmissionResubmit, second.SubmissionType)

	entries, err := s.SubmissionLog.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	n, err := s.SubmissionLog.Count(ctx, "B1", "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSaveCoercesNumbersAndFlags(t *testing.T) {
	ctx := context.Background()
	conn := db.OpenTestDB(t)
	s := NewStorage(conn)

	_, err := s.Reports.Save(ctx, sampleReport())
	require.NoError(t, err)

	var count sql.NullFloat64
	require.NoError(t, conn.Get(&count, `SELECT upto_month_count FROM member_data WHERE scheme_code = 'M1'`))
	assert.False(t, count.Valid, "empty string is stored as NULL")

	var amount sql.NullFloat64
	require.NoError(t, conn.Get(&amount, `SELECT upto_month_amount FROM member_data WHERE scheme_code = 'M1'`))
	assert.True(t, amount.Valid)
	assert.Equal(t, 120.5, amount.Float64)

	var flags struct {
		StrongRoom sql.NullBool `db:"strong_room"`
		Locker     sql.NullBool `db:"locker"`
		CCTV       sql.NullBool `db:"cctv"`
	}
	require.NoError(t, conn.Get(&flags, `SELECT strong_room, locker, cctv FROM safety_data`))
	assert.Equal(t, sql.NullBool{Bool: true, Valid: true}, flags.StrongRoom)
	assert.False(t, flags.Locker.Valid, "unrecognised value is stored as NULL")
	assert.Equal(t, sql.NullBool{Bool: false, Valid: true}, flags.CCTV)
}

func TestSaveRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	conn := db.OpenTestDB(t)
	s := NewStorage(conn)

	_, err := conn.Exec(`DROP TABLE jewel_data`)
	require.NoError(t, err)

	_, err = s.Reports.Save(ctx, sampleReport())
	require.Error(t, err)

	var members, logs int
	require.NoError(t, conn.Get(&members, `SELECT COUNT(*) FROM member_data`))
	require.NoError(t, conn.Get(&logs, `SELECT COUNT(*) FROM report_insert_log`))
	assert.Zero(t, members)
	assert.Zero(t, logs)
}

func TestSaveRequiresIdentity(t *testing.T) {
	s := NewStorage(db.OpenTestDB(t))
	_, err := s.Reports.Save(context.Background(), report.Report{ClientName: "acme"})
	assert.ErrorIs(t, err, report.ErrMissingIdentity)

	_, err = s.Reports.Save(context.Background(), report.Report{ClientName: "acme", Date: "2024-05-01"})
	assert.ErrorIs(t, err, ErrMissingSdsCode)
}

func TestGetExactAndLatest(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(db.OpenTestDB(t))
	_, err := s.Reports.Save(ctx, sampleReport())
	require.NoError(t, err)

	got, err := s.Reports.Get(ctx, "acme", "2024-05-01", LookupExact)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", got.Date)
	require.Len(t, got.Member.Rows, 2)
	assert.Equal(t, "M1", got.Member.Rows[0].String("scheme_code"))
	assert.Equal(t, []string{"modules", "scheme_code", "upto_month_count", "upto_month_amount"}, got.Member.Columns)
	assert.Equal(t, "Main", got.Branch.Rows[0].String("name"))
	assert.Equal(t, report.Numeric("5000"), got.NPA.GrossNPA.Amount)
	assert.Equal(t, "Maybe", got.Safety.Locker)

	_, err = s.Reports.Get(ctx, "acme", "2024-05-20", LookupExact)
	assert.ErrorIs(t, err, ErrReportNotFound)

	got, err = s.Reports.Get(ctx, "acme", "2024-05-20", LookupLatest)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", got.Date)

	_, err = s.Reports.Get(ctx, "acme", "2024-04-01", LookupLatest)
	assert.ErrorIs(t, err, ErrReportNotFound)
}

func TestPushLogUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(db.OpenTestDB(t))

	key := PushLogEntry{Source: SourceLocal, ClientName: "acme", FromDate: "2024-05-01", Module: "Deposits"}

	first := key
	first.Status = PushFailed
	first.Response = sql.NullString{String: `{"error":"timeout"}`, Valid: true}
	require.NoError(t, s.PushLog.Upsert(ctx, &first))

	second := key
	second.Status = PushSuccess
	second.Response = sql.NullString{String: `{"ok":true}`, Valid: true}
	require.NoError(t, s.PushLog.Upsert(ctx, &second))

	entries, err := s.PushLog.List(ctx, PushLogFilter{Source: SourceLocal, ClientName: "acme"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, PushSuccess, entries[0].Status)
	assert.Equal(t, `{"ok":true}`, entries[0].Response.String)

	other := key
	other.Module = "Jewel"
	other.Status = PushDryRun
	require.NoError(t, s.PushLog.Upsert(ctx, &other))
	entries, err = s.PushLog.List(ctx, PushLogFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestNullFloat(t *testing.T) {
	for _, v := range []any{nil, "", "  "} {
		got, err := NullFloat(v)
		require.NoError(t, err)
		assert.False(t, got.Valid, "%v is stored as NULL", v)
	}

	for in, want := range map[any]float64{"0": 0, int64(7): 7, report.Numeric("2.5"): 2.5, " 41.2 ": 41.2} {
		got, err := NullFloat(in)
		require.NoError(t, err)
		assert.Equal(t, sql.NullFloat64{Float64: want, Valid: true}, got)
	}

	for _, v := range []any{"abc", "12,500", report.Numeric("n/a"), true} {
		_, err := NullFloat(v)
		assert.ErrorIs(t, err, ErrInvalidNumber, "%v", v)
	}
}

func TestSaveRejectsUnparsableNumber(t *testing.T) {
	ctx := context.Background()
	conn := db.OpenTestDB(t)
	s := NewStorage(conn)

	r := sampleReport()
	r.Member = report.TableFromRows([]*ordered.Map{
		ordered.FromPairs("modules", "Members", "scheme_code", "M1", "upto_month_amount", "12,500"),
	})
	_, err := s.Reports.Save(ctx, r)
	require.ErrorIs(t, err, ErrInvalidNumber)
	assert.Contains(t, err.Error(), "upto_month_amount")

	var members, logs int
	require.NoError(t, conn.Get(&members, `SELECT COUNT(*) FROM member_data`))
	require.NoError(t, conn.Get(&logs, `SELECT COUNT(*) FROM report_insert_log`))
	assert.Zero(t, members)
	assert.Zero(t, logs)

	r = sampleReport()
	r.Profit = report.Profit{NetProfit: "ten"}
	_, err = s.Reports.Save(ctx, r)
	require.ErrorIs(t, err, ErrInvalidNumber)
	assert.Contains(t, err.Error(), "net_profit")
}
