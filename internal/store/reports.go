package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/farxc/rcs-reporting/internal/ordered"
	"github.com/farxc/rcs-reporting/internal/report"
)

type ReportStore struct {
	db *sqlx.DB
}

var schemeCodeFields = []string{"scheme_code", "SCHEME_CODE", "schemeCode", "schemecode"}

// Save writes every section of the report and one submission log row in a
// single transaction. The submission type is FIRST when no earlier log row
// exists for the same sds code and date.
func (rs *ReportStore) Save(ctx context.Context, r report.Report) (SubmissionLogEntry, error) {
	if err := r.RequireIdentity(); err != nil {
		return SubmissionLogEntry{}, err
	}
	date := report.NormalizeDate(r.Date)
	_, sds := r.DeriveIdentity()
	if sds == "" {
		return SubmissionLogEntry{}, ErrMissingSdsCode
	}
	now := time.Now().UTC()

	tx, err := rs.db.BeginTxx(ctx, nil)
	if err != nil {
		return SubmissionLogEntry{}, err
	}
	defer tx.Rollback()

	var prior int
	if err := tx.GetContext(ctx, &prior, tx.Rebind(`SELECT COUNT(*) FROM report_insert_log WHERE sds_code = ? AND report_date = ?`), sds, date); err != nil {
		return SubmissionLogEntry{}, fmt.Errorf("count submissions: %w", err)
	}

	if err := upsertBranch(ctx, tx, r, sds, now); err != nil {
		return SubmissionLogEntry{}, err
	}
	for _, t := range []struct {
		table string
		rows  report.Table
	}{
		{"member_data", r.Member},
		{"deposit_data", r.Deposit},
		{"loan_data", r.Loan},
	} {
		if err := upsertTabular(ctx, tx, t.table, t.rows, r.ClientName, sds, date, now); err != nil {
			return SubmissionLogEntry{}, err
		}
	}
	if err := upsertJewel(ctx, tx, r, sds, date, now); err != nil {
		return SubmissionLogEntry{}, err
	}
	if err := upsertSingletons(ctx, tx, r, sds, date, now); err != nil {
		return SubmissionLogEntry{}, err
	}

	has := r.NonEmpty()
	entry := SubmissionLogEntry{
		ID:             uuid.NewString(),
		ClientName:     r.ClientName,
		SdsCode:        sds,
		ReportDate:     date,
		HasBranch:      has[report.SectionBranch],
		HasMember:      has[report.SectionMember],
		HasDeposit:     has[report.SectionDeposit],
		HasLoan:        has[report.SectionLoan],
		HasJewel:       has[report.SectionJewel],
		HasEmployee:    has[report.SectionEmployee],
		HasNPA:         has[report.SectionNPA],
		HasProfit:      has[report.SectionProfit],
		HasSafety:      has[report.SectionSafety],
		SubmissionType: SubmissionFirst,
		CreatedAt:      now,
	}
	if prior > 0 {
		entry.SubmissionType = SubmissionResubmit
	}
	query := `INSERT INTO report_insert_log (
		id, client_name, sds_code, report_date,
		has_branch, has_member, has_deposit, has_loan, has_jewel,
		has_employee, has_npa, has_profit, has_safety,
		submission_type, created_at
	) VALUES (
		:id, :client_name, :sds_code, :report_date,
		:has_branch, :has_member, :has_deposit, :has_loan, :has_jewel,
		:has_employee, :has_npa, :has_profit, :has_safety,
		:submission_type, :created_at
	)`
	if _, err := tx.NamedExecContext(ctx, query, &entry); err != nil {
		return SubmissionLogEntry{}, fmt.Errorf("insert submission log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SubmissionLogEntry{}, err
	}
	return entry, nil
}

func rowJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func upsertBranch(ctx context.Context, tx *sqlx.Tx, r report.Report, sds string, now time.Time) error {
	query := `INSERT INTO branch_data (sds_code, client_name, branch_name, row_json, updated_at)
	VALUES (:sds_code, :client_name, :branch_name, :row_json, :updated_at)
	ON CONFLICT (sds_code) DO UPDATE SET
		client_name = EXCLUDED.client_name,
		branch_name = EXCLUDED.branch_name,
		row_json = EXCLUDED.row_json,
		updated_at = EXCLUDED.updated_at`

	for _, row := range r.Branch.Rows {
		code := fieldString(row, "sdscode", "SDSCODE", "sdsCode", "sds_code")
		if code == "" {
			code = sds
		}
		js, err := rowJSON(report.InColumnOrder(row, r.Branch.Columns))
		if err != nil {
			return err
		}
		b := branchRow{
			SdsCode:    code,
			ClientName: r.ClientName,
			BranchName: nullString(fieldString(row, "branch_name", "branchname", "name")),
			RowJSON:    js,
			UpdatedAt:  now,
		}
		if _, err := tx.NamedExecContext(ctx, query, &b); err != nil {
			return fmt.Errorf("upsert branch_data: %w", err)
		}
	}
	return nil
}

func upsertTabular(ctx context.Context, tx *sqlx.Tx, table string, t report.Table, client, sds, date string, now time.Time) error {
	query := fmt.Sprintf(`INSERT INTO %s (
		sds_code, report_date, scheme_code, client_name, module,
		upto_month_count, upto_month_amount, during_month_count, during_month_amount,
		row_index, row_json, updated_at
	) VALUES (
		:sds_code, :report_date, :scheme_code, :client_name, :module,
		:upto_month_count, :upto_month_amount, :during_month_count, :during_month_amount,
		:row_index, :row_json, :updated_at
	)
	ON CONFLICT (sds_code, report_date, scheme_code) DO UPDATE SET
		client_name = EXCLUDED.client_name,
		module = EXCLUDED.module,
		upto_month_count = EXCLUDED.upto_month_count,
		upto_month_amount = EXCLUDED.upto_month_amount,
		during_month_count = EXCLUDED.during_month_count,
		during_month_amount = EXCLUDED.during_month_amount,
		row_index = EXCLUDED.row_index,
		row_json = EXCLUDED.row_json,
		updated_at = EXCLUDED.updated_at`, table)

	for i, row := range t.Rows {
		scheme := fieldString(row, schemeCodeFields...)
		if scheme == "" {
			scheme = fmt.Sprintf("row-%d", i)
		}
		js, err := rowJSON(report.InColumnOrder(row, t.Columns))
		if err != nil {
			return err
		}
		var nums numbers
		tr := tabularRow{
			SdsCode:           sds,
			ReportDate:        date,
			SchemeCode:        scheme,
			ClientName:        client,
			Module:            nullString(fieldString(row, report.ModuleField)),
			UptoMonthCount:    nums.parse("upto_month_count", field(row, "upto_month_count")),
			UptoMonthAmount:   nums.parse("upto_month_amount", field(row, "upto_month_amount")),
			DuringMonthCount:  nums.parse("during_month_count", field(row, "during_month_count")),
			DuringMonthAmount: nums.parse("during_month_amount", field(row, "during_month_amount")),
			RowIndex:          i,
			RowJSON:           js,
			UpdatedAt:         now,
		}
		if nums.err != nil {
			return fmt.Errorf("%s row %d: %w", table, i, nums.err)
		}
		if _, err := tx.NamedExecContext(ctx, query, &tr); err != nil {
			return fmt.Errorf("upsert %s: %w", table, err)
		}
	}
	return nil
}

func upsertJewel(ctx context.Context, tx *sqlx.Tx, r report.Report, sds, date string, now time.Time) error {
	query := `INSERT INTO jewel_data (
		sds_code, report_date, client_name,
		loan_count, gross_weight, net_weight, outstanding_amount,
		row_json, updated_at
	) VALUES (
		:sds_code, :report_date, :client_name,
		:loan_count, :gross_weight, :net_weight, :outstanding_amount,
		:row_json, :updated_at
	)
	ON CONFLICT (sds_code, report_date) DO UPDATE SET
		client_name = EXCLUDED.client_name,
		loan_count = EXCLUDED.loan_count,
		gross_weight = EXCLUDED.gross_weight,
		net_weight = EXCLUDED.net_weight,
		outstanding_amount = EXCLUDED.outstanding_amount,
		row_json = EXCLUDED.row_json,
		updated_at = EXCLUDED.updated_at`

	for i, row := range r.Jewel.Rows {
		js, err := rowJSON(report.InColumnOrder(row, r.Jewel.Columns))
		if err != nil {
			return err
		}
		var nums numbers
		j := jewelRow{
			SdsCode:           sds,
			ReportDate:        date,
			ClientName:        r.ClientName,
			LoanCount:         nums.parse("loan_count", field(row, "loan_count")),
			GrossWeight:       nums.parse("gross_weight", field(row, "gross_weight")),
			NetWeight:         nums.parse("net_weight", field(row, "net_weight")),
			OutstandingAmount: nums.parse("outstanding_amount", field(row, "outstanding_amount")),
			RowJSON:           js,
			UpdatedAt:         now,
		}
		if nums.err != nil {
			return fmt.Errorf("jewel_data row %d: %w", i, nums.err)
		}
		if _, err := tx.NamedExecContext(ctx, query, &j); err != nil {
			return fmt.Errorf("upsert jewel_data: %w", err)
		}
	}
	return nil
}

func upsertSingletons(ctx context.Context, tx *sqlx.Tx, r report.Report, sds, date string, now time.Time) error {
	if !r.Employee.IsZero() {
		e := r.Employee
		js, err := rowJSON(e)
		if err != nil {
			return err
		}
		var nums numbers
		row := employeeRow{
			SdsCode: sds, ReportDate: date, ClientName: r.ClientName,
			Permanent:     nums.parse("permanent", e.Permanent),
			Temporary:     nums.parse("temporary", e.Temporary),
			Contract:      nums.parse("contract", e.Contract),
			Vacancies:     nums.parse("vacancies", e.Vacancies),
			MonthlySalary: nums.parse("monthly_salary", e.MonthlySalary),
			RowJSON:       js,
			UpdatedAt:     now,
		}
		query := `INSERT INTO employee_data (
			sds_code, report_date, client_name,
			permanent, temporary, contract, vacancies, monthly_salary,
			row_json, updated_at
		) VALUES (
			:sds_code, :report_date, :client_name,
			:permanent, :temporary, :contract, :vacancies, :monthly_salary,
			:row_json, :updated_at
		)
		ON CONFLICT (sds_code, report_date) DO UPDATE SET
			client_name = EXCLUDED.client_name,
			permanent = EXCLUDED.permanent,
			temporary = EXCLUDED.temporary,
			contract = EXCLUDED.contract,
			vacancies = EXCLUDED.vacancies,
			monthly_salary = EXCLUDED.monthly_salary,
			row_json = EXCLUDED.row_json,
			updated_at = EXCLUDED.updated_at`
		if nums.err != nil {
			return fmt.Errorf("employee_data: %w", nums.err)
		}
		if _, err := tx.NamedExecContext(ctx, query, &row); err != nil {
			return fmt.Errorf("upsert employee_data: %w", err)
		}
	}

	if !r.NPA.IsZero() {
		n := r.NPA
		js, err := rowJSON(n)
		if err != nil {
			return err
		}
		var nums numbers
		row := npaRow{
			SdsCode: sds, ReportDate: date, ClientName: r.ClientName,
			TotalLoanOutstanding:   nums.parse("total_loan_outstanding", n.TotalLoanOutstanding),
			GrossNPACount:          nums.parse("gross_npa_count", n.GrossNPA.Count),
			GrossNPAAmount:         nums.parse("gross_npa_amount", n.GrossNPA.Amount),
			SubStandardCount:       nums.parse("sub_standard_count", n.SubStandard.Count),
			SubStandardAmount:      nums.parse("sub_standard_amount", n.SubStandard.Amount),
			DoubtfulCount:          nums.parse("doubtful_count", n.Doubtful.Count),
			DoubtfulAmount:         nums.parse("doubtful_amount", n.Doubtful.Amount),
			LossCount:              nums.parse("loss_count", n.Loss.Count),
			LossAmount:             nums.parse("loss_amount", n.Loss.Amount),
			RecoveredInMonthCount:  nums.parse("recovered_in_month_count", n.RecoveredInMonth.Count),
			RecoveredInMonthAmount: nums.parse("recovered_in_month_amount", n.RecoveredInMonth.Amount),
			Provision:              nums.parse("provision", n.Provision),
			RowJSON:                js,
			UpdatedAt:              now,
		}
		query := `INSERT INTO npa_data (
			sds_code, report_date, client_name, total_loan_outstanding,
			gross_npa_count, gross_npa_amount, sub_standard_count, sub_standard_amount,
			doubtful_count, doubtful_amount, loss_count, loss_amount,
			recovered_in_month_count, recovered_in_month_amount, provision,
			row_json, updated_at
		) VALUES (
			:sds_code, :report_date, :client_name, :total_loan_outstanding,
			:gross_npa_count, :gross_npa_amount, :sub_standard_count, :sub_standard_amount,
			:doubtful_count, :doubtful_amount, :loss_count, :loss_amount,
			:recovered_in_month_count, :recovered_in_month_amount, :provision,
			:row_json, :updated_at
		)
		ON CONFLICT (sds_code, report_date) DO UPDATE SET
			client_name = EXCLUDED.client_name,
			total_loan_outstanding = EXCLUDED.total_loan_outstanding,
			gross_npa_count = EXCLUDED.gross_npa_count,
			gross_npa_amount = EXCLUDED.gross_npa_amount,
			sub_standard_count = EXCLUDED.sub_standard_count,
			sub_standard_amount = EXCLUDED.sub_standard_amount,
			doubtful_count = EXCLUDED.doubtful_count,
			doubtful_amount = EXCLUDED.doubtful_amount,
			loss_count = EXCLUDED.loss_count,
			loss_amount = EXCLUDED.loss_amount,
			recovered_in_month_count = EXCLUDED.recovered_in_month_count,
			recovered_in_month_amount = EXCLUDED.recovered_in_month_amount,
			provision = EXCLUDED.provision,
			row_json = EXCLUDED.row_json,
			updated_at = EXCLUDED.updated_at`
		if nums.err != nil {
			return fmt.Errorf("npa_data: %w", nums.err)
		}
		if _, err := tx.NamedExecContext(ctx, query, &row); err != nil {
			return fmt.Errorf("upsert npa_data: %w", err)
		}
	}

	if !r.Profit.IsZero() {
		p := r.Profit
		js, err := rowJSON(p)
		if err != nil {
			return err
		}
		var nums numbers
		row := profitRow{
			SdsCode: sds, ReportDate: date, ClientName: r.ClientName,
			FinancialYear:     nullString(p.FinancialYear),
			NetProfit:         nums.parse("net_profit", p.NetProfit),
			NetLoss:           nums.parse("net_loss", p.NetLoss),
			AccumulatedProfit: nums.parse("accumulated_profit", p.AccumulatedProfit),
			AccumulatedLoss:   nums.parse("accumulated_loss", p.AccumulatedLoss),
			Audited:           YesNo(p.Audited),
			RowJSON:           js,
			UpdatedAt:         now,
		}
		query := `INSERT INTO profit_data (
			sds_code, report_date, client_name, financial_year,
			net_profit, net_loss, accumulated_profit, accumulated_loss, audited,
			row_json, updated_at
		) VALUES (
			:sds_code, :report_date, :client_name, :financial_year,
			:net_profit, :net_loss, :accumulated_profit, :accumulated_loss, :audited,
			:row_json, :updated_at
		)
		ON CONFLICT (sds_code, report_date) DO UPDATE SET
			client_name = EXCLUDED.client_name,
			financial_year = EXCLUDED.financial_year,
			net_profit = EXCLUDED.net_profit,
			net_loss = EXCLUDED.net_loss,
			accumulated_profit = EXCLUDED.accumulated_profit,
			accumulated_loss = EXCLUDED.accumulated_loss,
			audited = EXCLUDED.audited,
			row_json = EXCLUDED.row_json,
			updated_at = EXCLUDED.updated_at`
		if nums.err != nil {
			return fmt.Errorf("profit_data: %w", nums.err)
		}
		if _, err := tx.NamedExecContext(ctx, query, &row); err != nil {
			return fmt.Errorf("upsert profit_data: %w", err)
		}
	}

	if !r.Safety.IsZero() {
		s := r.Safety
		js, err := rowJSON(s)
		if err != nil {
			return err
		}
		row := safetyRow{
			SdsCode: sds, ReportDate: date, ClientName: r.ClientName,
			StrongRoom:       YesNo(s.StrongRoom),
			Locker:           YesNo(s.Locker),
			CCTV:             YesNo(s.CCTV),
			BurglarAlarm:     YesNo(s.BurglarAlarm),
			FireExtinguisher: YesNo(s.FireExtinguisher),
			SecurityGuard:    YesNo(s.SecurityGuard),
			Insurance:        YesNo(s.Insurance),
			InsuranceExpiry:  nullString(report.NormalizeDate(s.InsuranceExpiry)),
			RowJSON:          js,
			UpdatedAt:        now,
		}
		query := `INSERT INTO safety_data (
			sds_code, report_date, client_name,
			strong_room, locker, cctv, burglar_alarm, fire_extinguisher,
			security_guard, insurance, insurance_expiry,
			row_json, updated_at
		) VALUES (
			:sds_code, :report_date, :client_name,
			:strong_room, :locker, :cctv, :burglar_alarm, :fire_extinguisher,
			:security_guard, :insurance, :insurance_expiry,
			:row_json, :updated_at
		)
		ON CONFLICT (sds_code, report_date) DO UPDATE SET
			client_name = EXCLUDED.client_name,
			strong_room = EXCLUDED.strong_room,
			locker = EXCLUDED.locker,
			cctv = EXCLUDED.cctv,
			burglar_alarm = EXCLUDED.burglar_alarm,
			fire_extinguisher = EXCLUDED.fire_extinguisher,
			security_guard = EXCLUDED.security_guard,
			insurance = EXCLUDED.insurance,
			insurance_expiry = EXCLUDED.insurance_expiry,
			row_json = EXCLUDED.row_json,
			updated_at = EXCLUDED.updated_at`
		if _, err := tx.NamedExecContext(ctx, query, &row); err != nil {
			return fmt.Errorf("upsert safety_data: %w", err)
		}
	}
	return nil
}

// Get reads a report back. Exact mode needs a submission on exactly this
// date; latest mode takes the most recent submission at or before it.
func (rs *ReportStore) Get(ctx context.Context, clientName, date, mode string) (report.Report, error) {
	date = report.NormalizeDate(date)
	query := `SELECT sds_code, report_date FROM report_insert_log
		WHERE client_name = ? AND report_date = ?
		ORDER BY created_at DESC LIMIT 1`
	if mode == LookupLatest {
		query = `SELECT sds_code, report_date FROM report_insert_log
			WHERE client_name = ? AND report_date <= ?
			ORDER BY report_date DESC, created_at DESC LIMIT 1`
	}
	var found struct {
		SdsCode    string `db:"sds_code"`
		ReportDate string `db:"report_date"`
	}
	err := rs.db.GetContext(ctx, &found, rs.db.Rebind(query), clientName, date)
	if errors.Is(err, sql.ErrNoRows) {
		return report.Report{}, ErrReportNotFound
	}
	if err != nil {
		return report.Report{}, err
	}

	r := report.Report{ClientName: clientName, Date: found.ReportDate}
	sds, day := found.SdsCode, found.ReportDate

	branch, err := rs.selectRows(ctx, `SELECT row_json FROM branch_data WHERE sds_code = ?`, sds)
	if err != nil {
		return report.Report{}, err
	}
	r.Branch = report.TableFromRows(branch)

	for _, t := range []struct {
		section report.Section
		table   string
	}{
		{report.SectionMember, "member_data"},
		{report.SectionDeposit, "deposit_data"},
		{report.SectionLoan, "loan_data"},
	} {
		rows, err := rs.selectRows(ctx, fmt.Sprintf(`SELECT row_json FROM %s WHERE sds_code = ? AND report_date = ? ORDER BY row_index`, t.table), sds, day)
		if err != nil {
			return report.Report{}, err
		}
		r.SetTable(t.section, report.TableFromRows(rows))
	}

	jewel, err := rs.selectRows(ctx, `SELECT row_json FROM jewel_data WHERE sds_code = ? AND report_date = ?`, sds, day)
	if err != nil {
		return report.Report{}, err
	}
	r.Jewel = report.TableFromRows(jewel)

	singletons := []struct {
		table string
		dst   any
	}{
		{"employee_data", &r.Employee},
		{"npa_data", &r.NPA},
		{"profit_data", &r.Profit},
		{"safety_data", &r.Safety},
	}
	for _, s := range singletons {
		var js string
		err := rs.db.GetContext(ctx, &js, rs.db.Rebind(fmt.Sprintf(`SELECT row_json FROM %s WHERE sds_code = ? AND report_date = ?`, s.table)), sds, day)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return report.Report{}, err
		}
		if err := json.Unmarshal([]byte(js), s.dst); err != nil {
			return report.Report{}, fmt.Errorf("decode %s: %w", s.table, err)
		}
	}
	return r, nil
}

func (rs *ReportStore) selectRows(ctx context.Context, query string, args ...any) ([]*ordered.Map, error) {
	var raw []string
	if err := rs.db.SelectContext(ctx, &raw, rs.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	rows := make([]*ordered.Map, 0, len(raw))
	for _, js := range raw {
		m := ordered.New()
		if err := json.Unmarshal([]byte(js), m); err != nil {
			return nil, err
		}
		rows = append(rows, m)
	}
	return rows, nil
}
