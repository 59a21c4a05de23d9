package store

import (
	"database/sql"
	"time"
)

// Submission types recorded in report_insert_log.
const (
	SubmissionFirst    = "FIRST"
	SubmissionResubmit = "RESUBMIT"
)

// Push outcomes recorded in push_log.
const (
	PushSuccess = "SUCCESS"
	PushFailed  = "FAILED"
	PushDryRun  = "DRY_RUN"
)

// Sources of a push.
const (
	SourceLocal = "local"
	SourceRCS   = "rcs"
)

// SubmissionLogEntry represents the 'report_insert_log' table.
type SubmissionLogEntry struct {
	ID             string    `db:"id" json:"id"`
	ClientName     string    `db:"client_name" json:"client_name"`
	SdsCode        string    `db:"sds_code" json:"sds_code"`
	ReportDate     string    `db:"report_date" json:"report_date"`
	HasBranch      bool      `db:"has_branch" json:"has_branch"`
	HasMember      bool      `db:"has_member" json:"has_member"`
	HasDeposit     bool      `db:"has_deposit" json:"has_deposit"`
	HasLoan        bool      `db:"has_loan" json:"has_loan"`
	HasJewel       bool      `db:"has_jewel" json:"has_jewel"`
	HasEmployee    bool      `db:"has_employee" json:"has_employee"`
	HasNPA         bool      `db:"has_npa" json:"has_npa"`
	HasProfit      bool      `db:"has_profit" json:"has_profit"`
	HasSafety      bool      `db:"has_safety" json:"has_safety"`
	SubmissionType string    `db:"submission_type" json:"submission_type"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// PushLogEntry represents the 'push_log' table. One row per source,
// client, date and module holds the latest attempt only.
type PushLogEntry struct {
	Source     string         `db:"source" json:"source"`
	ClientName string         `db:"client_name" json:"client_name"`
	FromDate   string         `db:"from_date" json:"from_date"`
	Module     string         `db:"module" json:"module"`
	Status     string         `db:"status" json:"status"`
	Response   sql.NullString `db:"response" json:"-"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

type PushLogFilter struct {
	Source     string
	ClientName string
	FromDate   string
}

// tabularRow is one row of member_data, deposit_data or loan_data.
type tabularRow struct {
	SdsCode           string          `db:"sds_code"`
	ReportDate        string          `db:"report_date"`
	SchemeCode        string          `db:"scheme_code"`
	ClientName        string          `db:"client_name"`
	Module            sql.NullString  `db:"module"`
	UptoMonthCount    sql.NullFloat64 `db:"upto_month_count"`
	UptoMonthAmount   sql.NullFloat64 `db:"upto_month_amount"`
	DuringMonthCount  sql.NullFloat64 `db:"during_month_count"`
	DuringMonthAmount sql.NullFloat64 `db:"during_month_amount"`
	RowIndex          int             `db:"row_index"`
	RowJSON           string          `db:"row_json"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

type branchRow struct {
	SdsCode    string         `db:"sds_code"`
	ClientName string         `db:"client_name"`
	BranchName sql.NullString `db:"branch_name"`
	RowJSON    string         `db:"row_json"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

type jewelRow struct {
	SdsCode           string          `db:"sds_code"`
	ReportDate        string          `db:"report_date"`
	ClientName        string          `db:"client_name"`
	LoanCount         sql.NullFloat64 `db:"loan_count"`
	GrossWeight       sql.NullFloat64 `db:"gross_weight"`
	NetWeight         sql.NullFloat64 `db:"net_weight"`
	OutstandingAmount sql.NullFloat64 `db:"outstanding_amount"`
	RowJSON           string          `db:"row_json"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

type employeeRow struct {
	SdsCode       string          `db:"sds_code"`
	ReportDate    string          `db:"report_date"`
	ClientName    string          `db:"client_name"`
	Permanent     sql.NullFloat64 `db:"permanent"`
	Temporary     sql.NullFloat64 `db:"temporary"`
	Contract      sql.NullFloat64 `db:"contract"`
	Vacancies     sql.NullFloat64 `db:"vacancies"`
	MonthlySalary sql.NullFloat64 `db:"monthly_salary"`
	RowJSON       string          `db:"row_json"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

type npaRow struct {
	SdsCode                string          `db:"sds_code"`
	ReportDate             string          `db:"report_date"`
	ClientName             string          `db:"client_name"`
	TotalLoanOutstanding   sql.NullFloat64 `db:"total_loan_outstanding"`
	GrossNPACount          sql.NullFloat64 `db:"gross_npa_count"`
	GrossNPAAmount         sql.NullFloat64 `db:"gross_npa_amount"`
	SubStandardCount       sql.NullFloat64 `db:"sub_standard_count"`
	SubStandardAmount      sql.NullFloat64 `db:"sub_standard_amount"`
	DoubtfulCount          sql.NullFloat64 `db:"doubtful_count"`
	DoubtfulAmount         sql.NullFloat64 `db:"doubtful_amount"`
	LossCount              sql.NullFloat64 `db:"loss_count"`
	LossAmount             sql.NullFloat64 `db:"loss_amount"`
	RecoveredInMonthCount  sql.NullFloat64 `db:"recovered_in_month_count"`
	RecoveredInMonthAmount sql.NullFloat64 `db:"recovered_in_month_amount"`
	Provision              sql.NullFloat64 `db:"provision"`
	RowJSON                string          `db:"row_json"`
	UpdatedAt              time.Time       `db:"updated_at"`
}

type profitRow struct {
	SdsCode           string          `db:"sds_code"`
	ReportDate        string          `db:"report_date"`
	ClientName        string          `db:"client_name"`
	FinancialYear     sql.NullString  `db:"financial_year"`
	NetProfit         sql.NullFloat64 `db:"net_profit"`
	NetLoss           sql.NullFloat64 `db:"net_loss"`
	AccumulatedProfit sql.NullFloat64 `db:"accumulated_profit"`
	AccumulatedLoss   sql.NullFloat64 `db:"accumulated_loss"`
	Audited           sql.NullBool    `db:"audited"`
	RowJSON           string          `db:"row_json"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

type safetyRow struct {
	SdsCode          string         `db:"sds_code"`
	ReportDate       string         `db:"report_date"`
	ClientName       string         `db:"client_name"`
	StrongRoom       sql.NullBool   `db:"strong_room"`
	Locker           sql.NullBool   `db:"locker"`
	CCTV             sql.NullBool   `db:"cctv"`
	BurglarAlarm     sql.NullBool   `db:"burglar_alarm"`
	FireExtinguisher sql.NullBool   `db:"fire_extinguisher"`
	SecurityGuard    sql.NullBool   `db:"security_guard"`
	Insurance        sql.NullBool   `db:"insurance"`
	InsuranceExpiry  sql.NullString `db:"insurance_expiry"`
	RowJSON          string         `db:"row_json"`
	UpdatedAt        time.Time      `db:"updated_at"`
}
