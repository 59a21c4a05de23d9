// Package report holds the report aggregate: five tabular sections, four
// singleton sections and the client/date identity they are filed under.
package report

import (
	"errors"
	"strings"

	"github.com/farxc/rcs-reporting/internal/ordered"
)

var ErrMissingIdentity = errors.New("client name and report date are required")

// Section names a part of a report. The names double as the payload keys
// of the local persistence API (employee travels as "emp").
type Section string

const (
	SectionBranch   Section = "branch"
	SectionMember   Section = "member"
	SectionDeposit  Section = "deposit"
	SectionLoan     Section = "loan"
	SectionJewel    Section = "jewel"
	SectionEmployee Section = "employee"
	SectionNPA      Section = "npa"
	SectionProfit   Section = "profit"
	SectionSafety   Section = "safety"
)

// Sections lists all nine sections in submission order.
var Sections = []Section{
	SectionBranch, SectionMember, SectionDeposit, SectionLoan, SectionJewel,
	SectionEmployee, SectionNPA, SectionProfit, SectionSafety,
}

// Table is a tabular section: rows plus the order their columns are shown in.
type Table struct {
	Columns []string       `json:"columns"`
	Rows    []*ordered.Map `json:"rows"`
}

// TableFromRows takes the column order from the first row.
func TableFromRows(rows []*ordered.Map) Table {
	t := Table{Rows: rows}
	if len(rows) > 0 {
		t.Columns = rows[0].Keys()
	}
	return t
}

func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

func (t Table) Clone() Table {
	out := Table{Columns: append([]string(nil), t.Columns...)}
	if t.Rows != nil {
		out.Rows = make([]*ordered.Map, len(t.Rows))
		for i, r := range t.Rows {
			out.Rows[i] = r.Clone()
		}
	}
	return out
}

type Report struct {
	ClientName string
	Date       string

	Branch  Table
	Member  Table
	Deposit Table
	Loan    Table
	Jewel   Table

	NPA      NPA
	Profit   Profit
	Employee Employee
	Safety   Safety
}

// Key is the document-store key of a report.
func Key(clientName, date string) string {
	return clientName + "_" + date
}

func (r Report) Key() string {
	return Key(r.ClientName, r.Date)
}

func (r Report) RequireIdentity() error {
	if strings.TrimSpace(r.ClientName) == "" || strings.TrimSpace(r.Date) == "" {
		return ErrMissingIdentity
	}
	return nil
}

func (r Report) Clone() Report {
	out := r
	out.Branch = r.Branch.Clone()
	out.Member = r.Member.Clone()
	out.Deposit = r.Deposit.Clone()
	out.Loan = r.Loan.Clone()
	out.Jewel = r.Jewel.Clone()
	return out
}

// Table returns the tabular section by name.
func (r Report) Table(s Section) (Table, bool) {
	switch s {
	case SectionBranch:
		return r.Branch, true
	case SectionMember:
		return r.Member, true
	case SectionDeposit:
		return r.Deposit, true
	case SectionLoan:
		return r.Loan, true
	case SectionJewel:
		return r.Jewel, true
	}
	return Table{}, false
}

// SetTable replaces a tabular section; other sections are ignored.
func (r *Report) SetTable(s Section, t Table) {
	switch s {
	case SectionBranch:
		r.Branch = t
	case SectionMember:
		r.Member = t
	case SectionDeposit:
		r.Deposit = t
	case SectionLoan:
		r.Loan = t
	case SectionJewel:
		r.Jewel = t
	}
}

// NonEmpty reports which sections carry data.
func (r Report) NonEmpty() map[Section]bool {
	return map[Section]bool{
		SectionBranch:   !r.Branch.Empty(),
		SectionMember:   !r.Member.Empty(),
		SectionDeposit:  !r.Deposit.Empty(),
		SectionLoan:     !r.Loan.Empty(),
		SectionJewel:    !r.Jewel.Empty(),
		SectionEmployee: !r.Employee.IsZero(),
		SectionNPA:      !r.NPA.IsZero(),
		SectionProfit:   !r.Profit.IsZero(),
		SectionSafety:   !r.Safety.IsZero(),
	}
}

// IsZero reports whether no section holds data.
func (r Report) IsZero() bool {
	for _, ok := range r.NonEmpty() {
		if ok {
			return false
		}
	}
	return true
}

// DeriveIdentity returns the report date and sds code recorded in the
// report itself. The singleton sections are consulted in the order NPA,
// Profit, Employee; the sds code falls back to the first branch row.
func (r Report) DeriveIdentity() (date, sdsCode string) {
	for _, d := range []string{r.NPA.Date, r.Profit.Date, r.Employee.Date} {
		if d != "" {
			date = NormalizeDate(d)
			break
		}
	}
	for _, s := range []string{r.NPA.SdsCode, r.Profit.SdsCode, r.Employee.SdsCode} {
		if s != "" {
			sdsCode = s
			break
		}
	}
	if sdsCode == "" {
		sdsCode = BranchSdsCode(r.Branch)
	}
	return date, sdsCode
}

var sdsCodeFields = []string{"sdscode", "SDSCODE", "sdsCode"}

// BranchSdsCode reads the sds code from the first branch row.
func BranchSdsCode(branch Table) string {
	if len(branch.Rows) == 0 {
		return ""
	}
	row := branch.Rows[0]
	for _, f := range sdsCodeFields {
		if v := row.String(f); v != "" {
			return v
		}
	}
	return ""
}
