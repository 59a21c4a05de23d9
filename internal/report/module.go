package report

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/farxc/rcs-reporting/internal/ordered"
)

// ModuleField is the row field the combined deposit query tags rows with.
const ModuleField = "modules"

var ErrUnknownModule = errors.New("unknown module tag")

// Module is the kind of a row returned by the combined member/deposit/loan
// query.
type Module int

const (
	ModuleMembers Module = iota + 1
	ModuleDeposits
	ModuleLoans
)

func (m Module) String() string {
	switch m {
	case ModuleMembers:
		return "Members"
	case ModuleDeposits:
		return "Deposits"
	case ModuleLoans:
		return "Loans"
	}
	return fmt.Sprintf("Module(%d)", int(m))
}

// Section is the report section rows of this module belong to.
func (m Module) Section() Section {
	switch m {
	case ModuleMembers:
		return SectionMember
	case ModuleDeposits:
		return SectionDeposit
	case ModuleLoans:
		return SectionLoan
	}
	return ""
}

// foldTag builds a fresh Caser per call; Casers are not safe for
// concurrent use.
func foldTag(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

var moduleTags = map[string]Module{
	foldTag("Members"):  ModuleMembers,
	foldTag("Deposits"): ModuleDeposits,
	foldTag("Loans"):    ModuleLoans,
}

// ParseModule matches a module tag case-insensitively.
func ParseModule(tag string) (Module, error) {
	if m, ok := moduleTags[foldTag(tag)]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownModule, tag)
}

// TaggedRow is a row of the combined query together with its parsed module.
type TaggedRow struct {
	Module Module
	Row    *ordered.Map
}

// Tag parses the module of every row. A row with a missing or unknown tag
// is an error rather than being dropped.
func Tag(rows []*ordered.Map) ([]TaggedRow, error) {
	out := make([]TaggedRow, 0, len(rows))
	for i, row := range rows {
		m, err := ParseModule(row.String(ModuleField))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, TaggedRow{Module: m, Row: row})
	}
	return out, nil
}

// Partitioned holds the three sections of the combined query.
type Partitioned struct {
	Member  Table
	Deposit Table
	Loan    Table
}

// Partition splits the combined query result by module. Every section
// keeps the column order of the combined result.
func Partition(t Table) (Partitioned, error) {
	tagged, err := Tag(t.Rows)
	if err != nil {
		return Partitioned{}, err
	}
	p := Partitioned{
		Member:  Table{Columns: append([]string(nil), t.Columns...), Rows: []*ordered.Map{}},
		Deposit: Table{Columns: append([]string(nil), t.Columns...), Rows: []*ordered.Map{}},
		Loan:    Table{Columns: append([]string(nil), t.Columns...), Rows: []*ordered.Map{}},
	}
	for _, tr := range tagged {
		switch tr.Module {
		case ModuleMembers:
			p.Member.Rows = append(p.Member.Rows, tr.Row)
		case ModuleDeposits:
			p.Deposit.Rows = append(p.Deposit.Rows, tr.Row)
		case ModuleLoans:
			p.Loan.Rows = append(p.Loan.Rows, tr.Row)
		}
	}
	return p, nil
}
