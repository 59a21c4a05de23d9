package report

import (
	"time"

	"github.com/farxc/rcs-reporting/internal/ordered"
)

const dateLayout = "2006-01-02"

// Payload is the wire form of a report used by the local persistence API.
type Payload struct {
	ClientName string         `json:"clientName"`
	FromDate   string         `json:"fromDate"`
	Branch     []*ordered.Map `json:"branch"`
	Member     []*ordered.Map `json:"member"`
	Deposit    []*ordered.Map `json:"deposit"`
	Loan       []*ordered.Map `json:"loan"`
	Jewel      []*ordered.Map `json:"jewel"`
	Emp        Employee       `json:"emp"`
	NPA        NPA            `json:"npa"`
	Profit     Profit         `json:"profit"`
	Safety     Safety         `json:"safety"`
}

// Payload renders the report for the wire. Row keys are rewritten in the
// table's column order so the receiver can recover it from the first row.
func (r Report) Payload() Payload {
	return Payload{
		ClientName: r.ClientName,
		FromDate:   r.Date,
		Branch:     wireRows(r.Branch),
		Member:     wireRows(r.Member),
		Deposit:    wireRows(r.Deposit),
		Loan:       wireRows(r.Loan),
		Jewel:      wireRows(r.Jewel),
		Emp:        r.Employee,
		NPA:        r.NPA,
		Profit:     r.Profit,
		Safety:     r.Safety,
	}
}

// FromPayload rebuilds a report from its wire form. Column order is taken
// from the first row of each section and date values are cut to YYYY-MM-DD.
func FromPayload(p Payload) Report {
	return Report{
		ClientName: p.ClientName,
		Date:       NormalizeDate(p.FromDate),
		Branch:     TableFromRows(normalizeRows(p.Branch)),
		Member:     TableFromRows(normalizeRows(p.Member)),
		Deposit:    TableFromRows(normalizeRows(p.Deposit)),
		Loan:       TableFromRows(normalizeRows(p.Loan)),
		Jewel:      TableFromRows(normalizeRows(p.Jewel)),
		Employee:   p.Emp,
		NPA:        p.NPA,
		Profit:     p.Profit,
		Safety:     p.Safety,
	}
}

func wireRows(t Table) []*ordered.Map {
	out := make([]*ordered.Map, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, InColumnOrder(row, t.Columns))
	}
	return out
}

// InColumnOrder copies row with the given columns first, then any remaining
// keys in their existing order.
func InColumnOrder(row *ordered.Map, columns []string) *ordered.Map {
	out := ordered.New()
	for _, c := range columns {
		if v, ok := row.Get(c); ok {
			out.Set(c, ordered.CloneValue(v))
		}
	}
	row.Range(func(k string, v any) bool {
		if !out.Has(k) {
			out.Set(k, ordered.CloneValue(v))
		}
		return true
	})
	return out
}

func normalizeRows(rows []*ordered.Map) []*ordered.Map {
	out := make([]*ordered.Map, 0, len(rows))
	for _, row := range rows {
		if row == nil {
			continue
		}
		out = append(out, NormalizeRow(row))
	}
	return out
}

// NormalizeRow returns a copy of row with date and date-time values reduced
// to a bare date.
func NormalizeRow(row *ordered.Map) *ordered.Map {
	out := ordered.New()
	row.Range(func(k string, v any) bool {
		switch val := v.(type) {
		case time.Time:
			out.Set(k, val.Format(dateLayout))
		case string:
			if isDateTime(val) {
				out.Set(k, val[:len(dateLayout)])
			} else {
				out.Set(k, val)
			}
		default:
			out.Set(k, ordered.CloneValue(v))
		}
		return true
	})
	return out
}

// NormalizeDate cuts a date or date-time string to YYYY-MM-DD. Other
// values are returned unchanged.
func NormalizeDate(s string) string {
	if isDateTime(s) {
		return s[:len(dateLayout)]
	}
	return s
}

func isDateTime(s string) bool {
	n := len(dateLayout)
	if len(s) < n {
		return false
	}
	if _, err := time.Parse(dateLayout, s[:n]); err != nil {
		return false
	}
	return len(s) == n || s[n] == 'T' || s[n] == ' '
}
