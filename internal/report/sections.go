package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Numeric is a numeric form field kept as entered. The empty value means
// the field was left blank. It decodes from a JSON number, string or null.
type Numeric string

func (n *Numeric) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*n = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = Numeric(strings.TrimSpace(s))
	default:
		var num json.Number
		if err := json.Unmarshal(b, &num); err != nil {
			return fmt.Errorf("numeric field: %w", err)
		}
		*n = Numeric(num.String())
	}
	return nil
}

// Float parses the value; blank or malformed values give ok=false.
func (n Numeric) Float() (float64, bool) {
	if n == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(n), 64)
	return f, err == nil
}

type CountAmount struct {
	Count  Numeric `json:"count"`
	Amount Numeric `json:"amount"`
}

func (c CountAmount) IsZero() bool {
	return c.Count == "" && c.Amount == ""
}

// CountAmountPatch sets the non-nil halves of a CountAmount.
type CountAmountPatch struct {
	Count  *Numeric
	Amount *Numeric
}

func (c CountAmount) Apply(p CountAmountPatch) CountAmount {
	if p.Count != nil {
		c.Count = *p.Count
	}
	if p.Amount != nil {
		c.Amount = *p.Amount
	}
	return c
}

type NPA struct {
	Date                 string      `json:"date"`
	SdsCode              string      `json:"sds_code"`
	TotalLoanOutstanding Numeric     `json:"total_loan_outstanding"`
	GrossNPA             CountAmount `json:"gross_npa"`
	SubStandard          CountAmount `json:"sub_standard"`
	Doubtful             CountAmount `json:"doubtful"`
	Loss                 CountAmount `json:"loss"`
	RecoveredInMonth     CountAmount `json:"recovered_in_month"`
	Provision            Numeric     `json:"provision"`
}

func (n NPA) IsZero() bool {
	return n == NPA{}
}

// NPAPatch sets the non-nil fields of an NPA section.
type NPAPatch struct {
	Date                 *string
	SdsCode              *string
	TotalLoanOutstanding *Numeric
	GrossNPA             *CountAmountPatch
	SubStandard          *CountAmountPatch
	Doubtful             *CountAmountPatch
	Loss                 *CountAmountPatch
	RecoveredInMonth     *CountAmountPatch
	Provision            *Numeric
}

func (n NPA) Apply(p NPAPatch) NPA {
	setString(&n.Date, p.Date)
	setString(&n.SdsCode, p.SdsCode)
	setNumeric(&n.TotalLoanOutstanding, p.TotalLoanOutstanding)
	setCountAmount(&n.GrossNPA, p.GrossNPA)
	setCountAmount(&n.SubStandard, p.SubStandard)
	setCountAmount(&n.Doubtful, p.Doubtful)
	setCountAmount(&n.Loss, p.Loss)
	setCountAmount(&n.RecoveredInMonth, p.RecoveredInMonth)
	setNumeric(&n.Provision, p.Provision)
	return n
}

type Profit struct {
	Date              string  `json:"date"`
	SdsCode           string  `json:"sds_code"`
	FinancialYear     string  `json:"financial_year"`
	NetProfit         Numeric `json:"net_profit"`
	NetLoss           Numeric `json:"net_loss"`
	AccumulatedProfit Numeric `json:"accumulated_profit"`
	AccumulatedLoss   Numeric `json:"accumulated_loss"`
	// Audited is "Yes" or "No".
	Audited string `json:"audited"`
}

func (p Profit) IsZero() bool {
	return p == Profit{}
}

type ProfitPatch struct {
	Date              *string
	SdsCode           *string
	FinancialYear     *string
	NetProfit         *Numeric
	NetLoss           *Numeric
	AccumulatedProfit *Numeric
	AccumulatedLoss   *Numeric
	Audited           *string
}

func (p Profit) Apply(u ProfitPatch) Profit {
	setString(&p.Date, u.Date)
	setString(&p.SdsCode, u.SdsCode)
	setString(&p.FinancialYear, u.FinancialYear)
	setNumeric(&p.NetProfit, u.NetProfit)
	setNumeric(&p.NetLoss, u.NetLoss)
	setNumeric(&p.AccumulatedProfit, u.AccumulatedProfit)
	setNumeric(&p.AccumulatedLoss, u.AccumulatedLoss)
	setString(&p.Audited, u.Audited)
	return p
}

type Employee struct {
	Date          string  `json:"date"`
	SdsCode       string  `json:"sds_code"`
	Permanent     Numeric `json:"permanent"`
	Temporary     Numeric `json:"temporary"`
	Contract      Numeric `json:"contract"`
	Vacancies     Numeric `json:"vacancies"`
	MonthlySalary Numeric `json:"monthly_salary"`
}

func (e Employee) IsZero() bool {
	return e == Employee{}
}

type EmployeePatch struct {
	Date          *string
	SdsCode       *string
	Permanent     *Numeric
	Temporary     *Numeric
	Contract      *Numeric
	Vacancies     *Numeric
	MonthlySalary *Numeric
}

func (e Employee) Apply(p EmployeePatch) Employee {
	setString(&e.Date, p.Date)
	setString(&e.SdsCode, p.SdsCode)
	setNumeric(&e.Permanent, p.Permanent)
	setNumeric(&e.Temporary, p.Temporary)
	setNumeric(&e.Contract, p.Contract)
	setNumeric(&e.Vacancies, p.Vacancies)
	setNumeric(&e.MonthlySalary, p.MonthlySalary)
	return e
}

// Safety fields other than the identity and the expiry date hold "Yes" or
// "No".
type Safety struct {
	Date             string `json:"date"`
	SdsCode          string `json:"sds_code"`
	StrongRoom       string `json:"strong_room"`
	Locker           string `json:"locker"`
	CCTV             string `json:"cctv"`
	BurglarAlarm     string `json:"burglar_alarm"`
	FireExtinguisher string `json:"fire_extinguisher"`
	SecurityGuard    string `json:"security_guard"`
	Insurance        string `json:"insurance"`
	InsuranceExpiry  string `json:"insurance_expiry"`
}

func (s Safety) IsZero() bool {
	return s == Safety{}
}

type SafetyPatch struct {
	Date             *string
	SdsCode          *string
	StrongRoom       *string
	Locker           *string
	CCTV             *string
	BurglarAlarm     *string
	FireExtinguisher *string
	SecurityGuard    *string
	Insurance        *string
	InsuranceExpiry  *string
}

func (s Safety) Apply(p SafetyPatch) Safety {
	setString(&s.Date, p.Date)
	setString(&s.SdsCode, p.SdsCode)
	setString(&s.StrongRoom, p.StrongRoom)
	setString(&s.Locker, p.Locker)
	setString(&s.CCTV, p.CCTV)
	setString(&s.BurglarAlarm, p.BurglarAlarm)
	setString(&s.FireExtinguisher, p.FireExtinguisher)
	setString(&s.SecurityGuard, p.SecurityGuard)
	setString(&s.Insurance, p.Insurance)
	setString(&s.InsuranceExpiry, p.InsuranceExpiry)
	return s
}

// Flags returns the yes/no fields keyed by their column name.
func (s Safety) Flags() map[string]string {
	return map[string]string{
		"strong_room":       s.StrongRoom,
		"locker":            s.Locker,
		"cctv":              s.CCTV,
		"burglar_alarm":     s.BurglarAlarm,
		"fire_extinguisher": s.FireExtinguisher,
		"security_guard":    s.SecurityGuard,
		"insurance":         s.Insurance,
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setNumeric(dst *Numeric, v *Numeric) {
	if v != nil {
		*dst = *v
	}
}

func setCountAmount(dst *CountAmount, p *CountAmountPatch) {
	if p != nil {
		*dst = dst.Apply(*p)
	}
}
