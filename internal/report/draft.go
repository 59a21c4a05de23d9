package report

import "sync"

// Draft is the working copy of a report being built or edited. All methods
// are safe for concurrent use.
type Draft struct {
	mu         sync.Mutex
	report     Report
	progress   string
	onProgress func(string)
}

func NewDraft() *Draft {
	return &Draft{}
}

// OnProgress registers a callback for progress messages.
func (d *Draft) OnProgress(fn func(string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onProgress = fn
}

func (d *Draft) SetProgress(msg string) {
	d.mu.Lock()
	d.progress = msg
	fn := d.onProgress
	d.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (d *Draft) Progress() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.progress
}

// Report returns a copy of the current state.
func (d *Draft) Report() Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.report.Clone()
}

// Load replaces the whole working report.
func (d *Draft) Load(r Report) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report = r.Clone()
}

func (d *Draft) SetIdentity(clientName, date string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report.ClientName = clientName
	d.report.Date = date
}

func (d *Draft) SetTable(s Section, t Table) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report.SetTable(s, t.Clone())
}

func (d *Draft) UpdateNPA(p NPAPatch) NPA {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report.NPA = d.report.NPA.Apply(p)
	return d.report.NPA
}

func (d *Draft) UpdateProfit(p ProfitPatch) Profit {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report.Profit = d.report.Profit.Apply(p)
	return d.report.Profit
}

func (d *Draft) UpdateEmployee(p EmployeePatch) Employee {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report.Employee = d.report.Employee.Apply(p)
	return d.report.Employee
}

func (d *Draft) UpdateSafety(p SafetyPatch) Safety {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report.Safety = d.report.Safety.Apply(p)
	return d.report.Safety
}

// Reset clears all nine sections. The client and date stay selected.
func (d *Draft) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.report = Report{ClientName: d.report.ClientName, Date: d.report.Date}
}
