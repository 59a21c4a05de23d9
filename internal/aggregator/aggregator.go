// Package aggregator assembles a report for one client and date from stored
// reports and from the results of the predefined queries.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/localapi"
	"github.com/farxc/rcs-reporting/internal/logger"
	"github.com/farxc/rcs-reporting/internal/queries"
	"github.com/farxc/rcs-reporting/internal/rendezvous"
	"github.com/farxc/rcs-reporting/internal/report"
)

const component = "Aggregator"

// State is a step of one build.
type State string

const (
	StateCheckExact         State = "CHECK_EXACT"
	StateLoaded             State = "LOADED"
	StateCheckLatest        State = "CHECK_LATEST"
	StateStaticBranchLoaded State = "STATIC_BRANCH_LOADED"
	StateRunBranchQuery     State = "RUN_BRANCH_QUERY"
	StateRunDateQueries     State = "RUN_DATE_QUERIES"
	StateAssembled          State = "ASSEMBLED"
)

// Names matched against the query catalog.
const (
	BranchQueryName  = "branch"
	DepositQueryName = "deposit"
	JewelQueryName   = "jewel"
)

// DateVariable is the variable the date-scoped queries take.
const DateVariable = "Fromdate"

// Runner executes a predefined query and returns its rows.
type Runner interface {
	Execute(ctx context.Context, clientID, submitterID, queryID string, vars map[string]string, timeout time.Duration) (rendezvous.Results, error)
}

// Reports reads previously submitted reports.
type Reports interface {
	Exact(ctx context.Context, clientName, date string) (report.Report, error)
	Latest(ctx context.Context, clientName string) (report.Report, error)
}

// LocalReports reads reports from the local persistence API.
type LocalReports interface {
	GetReport(ctx context.Context, clientName, date, mode string) (report.Report, error)
}

type Request struct {
	// ClientID is the client the commands run against.
	ClientID string
	// ClientName files the report; it defaults to ClientID.
	ClientName  string
	Date        string
	SubmitterID string
}

func (r Request) clientName() string {
	if r.ClientName != "" {
		return r.ClientName
	}
	return r.ClientID
}

// Outcome describes a finished build.
type Outcome struct {
	Report report.Report
	// ReportDate and SdsCode come from the stored data when a stored report
	// was used, so they may differ from the requested date.
	ReportDate string
	SdsCode    string
	States     []State
	Commands   int
}

type Aggregator struct {
	runner  Runner
	reports Reports
	catalog queries.Lister
	local   LocalReports
	timeout time.Duration
	logger  *logger.Logger
}

type Config struct {
	Runner  Runner
	Reports Reports
	Catalog queries.Lister
	// Local is optional; it enables BuildOffline.
	Local LocalReports
	// Timeout bounds each query. It is required.
	Timeout time.Duration
	Logger  *logger.Logger
}

func New(cfg Config) (*Aggregator, error) {
	if cfg.Timeout <= 0 {
		return nil, rendezvous.ErrTimeoutRequired
	}
	if cfg.Runner == nil || cfg.Reports == nil || cfg.Catalog == nil {
		return nil, errors.New("aggregator: runner, reports and catalog are required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Aggregator{
		runner:  cfg.Runner,
		reports: cfg.Reports,
		catalog: cfg.Catalog,
		local:   cfg.Local,
		timeout: cfg.Timeout,
		logger:  log,
	}, nil
}

type build struct {
	a       *Aggregator
	req     Request
	draft   *report.Draft
	outcome Outcome
}

func (b *build) enter(s State, progress string) {
	b.outcome.States = append(b.outcome.States, s)
	b.draft.SetProgress(progress)
	b.a.logger.Debug(component, "client=%s date=%s state=%s", b.req.clientName(), b.req.Date, s)
}

// Build assembles the report into draft. On failure the draft keeps
// whatever was loaded before the failing step.
func (a *Aggregator) Build(ctx context.Context, req Request, draft *report.Draft) (Outcome, error) {
	if req.clientName() == "" || req.Date == "" {
		return Outcome{}, report.ErrMissingIdentity
	}
	b := &build{a: a, req: req, draft: draft}
	name := req.clientName()

	b.enter(StateCheckExact, "Checking for a saved report")
	stored, err := a.reports.Exact(ctx, name, req.Date)
	switch {
	case err == nil:
		stored.ClientName, stored.Date = name, req.Date
		draft.Load(stored)
		b.outcome.ReportDate, b.outcome.SdsCode = stored.DeriveIdentity()
		b.enter(StateLoaded, "Loaded saved report")
		b.outcome.Report = draft.Report()
		return b.outcome, nil
	case !errors.Is(err, docstore.ErrNotFound):
		return b.fail(fmt.Errorf("exact report lookup: %w", err))
	}

	b.enter(StateCheckLatest, "Checking for a previous report")
	latest, err := a.reports.Latest(ctx, name)
	switch {
	case err == nil:
		start := report.Report{
			ClientName: name,
			Date:       req.Date,
			Branch:     latest.Branch,
			NPA:        latest.NPA,
			Profit:     latest.Profit,
			Employee:   latest.Employee,
			Safety:     latest.Safety,
		}
		draft.Load(start)
		b.outcome.ReportDate, b.outcome.SdsCode = latest.DeriveIdentity()
		b.enter(StateStaticBranchLoaded, "Loaded branch data from the previous report")
	case errors.Is(err, docstore.ErrNotFound):
		draft.SetIdentity(name, req.Date)
		b.enter(StateRunBranchQuery, "Fetching branch data")
		branch, err := b.run(ctx, BranchQueryName, nil)
		if err != nil {
			return b.fail(err)
		}
		draft.SetTable(report.SectionBranch, tableOf(branch))
		b.outcome.ReportDate = req.Date
	default:
		return b.fail(fmt.Errorf("latest report lookup: %w", err))
	}

	b.enter(StateRunDateQueries, "Fetching member, deposit and loan data")
	vars := map[string]string{DateVariable: req.Date}
	combined, err := b.run(ctx, DepositQueryName, vars)
	if err != nil {
		return b.fail(err)
	}
	parts, err := report.Partition(tableOf(combined))
	if err != nil {
		return b.fail(err)
	}
	draft.SetTable(report.SectionMember, parts.Member)
	draft.SetTable(report.SectionDeposit, parts.Deposit)
	draft.SetTable(report.SectionLoan, parts.Loan)

	draft.SetProgress("Fetching jewel loan data")
	jewel, err := b.run(ctx, JewelQueryName, vars)
	if err != nil {
		return b.fail(err)
	}
	draft.SetTable(report.SectionJewel, tableOf(jewel))

	b.outcome.Report = draft.Report()
	if b.outcome.SdsCode == "" {
		b.outcome.SdsCode = report.BranchSdsCode(b.outcome.Report.Branch)
	}
	if b.outcome.ReportDate == "" {
		b.outcome.ReportDate = req.Date
	}
	b.enter(StateAssembled, "Report ready")
	a.logger.Info(component, "Assembled report client=%s date=%s commands=%d", name, req.Date, b.outcome.Commands)
	return b.outcome, nil
}

func (b *build) run(ctx context.Context, name string, vars map[string]string) (rendezvous.Results, error) {
	q, err := queries.Find(ctx, b.a.catalog, name)
	if err != nil {
		return rendezvous.Results{}, err
	}
	b.outcome.Commands++
	res, err := b.a.runner.Execute(ctx, b.req.ClientID, b.req.SubmitterID, q.ID, vars, b.a.timeout)
	if err != nil {
		return rendezvous.Results{}, fmt.Errorf("query %s: %w", q.Name, err)
	}
	return res, nil
}

func (b *build) fail(err error) (Outcome, error) {
	b.draft.SetProgress("Error: " + err.Error())
	b.a.logger.Warn(component, "Build failed client=%s date=%s error=%v", b.req.clientName(), b.req.Date, err)
	b.outcome.Report = b.draft.Report()
	return b.outcome, err
}

func tableOf(r rendezvous.Results) report.Table {
	return report.Table{Columns: r.Columns, Rows: r.Rows}
}

// BuildOffline loads the report from the local persistence API. When the
// local store has no branch rows for this client and date it falls back to
// Build.
func (a *Aggregator) BuildOffline(ctx context.Context, req Request, draft *report.Draft) (Outcome, error) {
	if req.clientName() == "" || req.Date == "" {
		return Outcome{}, report.ErrMissingIdentity
	}
	if a.local == nil {
		return a.Build(ctx, req, draft)
	}
	draft.SetProgress("Loading report from local storage")
	stored, err := a.local.GetReport(ctx, req.clientName(), req.Date, localapi.ModeExact)
	if err != nil && !errors.Is(err, localapi.ErrNotFound) {
		a.logger.Warn(component, "Local lookup failed client=%s date=%s error=%v", req.clientName(), req.Date, err)
	}
	if err != nil || stored.Branch.Empty() {
		return a.Build(ctx, req, draft)
	}
	stored.ClientName, stored.Date = req.clientName(), req.Date
	draft.Load(stored)
	out := Outcome{Report: draft.Report(), States: []State{StateLoaded}}
	out.ReportDate, out.SdsCode = stored.DeriveIdentity()
	if out.ReportDate == "" {
		out.ReportDate = req.Date
	}
	draft.SetProgress("Loaded report from local storage")
	return out, nil
}
