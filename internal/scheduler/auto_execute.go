// Package scheduler enqueues the daily report command for every client.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/farxc/rcs-reporting/internal/clients"
	"github.com/farxc/rcs-reporting/internal/command"
	"github.com/farxc/rcs-reporting/internal/logger"
)

const component = "Scheduler"

// DateVariable is the query variable set to today's date.
const DateVariable = "Fromdate"

const (
	OutcomeEnqueued = "enqueued"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

var ErrQueryIDRequired = errors.New("auto-execute query id is not configured")

type ClientLister interface {
	List(ctx context.Context) ([]clients.Client, error)
}

type Commands interface {
	CreatedSince(ctx context.Context, queryID, clientID string, since time.Time) ([]command.Command, error)
	Create(ctx context.Context, clientID, submitterID, queryID string, vars map[string]string) (command.Command, error)
}

type AutoExecutor struct {
	Clients     ClientLister
	Commands    Commands
	QueryID     string
	SubmitterID string
	// Location decides where "today" starts. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
	Logger   *logger.Logger
}

type ClientOutcome struct {
	ClientID   string `json:"clientId"`
	ClientName string `json:"clientName"`
	Outcome    string `json:"outcome"`
	CommandID  string `json:"commandId,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Summary struct {
	Date     string          `json:"date"`
	Enqueued int             `json:"enqueued"`
	Skipped  int             `json:"skipped"`
	Failed   int             `json:"failed"`
	Clients  []ClientOutcome `json:"clients"`
}

// Run enqueues one command per client unless one for the query already
// exists since the start of today. Running it twice a day is a no-op for
// clients already enqueued.
func (a *AutoExecutor) Run(ctx context.Context) (Summary, error) {
	if a.QueryID == "" {
		return Summary{}, ErrQueryIDRequired
	}
	log := a.Logger
	if log == nil {
		log = logger.Discard()
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}

	today := now().In(loc)
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, loc)
	date := start.Format(time.DateOnly)

	list, err := a.Clients.List(ctx)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Date: date, Clients: make([]ClientOutcome, 0, len(list))}
	for _, c := range list {
		out := ClientOutcome{ClientID: c.ID, ClientName: c.Name}

		existing, err := a.Commands.CreatedSince(ctx, a.QueryID, c.ID, start.UTC())
		switch {
		case err != nil:
			out.Outcome, out.Error = OutcomeFailed, err.Error()
		case len(existing) > 0:
			out.Outcome, out.CommandID = OutcomeSkipped, existing[0].ID
		default:
			cmd, err := a.Commands.Create(ctx, c.ID, a.SubmitterID, a.QueryID, map[string]string{DateVariable: date})
			if err != nil {
				out.Outcome, out.Error = OutcomeFailed, err.Error()
			} else {
				out.Outcome, out.CommandID = OutcomeEnqueued, cmd.ID
			}
		}

		switch out.Outcome {
		case OutcomeEnqueued:
			sum.Enqueued++
		case OutcomeSkipped:
			sum.Skipped++
		default:
			sum.Failed++
			log.Warn(component, "Auto-execute for %s failed: %s", c.Name, out.Error)
		}
		sum.Clients = append(sum.Clients, out)
	}
	log.Info(component, "Auto-execute %s: enqueued=%d skipped=%d failed=%d", date, sum.Enqueued, sum.Skipped, sum.Failed)
	return sum, nil
}
