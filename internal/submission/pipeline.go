// Package submission files an assembled report with the document store, the
// local relational store, or both.
package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/farxc/rcs-reporting/internal/logger"
	"github.com/farxc/rcs-reporting/internal/report"
)

const component = "Submission"

var ErrNoDestinationSelected = errors.New("select at least one destination")

type Destinations struct {
	Online  bool
	Offline bool
}

// DocumentSink is the online destination.
type DocumentSink interface {
	Upsert(ctx context.Context, r report.Report) error
}

// ResultSweeper deletes the temporary result sets of a submitter.
type ResultSweeper interface {
	SweepSubmitter(ctx context.Context, submitterID string) (int, error)
}

// LocalSink is the offline destination.
type LocalSink interface {
	SaveReport(ctx context.Context, r report.Report) error
}

type Pipeline struct {
	docs    DocumentSink
	sweeper ResultSweeper
	local   LocalSink
	logger  *logger.Logger
}

// New wires the pipeline. A nil sink makes its destination fail when
// selected.
func New(docs DocumentSink, sweeper ResultSweeper, local LocalSink, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{docs: docs, sweeper: sweeper, local: local, logger: log}
}

type Result struct {
	Online  bool
	Offline bool
	// Swept counts the result sets removed after the online write.
	Swept int
}

// Submit writes the draft's report to the selected destinations. When any
// destination succeeds the draft is reset. Failures of individual
// destinations are joined into the returned error.
func (p *Pipeline) Submit(ctx context.Context, draft *report.Draft, submitterID string, dest Destinations) (Result, error) {
	if !dest.Online && !dest.Offline {
		return Result{}, ErrNoDestinationSelected
	}
	r := draft.Report()
	if err := r.RequireIdentity(); err != nil {
		return Result{}, err
	}

	var (
		res  Result
		errs []error
	)
	if dest.Online {
		draft.SetProgress("Saving report online")
		if err := p.submitOnline(ctx, r, submitterID, &res); err != nil {
			errs = append(errs, fmt.Errorf("online: %w", err))
		}
	}
	if dest.Offline {
		draft.SetProgress("Saving report offline")
		if err := p.submitOffline(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("offline: %w", err))
		} else {
			res.Offline = true
		}
	}

	if res.Online || res.Offline {
		draft.Reset()
	}
	err := errors.Join(errs...)
	if err != nil {
		draft.SetProgress("Submission failed: " + err.Error())
		p.logger.Error(component, "Submit client=%s date=%s error=%v", r.ClientName, r.Date, err)
	} else {
		draft.SetProgress("Report submitted")
		p.logger.Info(component, "Submitted client=%s date=%s online=%t offline=%t", r.ClientName, r.Date, res.Online, res.Offline)
	}
	return res, err
}

func (p *Pipeline) submitOnline(ctx context.Context, r report.Report, submitterID string, res *Result) error {
	if p.docs == nil {
		return errors.New("document store not configured")
	}
	if err := p.docs.Upsert(ctx, r); err != nil {
		return err
	}
	res.Online = true
	if p.sweeper == nil || submitterID == "" {
		return nil
	}
	n, err := p.sweeper.SweepSubmitter(ctx, submitterID)
	res.Swept = n
	if err != nil {
		p.logger.Warn(component, "Result cleanup for %s incomplete: %v", submitterID, err)
	}
	return nil
}

func (p *Pipeline) submitOffline(ctx context.Context, r report.Report) error {
	if p.local == nil {
		return errors.New("local persistence API not configured")
	}
	return p.local.SaveReport(ctx, r)
}
