package push

import (
	"context"
	"errors"

	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/report"
	"github.com/farxc/rcs-reporting/internal/store"
)

// ErrNoSubmission is recorded for a client that has nothing filed for the
// requested date.
var ErrNoSubmission = errors.New("No submission found for this date")

// Source reads back a filed report. Load returns ErrNoSubmission when the
// client has nothing for the date.
type Source interface {
	Name() string
	Load(ctx context.Context, clientName, fromDate string) (report.Report, error)
}

type relationalReports interface {
	Get(ctx context.Context, clientName, date, mode string) (report.Report, error)
}

// RelationalSource reads the local relational store, taking the latest
// submission at or before the date.
type RelationalSource struct {
	Reports relationalReports
}

func (RelationalSource) Name() string { return store.SourceLocal }

func (s RelationalSource) Load(ctx context.Context, clientName, fromDate string) (report.Report, error) {
	r, err := s.Reports.Get(ctx, clientName, fromDate, store.LookupLatest)
	if errors.Is(err, store.ErrReportNotFound) {
		return report.Report{}, ErrNoSubmission
	}
	return r, err
}

type documentReports interface {
	Exact(ctx context.Context, clientName, date string) (report.Report, error)
}

// DocumentSource reads the document store by exact client and date only.
type DocumentSource struct {
	Reports documentReports
}

func (DocumentSource) Name() string { return store.SourceRCS }

func (s DocumentSource) Load(ctx context.Context, clientName, fromDate string) (report.Report, error) {
	r, err := s.Reports.Exact(ctx, clientName, fromDate)
	if errors.Is(err, docstore.ErrNotFound) {
		return report.Report{}, ErrNoSubmission
	}
	return r, err
}
