package store

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/farxc/rcs-reporting/internal/report"
)

var (
	ErrReportNotFound = errors.New("report not found")
	ErrMissingSdsCode = errors.New("report has no sds code")
)

// Lookup modes of Reports.Get.
const (
	LookupExact  = "exact"
	LookupLatest = "latest"
)

type Storage struct {
	Reports interface {
		Save(ctx context.Context, r report.Report) (SubmissionLogEntry, error)
		Get(ctx context.Context, clientName, date, mode string) (report.Report, error)
	}

	SubmissionLog interface {
		List(ctx context.Context) ([]SubmissionLogEntry, error)
		Count(ctx context.Context, sdsCode, reportDate string) (int, error)
	}

	PushLog interface {
		Upsert(ctx context.Context, e *PushLogEntry) error
		List(ctx context.Context, f PushLogFilter) ([]PushLogEntry, error)
	}
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		Reports:       &ReportStore{db: db},
		SubmissionLog: &SubmissionLogStore{db: db},
		PushLog:       &PushLogStore{db: db},
	}
}
