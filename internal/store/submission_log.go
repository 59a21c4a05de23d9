package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

type SubmissionLogStore struct {
	db *sqlx.DB
}

// List returns the whole submission log, newest first.
func (s *SubmissionLogStore) List(ctx context.Context) ([]SubmissionLogEntry, error) {
	var entries []SubmissionLogEntry
	query := `SELECT id, client_name, sds_code, report_date,
		has_branch, has_member, has_deposit, has_loan, has_jewel,
		has_employee, has_npa, has_profit, has_safety,
		submission_type, created_at
	FROM report_insert_log
	ORDER BY created_at DESC, id`
	if err := s.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *SubmissionLogStore) Count(ctx context.Context, sdsCode, reportDate string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM report_insert_log WHERE sds_code = ? AND report_date = ?`), sdsCode, reportDate)
	return n, err
}
