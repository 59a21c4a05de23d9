package store

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

type PushLogStore struct {
	db *sqlx.DB
}

// Upsert records the outcome of one push, replacing any earlier outcome for
// the same source, client, date and module.
func (s *PushLogStore) Upsert(ctx context.Context, e *PushLogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO push_log (
		source, client_name, from_date, module, status, response, created_at
	) VALUES (
		:source, :client_name, :from_date, :module, :status, :response, :created_at
	)
	ON CONFLICT (source, client_name, from_date, module) DO UPDATE SET
		status = EXCLUDED.status,
		response = EXCLUDED.response,
		created_at = EXCLUDED.created_at`

	_, err := s.db.NamedExecContext(ctx, query, e)
	return err
}

func (s *PushLogStore) List(ctx context.Context, f PushLogFilter) ([]PushLogEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.Source != "" {
		where = append(where, "source = ?")
		args = append(args, f.Source)
	}
	if f.ClientName != "" {
		where = append(where, "client_name = ?")
		args = append(args, f.ClientName)
	}
	if f.FromDate != "" {
		where = append(where, "from_date = ?")
		args = append(args, f.FromDate)
	}
	query := `SELECT source, client_name, from_date, module, status, response, created_at FROM push_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY client_name, from_date, module"

	var entries []PushLogEntry
	if err := s.db.SelectContext(ctx, &entries, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return entries, nil
}
