package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

// Migrate runs all pending goose migrations. The dialect follows the
// driver the pool was opened with.
func Migrate(db *sqlx.DB) error {
	goose.SetBaseFS(EmbedMigrations)

	if err := goose.SetDialect(db.DriverName()); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}
