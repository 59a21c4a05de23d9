package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/farxc/rcs-reporting/internal/clients"
	"github.com/farxc/rcs-reporting/internal/crypto"
	"github.com/farxc/rcs-reporting/internal/db"
	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/env"
	"github.com/farxc/rcs-reporting/internal/logger"
)

const component = "rcsctl"

var validFormats = []string{"text", "json"}

// rootOptions holds the global flags. Defaults come from the environment so
// the CLI and the API server read the same .env file.
type rootOptions struct {
	LogLevel          string
	Format            string
	DBDriver          string
	DBAddr            string
	DocstoreURI       string
	DocstoreDatabase  string
	LocalAPIURL       string
	CredentialsSecret string

	log *logger.Logger
}

func newRootCommand() *cobra.Command {
	_ = env.Load()
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "rcsctl",
		Short: "Operator console for RCS financial reporting",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(validFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
			}
			opts.log = logger.New(cmd.ErrOrStderr(), logger.ParseLevel(opts.LogLevel))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.LogLevel, "log-level", env.GetString("LOG_LEVEL", "warn"), "log level (debug|info|warn|error)")
	f.StringVar(&opts.Format, "format", "text", "output format (text|json)")
	f.StringVar(&opts.DBDriver, "db-driver", env.GetString("DB_DRIVER", db.DriverPostgres), "relational driver (postgres|sqlite3)")
	f.StringVar(&opts.DBAddr, "db-addr", env.GetString("DB_ADDR", ""), "relational connection string")
	f.StringVar(&opts.DocstoreURI, "docstore-uri", env.GetString("DOCSTORE_URI", ""), "MongoDB URI of the document store")
	f.StringVar(&opts.DocstoreDatabase, "docstore-db", env.GetString("DOCSTORE_DATABASE", "rcs"), "document store database")
	f.StringVar(&opts.LocalAPIURL, "local-api", env.GetString("LOCAL_API_URL", "http://localhost:8080"), "base URL of the local persistence API")
	f.StringVar(&opts.CredentialsSecret, "credentials-secret", env.GetString("CREDENTIALS_SECRET", ""), "master secret for stored credentials")

	cmd.AddCommand(newReportCommand(opts))
	cmd.AddCommand(newPushCommand(opts))
	cmd.AddCommand(newClientsCommand(opts))
	cmd.AddCommand(newQueriesCommand(opts))
	cmd.AddCommand(newAutoExecuteCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newCleanupCommand(opts))

	return cmd
}

func (o *rootOptions) openDB() (*sqlx.DB, error) {
	if o.DBAddr == "" {
		return nil, fmt.Errorf("no relational store configured: set --db-addr or DB_ADDR")
	}
	conns := 4
	if o.DBDriver == db.DriverSQLite {
		conns = 1
	}
	return db.New(o.DBDriver, o.DBAddr, conns, conns, "5m")
}

// openDocs connects to the shared document store. The CLI has no use for a
// private in-memory store, so a URI is required.
func (o *rootOptions) openDocs(ctx context.Context) (docstore.Store, error) {
	if o.DocstoreURI == "" {
		return nil, fmt.Errorf("no document store configured: set --docstore-uri or DOCSTORE_URI")
	}
	m, err := docstore.ConnectMongo(ctx, o.DocstoreURI, o.DocstoreDatabase, o.log)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (o *rootOptions) registry(docs docstore.Store) (*clients.Registry, error) {
	if o.CredentialsSecret == "" {
		return clients.NewRegistry(docs, nil), nil
	}
	c, err := crypto.New(o.CredentialsSecret)
	if err != nil {
		return nil, err
	}
	return clients.NewRegistry(docs, c), nil
}

// output writes v as indented JSON in json format, otherwise calls text.
func (o *rootOptions) output(w io.Writer, v any, text func(io.Writer) error) error {
	if o.Format == "json" || text == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
