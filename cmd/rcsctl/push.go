package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/farxc/rcs-reporting/internal/env"
	"github.com/farxc/rcs-reporting/internal/push"
	"github.com/farxc/rcs-reporting/internal/report"
	"github.com/farxc/rcs-reporting/internal/store"
	"github.com/farxc/rcs-reporting/internal/upstream"
)

type pushOptions struct {
	*rootOptions
	Source    string
	Clients   []string
	Date      string
	DryRun    bool
	ChunkSize int
	Upstream  upstream.Config
}

func newPushCommand(root *rootOptions) *cobra.Command {
	opts := &pushOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Replay filed reports to the upstream endpoints",
		Long: `Replay the reports of the given clients for one date upstream.

--source local reads the relational store (latest submission at or before
the date); --source rcs reads the document store (exact date only). Every
row outcome is written to the push log. Re-run with the failed clients
listed at the end to retry them.

Examples:
  rcsctl push --source local --date 2024-05-01 --clients acme,beta
  rcsctl push --source rcs --date 2024-05-01 --clients acme --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPush(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Source, "source", store.SourceLocal, "where to read reports from (local|rcs)")
	f.StringSliceVar(&opts.Clients, "clients", nil, "client names (required)")
	f.StringVar(&opts.Date, "date", "", "report date, YYYY-MM-DD (required)")
	f.BoolVar(&opts.DryRun, "dry-run", env.GetBool("PUSH_DRY_RUN", false), "log payloads instead of sending them")
	f.IntVar(&opts.ChunkSize, "chunk-size", env.GetInt("PUSH_CHUNK_SIZE", push.DefaultChunkSize), "rows sent together")
	f.StringVar(&opts.Upstream.DepositLoanURL, "deposit-loan-url", env.GetString("UPSTREAM_DEPOSIT_LOAN_URL", ""), "deposit/loan endpoint")
	f.StringVar(&opts.Upstream.JewelURL, "jewel-url", env.GetString("UPSTREAM_JEWEL_URL", ""), "jewel endpoint")
	f.DurationVar(&opts.Upstream.Timeout, "upstream-timeout", env.GetDuration("UPSTREAM_TIMEOUT", 30*time.Second), "per request timeout")
	f.Float64Var(&opts.Upstream.RPS, "rps", env.GetFloat("UPSTREAM_RPS", 0), "request rate cap, 0 for none")
	_ = cmd.MarkFlagRequired("clients")
	_ = cmd.MarkFlagRequired("date")
	opts.Upstream.APIKey = env.GetString("UPSTREAM_API_KEY", "")

	return cmd
}

func runPush(ctx context.Context, opts *pushOptions, w io.Writer) error {
	conn, err := opts.openDB()
	if err != nil {
		return err
	}
	defer conn.Close()
	storage := store.NewStorage(conn)

	var src push.Source
	switch opts.Source {
	case store.SourceLocal:
		src = push.RelationalSource{Reports: storage.Reports}
	case store.SourceRCS:
		docs, err := opts.openDocs(ctx)
		if err != nil {
			return err
		}
		defer docs.Close(context.Background())
		src = push.DocumentSource{Reports: report.NewRepository(docs)}
	default:
		return fmt.Errorf("unknown source %q: must be %s or %s", opts.Source, store.SourceLocal, store.SourceRCS)
	}

	pusher := push.New(push.Config{
		Upstream:  upstream.New(opts.Upstream, opts.log),
		Log:       storage.PushLog,
		ChunkSize: opts.ChunkSize,
		DryRun:    opts.DryRun,
		Logger:    opts.log,
		Progress:  func(msg string) { opts.log.Info(component, "%s", msg) },
	})

	resp, err := pusher.Push(ctx, src, opts.Clients, report.NormalizeDate(opts.Date))
	if err != nil {
		return err
	}
	if err := opts.output(w, resp, func(w io.Writer) error { return printPush(w, resp) }); err != nil {
		return err
	}
	if len(resp.FailedClients) > 0 {
		return fmt.Errorf("%d of %d clients failed", len(resp.FailedClients), len(resp.Results))
	}
	return nil
}

func printPush(w io.Writer, resp push.Response) error {
	fmt.Fprintf(w, "source=%s mode=%s\n", resp.Source, resp.Mode)
	for _, r := range resp.Results {
		if r.Error != "" {
			fmt.Fprintf(w, "  %-20s error: %s\n", r.ClientName, r.Error)
			continue
		}
		fmt.Fprintf(w, "  %-20s deposit_loan=%s jewel=%s\n", r.ClientName, tally(r.DepositLoan), tally(r.Jewel))
	}
	if len(resp.FailedClients) > 0 {
		fmt.Fprintf(w, "failed: %v\n", resp.FailedClients)
	}
	return nil
}

func tally(rows []push.RowResult) string {
	counts := map[string]int{}
	for _, r := range rows {
		counts[r.Status]++
	}
	return fmt.Sprintf("%d ok/%d failed/%d dry", counts[store.PushSuccess], counts[store.PushFailed], counts[store.PushDryRun])
}
