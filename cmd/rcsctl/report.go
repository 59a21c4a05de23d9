package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/farxc/rcs-reporting/internal/aggregator"
	"github.com/farxc/rcs-reporting/internal/docstore"
	"github.com/farxc/rcs-reporting/internal/localapi"
	"github.com/farxc/rcs-reporting/internal/queries"
	"github.com/farxc/rcs-reporting/internal/rendezvous"
	"github.com/farxc/rcs-reporting/internal/report"
	"github.com/farxc/rcs-reporting/internal/submission"
)

type reportOptions struct {
	*rootOptions
	ClientID    string
	ClientName  string
	Date        string
	SubmitterID string
	Timeout     time.Duration
	Offline     bool
	Catalog     string
	Poll        time.Duration
}

func newReportCommand(root *rootOptions) *cobra.Command {
	opts := &reportOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Assemble and submit reports",
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.ClientID, "client-id", "", "client the queries run against (required)")
	f.StringVar(&opts.ClientName, "client-name", "", "name the report is filed under (defaults to --client-id)")
	f.StringVar(&opts.Date, "date", time.Now().Format(time.DateOnly), "report date, YYYY-MM-DD")
	f.StringVar(&opts.SubmitterID, "submitter", "", "submitter id stamped on commands (defaults to $USER)")
	f.DurationVar(&opts.Timeout, "timeout", 6*time.Minute, "how long to wait for each query")
	f.BoolVar(&opts.Offline, "from-local", false, "try the local persistence API before querying")
	f.StringVar(&opts.Catalog, "catalog", "", "YAML query catalog (defaults to the document store catalog)")
	f.DurationVar(&opts.Poll, "poll", 0, "read commands at this interval instead of watching them, 0 to watch")
	_ = cmd.MarkPersistentFlagRequired("client-id")

	cmd.AddCommand(newReportBuildCommand(opts))
	cmd.AddCommand(newReportSubmitCommand(opts))
	return cmd
}

func newReportBuildCommand(opts *reportOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Assemble a report and print it",
		Long: `Assemble the report of one client for one date.

A report already saved for the date is loaded as is. Otherwise branch data
comes from the client's previous report (or the branch query) and the
member, deposit, loan and jewel queries are run in turn.

Examples:
  rcsctl report build --client-id c-17 --date 2024-05-01
  rcsctl report build --client-id c-17 --from-local --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs, err := opts.openDocs(ctx)
			if err != nil {
				return err
			}
			defer docs.Close(context.Background())

			draft := report.NewDraft()
			out, err := opts.build(ctx, docs, draft, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return opts.output(cmd.OutOrStdout(), out.Report.Payload(), func(w io.Writer) error {
				return printSummary(w, out)
			})
		},
	}
}

type submitOptions struct {
	*reportOptions
	To []string
}

func newReportSubmitCommand(parent *reportOptions) *cobra.Command {
	opts := &submitOptions{reportOptions: parent}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Assemble a report and file it",
		Long: `Assemble a report and write it to the selected destinations.

"online" files it in the document store and removes the submitter's
temporary result sets; "offline" posts it to the local persistence API.
A failure of one destination does not undo the other.

Examples:
  rcsctl report submit --client-id c-17 --date 2024-05-01 --to online,offline`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := submission.Destinations{
				Online:  slices.Contains(opts.To, "online"),
				Offline: slices.Contains(opts.To, "offline"),
			}
			for _, d := range opts.To {
				if d != "online" && d != "offline" {
					return fmt.Errorf("unknown destination %q", d)
				}
			}

			ctx := cmd.Context()
			docs, err := opts.openDocs(ctx)
			if err != nil {
				return err
			}
			defer docs.Close(context.Background())

			draft := report.NewDraft()
			if _, err := opts.build(ctx, docs, draft, cmd.ErrOrStderr()); err != nil {
				return err
			}

			pipeline := submission.New(
				report.NewRepository(docs),
				rendezvous.New(docs, opts.log),
				localapi.New(opts.LocalAPIURL, opts.Timeout, opts.log),
				opts.log,
			)
			res, err := pipeline.Submit(ctx, draft, opts.submitter(), dest)
			fmt.Fprintf(cmd.OutOrStdout(), "online=%t offline=%t swept=%d\n", res.Online, res.Offline, res.Swept)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&opts.To, "to", []string{"online"}, "destinations: online, offline or both")
	return cmd
}

func (o *reportOptions) submitter() string {
	if o.SubmitterID != "" {
		return o.SubmitterID
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "rcsctl"
}

func (o *reportOptions) build(ctx context.Context, docs docstore.Store, draft *report.Draft, progress io.Writer) (aggregator.Outcome, error) {
	var catalog queries.Lister = queries.NewStore(docs)
	if o.Catalog != "" {
		f, err := queries.LoadFile(o.Catalog)
		if err != nil {
			return aggregator.Outcome{}, err
		}
		catalog = f
	}

	runner := rendezvous.New(docs, o.log)
	if o.Poll > 0 {
		runner.Poll, runner.PollInterval = true, o.Poll
	}
	agg, err := aggregator.New(aggregator.Config{
		Runner:  runner,
		Reports: report.NewRepository(docs),
		Catalog: catalog,
		Local:   localapi.New(o.LocalAPIURL, o.Timeout, o.log),
		Timeout: o.Timeout,
		Logger:  o.log,
	})
	if err != nil {
		return aggregator.Outcome{}, err
	}

	draft.OnProgress(func(msg string) { fmt.Fprintln(progress, msg) })
	req := aggregator.Request{
		ClientID:    o.ClientID,
		ClientName:  o.ClientName,
		Date:        report.NormalizeDate(o.Date),
		SubmitterID: o.submitter(),
	}
	if o.Offline {
		return agg.BuildOffline(ctx, req, draft)
	}
	return agg.Build(ctx, req, draft)
}

func printSummary(w io.Writer, out aggregator.Outcome) error {
	r := out.Report
	states := make([]string, len(out.States))
	for i, s := range out.States {
		states[i] = string(s)
	}
	fmt.Fprintf(w, "client:    %s\n", r.ClientName)
	fmt.Fprintf(w, "date:      %s (data from %s)\n", r.Date, out.ReportDate)
	fmt.Fprintf(w, "sds code:  %s\n", out.SdsCode)
	fmt.Fprintf(w, "path:      %s\n", strings.Join(states, " > "))
	fmt.Fprintf(w, "commands:  %d\n", out.Commands)
	for _, s := range []report.Section{report.SectionBranch, report.SectionMember, report.SectionDeposit, report.SectionLoan, report.SectionJewel} {
		t, _ := r.Table(s)
		fmt.Fprintf(w, "%-10s %d rows\n", string(s)+":", len(t.Rows))
	}
	return nil
}

func newCleanupCommand(root *rootOptions) *cobra.Command {
	var commandID, submitterID string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete temporary result sets of a submitter",
		Long: `Delete the temporary result sets a submitter left in the document store,
for example after an interrupted report build.

Examples:
  rcsctl cleanup --submitter alice
  rcsctl cleanup --submitter alice --command-id 9f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs, err := root.openDocs(ctx)
			if err != nil {
				return err
			}
			defer docs.Close(context.Background())

			if err := rendezvous.New(docs, root.log).Cleanup(ctx, commandID, submitterID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed result sets of %s\n", submitterID)
			return nil
		},
	}

	cmd.Flags().StringVar(&submitterID, "submitter", "", "submitter whose result sets are removed (required)")
	cmd.Flags().StringVar(&commandID, "command-id", "", "also remove the result set of this command")
	_ = cmd.MarkFlagRequired("submitter")
	return cmd
}
