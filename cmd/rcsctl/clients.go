package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/farxc/rcs-reporting/internal/clients"
	"github.com/farxc/rcs-reporting/internal/command"
	"github.com/farxc/rcs-reporting/internal/env"
	"github.com/farxc/rcs-reporting/internal/scheduler"
)

func newClientsCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage the client registry",
	}
	cmd.AddCommand(newClientsAddCommand(root))
	cmd.AddCommand(newClientsListCommand(root))
	return cmd
}

func newClientsAddCommand(root *rootOptions) *cobra.Command {
	var reg clients.Registration

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a client database",
		Long: `Register a client database. The password is stored encrypted with
--credentials-secret (CREDENTIALS_SECRET).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs, err := root.openDocs(ctx)
			if err != nil {
				return err
			}
			defer docs.Close(context.Background())

			r, err := root.registry(docs)
			if err != nil {
				return err
			}
			c, err := r.Add(ctx, reg)
			if err != nil {
				return err
			}
			return root.output(cmd.OutOrStdout(), c, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "registered %s (%s)\n", c.Name, c.ID)
				return err
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&reg.Name, "name", "", "client name (required)")
	f.StringVar(&reg.DBHost, "db-host", "", "database host")
	f.StringVar(&reg.DBName, "db-name", "", "database name")
	f.StringVar(&reg.DBUser, "db-user", "", "database user")
	f.StringVar(&reg.Password, "db-password", "", "database password")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newClientsListCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered clients",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs, err := root.openDocs(ctx)
			if err != nil {
				return err
			}
			defer docs.Close(context.Background())

			list, err := clients.NewRegistry(docs, nil).List(ctx)
			if err != nil {
				return err
			}
			return root.output(cmd.OutOrStdout(), list, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tHOST\tDATABASE\tUSER\tCREATED")
				for _, c := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.DBHost, c.DBName, c.DBUser, c.CreatedAt.Format(time.DateOnly))
				}
				return tw.Flush()
			})
		},
	}
}

func newAutoExecuteCommand(root *rootOptions) *cobra.Command {
	exec := &scheduler.AutoExecutor{Location: time.Local}

	cmd := &cobra.Command{
		Use:   "auto-execute",
		Short: "Enqueue today's report command for every client",
		Long: `Enqueue today's report command for every registered client that has
none yet. Safe to run more than once a day.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs, err := root.openDocs(ctx)
			if err != nil {
				return err
			}
			defer docs.Close(context.Background())

			exec.Clients = clients.NewRegistry(docs, nil)
			exec.Commands = command.NewStore(docs)
			exec.Logger = root.log

			sum, err := exec.Run(ctx)
			if err != nil {
				return err
			}
			return root.output(cmd.OutOrStdout(), sum, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				for _, c := range sum.Clients {
					fmt.Fprintf(tw, "%s\t%s\t%s%s\n", c.ClientName, c.Outcome, c.CommandID, c.Error)
				}
				fmt.Fprintf(tw, "%s\tenqueued=%d skipped=%d failed=%d\n", sum.Date, sum.Enqueued, sum.Skipped, sum.Failed)
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&exec.QueryID, "query-id", env.GetString("AUTO_EXECUTE_QUERY_ID", ""), "query to enqueue")
	cmd.Flags().StringVar(&exec.SubmitterID, "submitter", env.GetString("AUTO_EXECUTE_SUBMITTER_ID", "auto-execute"), "submitter id stamped on commands")
	return cmd
}
