package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/farxc/rcs-reporting/internal/db"
	"github.com/farxc/rcs-reporting/internal/queries"
)

func newQueriesCommand(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Manage the predefined query catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Load queries from a YAML catalog into the document store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := queries.LoadFile(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			docs, err := root.openDocs(ctx)
			if err != nil {
				return err
			}
			defer docs.Close(context.Background())

			n, err := queries.NewStore(docs).Import(ctx, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d queries\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			docs, err := root.openDocs(ctx)
			if err != nil {
				return err
			}
			defer docs.Close(context.Background())

			list, err := queries.NewStore(docs).List(ctx)
			if err != nil {
				return err
			}
			return root.output(cmd.OutOrStdout(), list, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tVARIABLES")
				for _, q := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", q.ID, q.Name, strings.Join(q.Variables, ","))
				}
				return tw.Flush()
			})
		},
	})

	return cmd
}

func newMigrateCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending relational schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := root.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := db.Migrate(conn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
