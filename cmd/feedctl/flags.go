package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/onnwee/matchfeed/internal/db"
	"github.com/onnwee/matchfeed/internal/featureflag"
)

func flagsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Inspect feature flags",
	}

	var databaseURL string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the stored feature flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			conn, err := db.Open(ctx, databaseURL, db.DefaultPoolConfig())
			if err != nil {
				return err
			}
			defer conn.Close()

			flags, err := featureflag.NewPostgresStore(conn).ListFlags(ctx)
			if err != nil {
				return err
			}
			return printFlags(cmd, flags)
		},
	}
	list.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres URL (default $DATABASE_URL)")

	bucket := &cobra.Command{
		Use:   "bucket KEY IDENTITY",
		Short: "Print the rollout bucket of IDENTITY for flag KEY",
		Long:  "A flag with rollout_pct P is on for identities whose bucket is below P.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), featureflag.Bucket(args[0], args[1]))
			return nil
		},
	}

	cmd.AddCommand(list, bucket)
	return cmd
}

func printFlags(cmd *cobra.Command, flags []featureflag.Flag) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tENABLED\tROLLOUT\tPLATFORM")
	for _, f := range flags {
		platform := f.Platform
		if platform == "" {
			platform = featureflag.PlatformAll
		}
		fmt.Fprintf(w, "%s\t%t\t%d%%\t%s\n", f.Key, f.Enabled, f.RolloutPct, platform)
	}
	return w.Flush()
}
