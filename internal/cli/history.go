package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/gdcmaf/internal/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past collection runs, or the failures of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("history-db") {
				cfg.History.DBPath = dbPath
			}
			if cfg.History.DBPath == "" {
				return errors.New("no history database configured (use --history-db or GDC_MAF_HISTORY_DB)")
			}

			st, err := store.NewSQLiteStore(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()
			ctx := cmd.Context()
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate history: %w", err)
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := st.GetRun(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get run: %w", err)
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				failures, err := st.ListFailures(ctx, run.ID)
				if err != nil {
					return fmt.Errorf("list failures: %w", err)
				}

				fmt.Fprintf(out, "Run:       %s\n", run.ID)
				fmt.Fprintf(out, "Scope:     %s\n", run.Scope)
				fmt.Fprintf(out, "Output:    %s\n", run.Output)
				fmt.Fprintf(out, "State:     %s\n", run.State)
				fmt.Fprintf(out, "Succeeded: %d\n", run.Succeeded)
				fmt.Fprintf(out, "Failed:    %d\n", run.Failed)
				if run.Error != "" {
					fmt.Fprintf(out, "Error:     %s\n", run.Error)
				}
				if len(failures) == 0 {
					return nil
				}
				fmt.Fprintf(out, "\n%-38s  %-38s  %s\n", "CASE_ID", "FILE_ID", "REASON")
				for _, f := range failures {
					fmt.Fprintf(out, "%-38s  %-38s  %s\n", f.CaseID, f.FileID, f.Reason)
				}
				return nil
			}

			runs, err := st.ListRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-44s  %-10s  %-9s  %-6s  %-28s  %s\n", "ID", "STATE", "SUCCEEDED", "FAILED", "SCOPE", "STARTED")
			for _, r := range runs {
				fmt.Fprintf(out, "%-44s  %-10s  %-9d  %-6d  %-28s  %s\n",
					r.ID, r.State, r.Succeeded, r.Failed, r.Scope, humanize.RelTime(r.StartedAt, time.Now(), "ago", "from now"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "history-db", "", "SQLite database recording run history")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list (0 for all)")
	return cmd
}
