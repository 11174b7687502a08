package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/index-guard/internal/domain"
	"github.com/jonesrussell/north-cloud/index-guard/internal/migration"
)

const defaultWatchInterval = 2 * time.Second

func newMigrateCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage index migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(
		newMigrateStartCommand(opts),
		newMigrateStatusCommand(opts),
		newMigrateListCommand(opts),
		newMigrateRollbackCommand(opts),
	)
	return cmd
}

func newMigrateStartCommand(opts *options) *cobra.Command {
	var req migration.StartRequest

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a blue-green migration of an alias",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := req.Validate(); err != nil {
				return err
			}
			id, err := opts.client().StartMigration(cmd.Context(), req)
			if err != nil {
				return err
			}
			if opts.output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"run_id": id})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Migration started: %s\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.SourceAlias, "alias", "", "production alias to migrate")
	cmd.Flags().StringVar(&req.SourceIndex, "source", "", "index the alias points at")
	cmd.Flags().StringVar(&req.TargetIndex, "target", "", "index to build and switch to")
	_ = cmd.MarkFlagRequired("alias")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newMigrateStatusCommand(opts *options) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the progress of a migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			if !watch {
				run, err := client.GetMigration(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printRun(cmd, opts, run)
			}
			return watchRun(cmd, opts, client, args[0], interval)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "poll until the run reaches a terminal state")
	cmd.Flags().DurationVar(&interval, "interval", defaultWatchInterval, "poll interval for --watch")
	return cmd
}

func watchRun(cmd *cobra.Command, opts *options, client *Client, id string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		run, err := client.GetMigration(cmd.Context(), id)
		if err != nil {
			return err
		}
		if run.State.IsTerminal() {
			return printRun(cmd, opts, run)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %.1f%%\n",
			run.ID, run.State, run.ProgressPercent())

		select {
		case <-cmd.Context().Done():
			return context.Cause(cmd.Context())
		case <-ticker.C:
		}
	}
}

func printRun(cmd *cobra.Command, opts *options, run domain.MigrationRun) error {
	if opts.output == outputJSON {
		return writeJSON(cmd.OutOrStdout(), run)
	}
	renderRun(cmd.OutOrStdout(), run)
	return nil
}

func newMigrateListCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List migrations known to the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := opts.client().ListMigrations(cmd.Context())
			if err != nil {
				return err
			}
			if opts.output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No migrations found")
				return nil
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
}

func newMigrateRollbackCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback <run-id>",
		Short: "Roll a migration back to the source index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.client().Rollback(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Rollback requested: %s\n", args[0])
			return nil
		},
	}
}
