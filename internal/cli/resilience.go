package cli

import (
	"github.com/spf13/cobra"
)

func newResilienceCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "resilience",
		Short: "Show circuit breaker and bulkhead state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := opts.client().Resilience(cmd.Context())
			if err != nil {
				return err
			}
			if opts.output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			renderResilience(cmd.OutOrStdout(), snap)
			return nil
		},
	}
}

func newHealthCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health <index>",
		Short: "Score the health of an index or alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := opts.client().IndexHealth(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if opts.output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			renderHealth(cmd.OutOrStdout(), result)
			return nil
		},
	}
}
