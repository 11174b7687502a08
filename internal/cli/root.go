// Package cli implements guardctl, the operator command line for the
// index-guard control surface.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	defaultServerURL = "http://localhost:8095"
	defaultTimeout   = 30 * time.Second

	envServerURL = "INDEX_GUARD_URL"
	envToken     = "INDEX_GUARD_TOKEN"
)

// options holds the persistent flags shared by every subcommand.
type options struct {
	server  string
	token   string
	timeout time.Duration
	output  string
}

func (o *options) client() *Client {
	return NewClient(o.server, o.token, o.timeout)
}

func (o *options) validate() error {
	if o.output != outputTable && o.output != outputJSON {
		return fmt.Errorf("invalid output %q: must be %s or %s", o.output, outputTable, outputJSON)
	}
	if o.server == "" {
		return fmt.Errorf("server URL is required (--server or %s)", envServerURL)
	}
	return nil
}

// NewRootCommand builds the guardctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "guardctl",
		Short: "Operate index-guard migrations",
		Long: `guardctl starts, inspects and rolls back zero-downtime index migrations ` +
			`and reports the resilience state of an index-guard service.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", envOr(envServerURL, defaultServerURL), "index-guard base URL")
	flags.StringVar(&opts.token, "token", os.Getenv(envToken), "bearer token for the control surface")
	flags.DurationVar(&opts.timeout, "timeout", defaultTimeout, "request timeout")
	flags.StringVarP(&opts.output, "output", "o", outputTable, "output format (table|json)")

	cmd.AddCommand(
		newMigrateCommand(opts),
		newResilienceCommand(opts),
		newHealthCommand(opts),
	)
	return cmd
}

// Execute runs guardctl.
func Execute() error {
	// Load .env file early so environment variables are available
	_ = godotenv.Load()

	return NewRootCommand().ExecuteContext(context.Background())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
