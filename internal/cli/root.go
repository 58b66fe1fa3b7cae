// Package cli implements the impactctl command line tool.
package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/bissquit/incident-impact/internal/client"
	"github.com/bissquit/incident-impact/internal/version"
	"github.com/spf13/cobra"
)

const (
	defaultServerURL = "http://localhost:8080"

	outputTable = "table"
	outputJSON  = "json"
)

type options struct {
	serverURL string
	token     string
	output    string
	timeout   time.Duration
	rateLimit float64
}

func (o *options) newClient() *client.Client {
	return client.New(client.Config{
		BaseURL:   o.serverURL,
		Timeout:   o.timeout,
		RateLimit: o.rateLimit,
		Token:     o.token,
	})
}

// Execute runs the root command until ctx is cancelled.
func Execute(ctx context.Context) error {
	return NewRootCmd(os.Stdout).ExecuteContext(ctx)
}

// NewRootCmd builds the command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "impactctl",
		Short: "Incident impact command line client",
		Long: `impactctl reads incidents and their business impact from the incident API,
follows live updates and manages the database schema.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	cmd.PersistentFlags().StringVar(&opts.serverURL, "server", envOr("IMPACT_SERVER", defaultServerURL), "API base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("IMPACT_TOKEN"), "bearer token")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "output format: table, json")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	cmd.PersistentFlags().Float64Var(&opts.rateLimit, "rate-limit", 5, "max requests per second, 0 for unlimited")

	cmd.AddCommand(newReportCmd(opts))
	cmd.AddCommand(newIncidentsCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
