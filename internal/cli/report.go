package cli

import (
	"fmt"
	"time"

	"github.com/bissquit/incident-impact/internal/domain"
	"github.com/spf13/cobra"
)

func newReportCmd(opts *options) *cobra.Command {
	var hourlyRevenue float64

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the business impact of current incidents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := opts.newClient().Report(cmd.Context(), hourlyRevenue)
			if err != nil {
				return fmt.Errorf("failed to get impact report: %w", err)
			}
			if opts.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), report)
			}
			return renderReport(cmd.OutOrStdout(), *report)
		},
	}

	cmd.Flags().Float64Var(&hourlyRevenue, "hourly-revenue", 0, "revenue at risk per hour (default: server setting)")
	return cmd
}

func newIncidentsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "incidents",
		Aliases: []string{"incident", "inc"},
		Short:   "Inspect incidents",
	}

	cmd.AddCommand(newIncidentsListCmd(opts))
	return cmd
}

func newIncidentsListCmd(opts *options) *cobra.Command {
	var (
		limit    int
		severity string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest incidents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := opts.newClient()

			var (
				incs []domain.Incident
				err  error
			)
			if severity != "" {
				sev := domain.ParseSeverity(severity)
				if !sev.IsValid() {
					return fmt.Errorf("unknown severity %q", severity)
				}
				incs, err = c.BySeverity(cmd.Context(), sev)
			} else {
				incs, err = c.List(cmd.Context(), limit)
			}
			if err != nil {
				return fmt.Errorf("failed to list incidents: %w", err)
			}

			if opts.output == outputJSON {
				return printJSON(cmd.OutOrStdout(), incs)
			}
			return renderIncidents(cmd.OutOrStdout(), incs, time.Now())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of incidents")
	cmd.Flags().StringVarP(&severity, "severity", "s", "", "only incidents of this severity")
	return cmd
}
