package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bissquit/incident-impact/internal/board"
	"github.com/bissquit/incident-impact/internal/impact"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *options) *cobra.Command {
	var (
		email         string
		password      string
		hourlyRevenue float64
		syncInterval  time.Duration
		schedule      string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow incidents and their accruing cost live",
		Long: `watch keeps the incident list and impact figures up to date. It streams
changes while the server is reachable and you are signed in, and otherwise
falls back to polling. Example incidents are shown until real data arrives.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			c := opts.newClient()
			if email != "" {
				if _, err := c.SignIn(ctx, email, password); err != nil {
					return fmt.Errorf("failed to sign in: %w", err)
				}
				defer func() {
					signOutCtx, cancel := context.WithTimeout(context.Background(), opts.timeout)
					defer cancel()
					if err := c.SignOut(signOutCtx); err != nil {
						slog.Warn("sign out failed", "error", err)
					}
				}()
			}

			b := board.New(c, impact.New(impact.DefaultConfig(), nil), board.Config{
				HourlyRevenue:     hourlyRevenue,
				RecomputeSchedule: schedule,
			})
			defer b.Close()

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			unsubscribe := b.OnChange(func() {
				mu.Lock()
				defer mu.Unlock()
				render(out, b)
			})
			defer unsubscribe()

			if err := b.Start(); err != nil {
				return err
			}

			live := board.NewLive(c, b)
			defer live.Close()

			return watchLoop(ctx, b, live, syncInterval)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "sign in with this account to stream updates")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().Float64Var(&hourlyRevenue, "hourly-revenue", 10000, "revenue at risk per hour")
	cmd.Flags().DurationVar(&syncInterval, "interval", 30*time.Second, "how often to poll and re-check the stream")
	cmd.Flags().StringVar(&schedule, "recompute", "@every 60s", "cron schedule for recomputing cost figures")
	return cmd
}

// watchLoop refreshes the board and reconciles the stream until ctx is done.
func watchLoop(ctx context.Context, b *board.Board, live *board.Live, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := b.Refresh(ctx); err != nil {
			slog.Warn("refresh failed", "error", err)
		}
		if err := live.Sync(ctx); err != nil {
			slog.Warn("stream unavailable", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func render(w io.Writer, b *board.Board) {
	report := b.Report()

	fmt.Fprintf(w, "\n== %s ==\n", report.GeneratedAt.Local().Format(time.DateTime))
	if b.Disconnected() {
		fmt.Fprintln(w, "(backend unreachable, figures may be out of date)")
	}
	if err := renderReport(w, report); err != nil {
		slog.Warn("render failed", "error", err)
	}
}
