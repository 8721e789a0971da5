package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

func newStatsCommand(opts *Options) *cobra.Command {
	var (
		runs   int
		items  int
		status string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show ledger statistics, recent runs and recorded items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			itemStatus, err := domain.ParseItemStatus(status)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			deps, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			stats, err := deps.Ledger.AggregateStats(ctx)
			if err != nil {
				return err
			}
			w := opts.Out
			fmt.Fprintf(w, "runs: %d  items: %d  succeeded: %d  failed: %d  success rate: %.1f%%\n",
				stats.TotalRuns, stats.TotalItems, stats.TotalSuccesses, stats.TotalFailures, stats.SuccessRate)

			if runs > 0 {
				recent, err := deps.Ledger.RecentRuns(ctx, runs)
				if err != nil {
					return err
				}
				fmt.Fprintln(w)
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tSTARTED\tOPERATOR\tSOURCE\tTOTAL\tOK\tFAILED\tRATE")
				for _, r := range recent {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%.1f%%\n",
						r.ID, r.StartedAt.Local().Format(time.DateTime), r.Operator, r.SourceKind,
						r.Total, r.Successes, r.Failures, r.SuccessRate())
				}
				_ = tw.Flush()
			}

			if items > 0 {
				outcomes, err := deps.Ledger.ItemsByStatus(ctx, itemStatus, items)
				if err != nil {
					return err
				}
				fmt.Fprintln(w)
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tRECORDED\tNUMBER\tSTATUS\tOPERATOR\tREASON")
				for _, it := range outcomes {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
						it.RunID, it.RecordedAt.Local().Format(time.DateTime), it.Identifier, it.Status, it.Operator, it.Reason)
				}
				_ = tw.Flush()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 10, "number of recent runs to list (0 to skip)")
	cmd.Flags().IntVar(&items, "items", 0, "number of recorded items to list (0 to skip)")
	cmd.Flags().StringVar(&status, "status", "", "filter listed items by status: success or failure")
	return cmd
}
