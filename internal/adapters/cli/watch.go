package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

func newWatchCommand(opts *Options) *cobra.Command {
	var (
		runID    int64
		jsonMode bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow progress events published by running submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			deps, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			if deps.Progress == nil {
				return errors.New("progress broker is not configured, set NATS_URL")
			}

			enc := json.NewEncoder(opts.Out)
			err = deps.Progress.SubscribeProgress(ctx, func(_ context.Context, id int64, ev domain.ProgressEvent) error {
				if runID != 0 && id != runID {
					return nil
				}
				if jsonMode {
					return enc.Encode(struct {
						RunID int64 `json:"run_id"`
						domain.ProgressEvent
					}{id, ev})
				}
				printEvent(opts.Out, id, ev)
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "only show events of this run")
	cmd.Flags().BoolVar(&jsonMode, "json", false, "print events as JSON lines")
	return cmd
}

func printEvent(w io.Writer, runID int64, ev domain.ProgressEvent) {
	switch ev.Kind {
	case domain.EventStarted:
		fmt.Fprintf(w, "run %d started: %d item(s), estimated %s\n", runID, ev.Total, ev.Estimate.Round(time.Second))
	case domain.EventItemAttempted:
		status := "ok"
		if !ev.Success {
			status = "FAIL " + ev.Reason
		}
		fmt.Fprintf(w, "run %d [%d/%d %.0f%%] %s %s\n", runID, ev.Index, ev.Total, ev.Progress*100, ev.Identifier, status)
	case domain.EventFinalizing:
		fmt.Fprintf(w, "run %d saving\n", runID)
	case domain.EventCompleted:
		fmt.Fprintf(w, "run %d completed: %d/%d succeeded in %s\n", runID, ev.Successes, ev.Total, ev.Elapsed.Round(time.Second))
	case domain.EventFailed:
		fmt.Fprintf(w, "run %d failed: %s\n", runID, ev.Reason)
	}
}
