package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/core/usecase"
)

// consumeProgress drains a run stream, rendering it either as a bar or
// as one line per event.
func consumeProgress(w io.Writer, stream *domain.RunStream, bar bool) usecase.Summary {
	var (
		summary usecase.Summary
		pb      *progressbar.ProgressBar
	)
	for ev := range stream.Events {
		summary.Apply(ev)

		switch ev.Kind {
		case domain.EventStarted:
			if bar {
				pb = newProgressBar(w, ev.Total)
			}
			fmt.Fprintf(w, "run %d: %d item(s), estimated %s\n", stream.RunID, ev.Total, ev.Estimate.Round(time.Second))
		case domain.EventItemAttempted:
			if pb != nil {
				pb.Describe(fmt.Sprintf("%s ok=%d", ev.Identifier, ev.Successes))
				_ = pb.Set(ev.Index)
				continue
			}
			status := "ok"
			if !ev.Success {
				status = "FAIL " + ev.Reason
			}
			fmt.Fprintf(w, "[%d/%d] %s %s\n", ev.Index, ev.Total, ev.Identifier, status)
		case domain.EventFinalizing:
			if pb != nil {
				pb.Describe("saving")
				continue
			}
			fmt.Fprintln(w, "saving")
		case domain.EventFailed:
			if pb != nil {
				_ = pb.Exit()
				pb = nil
			}
		}
	}
	if pb != nil {
		_ = pb.Finish()
	}
	return summary
}

func newProgressBar(w io.Writer, total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("submitting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}
