package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/core/usecase"
)

func newSubmitCommand(opts *Options) *cobra.Command {
	var (
		tablePath  string
		pdfs       []string
		mode       string
		indexes    []int
		operator   string
		noProgress bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit asset numbers to the remote form and record the run",
		Long: `submit reads asset numbers from a spreadsheet (--table) or extracts them
from PDF documents (--pdf), logs into SISGEPAT and registers each one.

Working set modes:
  all       every number in the table
  failures  numbers whose last recorded attempt failed
  pending   numbers never attempted before
  subset    the 0-based rows given with --index`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (tablePath == "") == (len(pdfs) == 0) {
				return fmt.Errorf("%w: exactly one of --table or --pdf is required", domain.ErrInvalidInput)
			}
			if len(indexes) > 0 && mode == "" {
				mode = string(domain.ModeSubset)
			}
			workingSet, err := domain.ParseWorkingSetMode(mode)
			if err != nil {
				return err
			}
			if operator == "" {
				operator = opts.Config.Operator
			}
			if strings.TrimSpace(opts.Config.Secret) == "" {
				return fmt.Errorf("%w: SISGEPAT_PASSWORD is not set", domain.ErrInvalidInput)
			}

			ctx := cmd.Context()
			deps, err := opts.Open(ctx)
			if err != nil {
				return err
			}
			defer deps.close()

			req := domain.RunRequest{
				Operator: operator,
				Secret:   opts.Config.Secret,
				Mode:     workingSet,
				Subset:   indexes,
			}
			if tablePath != "" {
				req.SourceKind = domain.SourceExcel
				req.Identifiers, err = deps.Tables.Read(ctx, tablePath)
				if err != nil {
					return err
				}
			} else {
				paths, err := collectPDFs(pdfs)
				if err != nil {
					return err
				}
				req.SourceKind = domain.SourcePDF
				result := deps.Extractor.Extract(ctx, paths)
				if !noProgress {
					printDocumentReports(opts.Err, result)
				}
				req.Identifiers = result.Identifiers
			}

			if opts.Config.MetricsAddr != "" && deps.Metrics != nil {
				go func() {
					if err := serveHTTP(ctx, opts.Config.MetricsAddr, deps.Metrics); err != nil {
						opts.Logger.Warn("metrics server stopped", "addr", opts.Config.MetricsAddr, "error", err)
					}
				}()
			}

			stream, err := deps.Runner.Execute(ctx, req)
			if err != nil {
				return err
			}
			summary := consumeProgress(opts.Err, stream, !noProgress)
			printSummary(opts.Out, stream.RunID, summary)

			if !summary.Completed {
				return fmt.Errorf("run %d did not complete: %s", stream.RunID, summary.Reason)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&tablePath, "table", "t", "", "spreadsheet with a Numero_Tombamento column (.xlsx or .csv)")
	f.StringSliceVar(&pdfs, "pdf", nil, "PDF documents or directories to extract from")
	f.StringVarP(&mode, "mode", "m", "", "working set: all, failures, pending or subset")
	f.IntSliceVar(&indexes, "index", nil, "0-based table rows to submit (implies --mode subset)")
	f.StringVar(&operator, "operator", "", "SISGEPAT login (default $SISGEPAT_LOGIN)")
	f.BoolVar(&noProgress, "no-progress", false, "print one line per item instead of a progress bar")
	return cmd
}

func printSummary(w io.Writer, runID int64, s usecase.Summary) {
	fmt.Fprintf(w, "run %d: %d/%d attempted, %d succeeded, %d failed", runID, s.Attempted, s.Total, s.Successes, s.Failures)
	if s.Completed {
		fmt.Fprintf(w, " in %s\n", s.Elapsed.Round(time.Second))
	} else {
		fmt.Fprintf(w, " (stopped: %s)\n", s.Reason)
	}
	for _, id := range s.Failed {
		fmt.Fprintf(w, "  failed: %s\n", id)
	}
}
