package cli

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/kirillkom/tombamento-bot/internal/config"
	"github.com/kirillkom/tombamento-bot/internal/core/ports"
)

// TableStore reads and writes the hand-off spreadsheet.
type TableStore interface {
	ports.IdentifierTableReader
	ports.IdentifierTableWriter
}

// Deps is what the commands need from the wired application.
type Deps struct {
	Extractor ports.IdentifierExtractor
	Tables    TableStore
	Runner    ports.BatchRunner
	Ledger    ports.LedgerReader
	// Progress is nil when no broker is configured.
	Progress ports.ProgressSubscriber
	Metrics  http.Handler
	API      func() (http.Handler, error)
	Close    func()
}

func (d *Deps) close() {
	if d != nil && d.Close != nil {
		d.Close()
	}
}

type Options struct {
	Config config.Config
	Logger *slog.Logger
	Open   func(ctx context.Context) (*Deps, error)
	Out    io.Writer
	Err    io.Writer
}

func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Err == nil {
		o.Err = os.Stderr
	}
}

func NewRootCommand(opts Options) *cobra.Command {
	opts.normalize()

	root := &cobra.Command{
		Use:   "tombamento",
		Short: "Extract asset numbers from PDFs and register them in SISGEPAT",
		Long: `tombamento reads scanned or digital PDF documents, extracts asset
numbers (NNNNN.NNN.NNN), and submits them one by one to the SISGEPAT
"Dados Gerais" form, keeping a ledger of every run for audit and resume.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	root.AddCommand(
		newExtractCommand(&opts),
		newSubmitCommand(&opts),
		newStatsCommand(&opts),
		newServeCommand(&opts),
		newWatchCommand(&opts),
	)
	return root
}
