package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/tombamento-bot/internal/adapters/cli"
	httpadapter "github.com/kirillkom/tombamento-bot/internal/adapters/http"
	"github.com/kirillkom/tombamento-bot/internal/config"
	"github.com/kirillkom/tombamento-bot/internal/core/ports"
	"github.com/kirillkom/tombamento-bot/internal/core/usecase"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/execrun"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/ocr/tesseract"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/pdftext"
	natsqueue "github.com/kirillkom/tombamento-bot/internal/infrastructure/queue/nats"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/raster"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/remote"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/remote/chromedriver"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/repository/sqlstore"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/resilience"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/table"
	"github.com/kirillkom/tombamento-bot/internal/observability/metrics"
)

const serviceName = "tombamento"

type App struct {
	Config config.Config
	Logger *slog.Logger

	Ledger    *sqlstore.Ledger
	Tables    *table.Store
	Extractor *usecase.ExtractionPipeline
	Runner    *usecase.RunService
	Metrics   *metrics.SubmissionMetrics

	// Progress is nil unless NATS_URL is set.
	Progress *natsqueue.Queue

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialect, err := sqlstore.ParseDialect(cfg.LedgerDriver)
	if err != nil {
		return nil, err
	}
	db, err := sqlstore.OpenDB(ctx, dialect, cfg.LedgerDSN)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	ledger := sqlstore.NewLedger(db, dialect)
	if err := ledger.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	var progress *natsqueue.Queue
	if strings.TrimSpace(cfg.NATSURL) != "" {
		progress, err = natsqueue.New(cfg.NATSURL, cfg.NATSSubject, natsqueue.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.ProgressPublishConfig(), logger),
			Logger:             logger,
		})
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init progress queue: %w", err)
		}
	}

	extractor, err := newExtractionPipeline(cfg, logger)
	if err != nil {
		closeAll(db, progress)
		return nil, err
	}

	sessions, err := newSessionFactory(cfg, logger)
	if err != nil {
		closeAll(db, progress)
		return nil, err
	}

	submissionMetrics := metrics.NewSubmissionMetrics(serviceName)
	engine := usecase.NewSubmissionEngine(usecase.SubmissionConfig{PerItemEstimate: cfg.PerItemEstimate}, logger)

	var publisher ports.ProgressPublisher
	if progress != nil {
		publisher = progress
	}
	runner := usecase.NewRunService(sessions, ledger, engine, publisher, submissionMetrics, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Ledger:    ledger,
		Tables:    table.NewStore(),
		Extractor: extractor,
		Runner:    runner,
		Metrics:   submissionMetrics,
		Progress:  progress,
		closeFn: func() {
			closeAll(db, progress)
		},
	}, nil
}

// UploadExtractor stages uploads under UPLOAD_DIR. Only the API needs it,
// so the directory is created on first use.
func (a *App) UploadExtractor() (*usecase.UploadExtractionUseCase, error) {
	storage, err := localfs.New(a.Config.UploadDir, a.Config.UploadMaxBytes)
	if err != nil {
		return nil, fmt.Errorf("init upload storage: %w", err)
	}
	return usecase.NewUploadExtractionUseCase(storage, a.Extractor, a.Logger), nil
}

// APIHandler builds the HTTP API with request metrics and a /metrics
// endpoint that also carries the submission series.
func (a *App) APIHandler() (http.Handler, error) {
	uploads, err := a.UploadExtractor()
	if err != nil {
		return nil, err
	}
	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	router := httpadapter.NewRouter(a.Config, uploads, a.Ledger, a.Tables,
		httpadapter.WithLogger(a.Logger),
		httpadapter.WithMetrics(httpMetrics, metrics.Handler(httpMetrics.Gatherer(), a.Metrics.Gatherer())),
	)
	return router.Handler(), nil
}

// CLIDeps exposes the app to the command-line adapter.
func (a *App) CLIDeps() *cli.Deps {
	deps := &cli.Deps{
		Extractor: a.Extractor,
		Tables:    a.Tables,
		Runner:    a.Runner,
		Ledger:    a.Ledger,
		Metrics:   a.Metrics.Handler(),
		API:       a.APIHandler,
		Close:     a.Close,
	}
	if a.Progress != nil {
		deps.Progress = a.Progress
	}
	return deps
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func closeAll(db *sql.DB, progress *natsqueue.Queue) {
	if progress != nil {
		progress.Close()
	}
	_ = db.Close()
}

func newExtractionPipeline(cfg config.Config, logger *slog.Logger) (*usecase.ExtractionPipeline, error) {
	runner := execrun.NewExecRunner(logger)

	var rasterizer ports.Rasterizer
	switch strings.ToLower(strings.TrimSpace(cfg.Rasterizer)) {
	case "", "fitz":
		rasterizer = raster.NewFitzRasterizer(cfg.RasterDPI, cfg.RasterTempDir, logger)
	case "pdftoppm":
		rasterizer = raster.NewPdftoppmRasterizer(cfg.PdftoppmBin, cfg.RasterDPI, cfg.RasterTempDir, runner, logger)
	default:
		return nil, fmt.Errorf("unsupported rasterizer %q", cfg.Rasterizer)
	}

	ocr := tesseract.New(tesseract.Config{
		Bin:         cfg.TesseractBin,
		Lang:        cfg.OCRLang,
		TessdataDir: cfg.TessdataDir,
		PSM:         cfg.OCRPSM,
	}, runner, logger)

	recovery := usecase.NewTextRecovery(pdftext.NewReader(logger), rasterizer, ocr, logger)
	return usecase.NewExtractionPipeline(recovery, logger), nil
}

func newSessionFactory(cfg config.Config, logger *slog.Logger) (ports.SessionFactory, error) {
	selectors, err := remote.LoadSelectors(cfg.RemoteSelectorsFile)
	if err != nil {
		return nil, err
	}

	remoteCfg := remote.Config{
		BaseURL:        cfg.RemoteBaseURL,
		TargetURL:      cfg.RemoteTargetURL,
		LocatorTimeout: cfg.LocatorTimeout,
		SettleShort:    cfg.SettleShort,
		SettleLong:     cfg.SettleLong,
		LoginSettle:    cfg.LoginSettle,
		ModuleSettle:   cfg.ModuleSettle,
		OpenAttempts:   cfg.OpenAttempts,
		OpenBackoff:    cfg.OpenBackoff,
	}

	var verifier remote.LoginVerifier
	switch strings.ToLower(strings.TrimSpace(cfg.LoginVerify)) {
	case "", "elapsed":
	case "presence":
		verifier = remote.PresenceVerifier{Locators: selectors.Module.Locators, Timeout: cfg.LoginSettle + cfg.LocatorTimeout}
	default:
		return nil, fmt.Errorf("unsupported login verification %q", cfg.LoginVerify)
	}

	driverOpts := chromedriver.Options{
		Headless: cfg.BrowserHeadless,
		ExecPath: cfg.BrowserExecPath,
	}

	return func() ports.SessionController {
		driver := chromedriver.New(driverOpts, logger)
		return remote.NewController(driver, selectors, remoteCfg, logger, remote.WithVerifier(verifier))
	}, nil
}
