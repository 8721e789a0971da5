package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/tombamento-bot/internal/config"
	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/observability/logging"
)

type extractorFake struct {
	paths  []string
	result domain.ExtractionResult
}

func (f *extractorFake) Extract(_ context.Context, paths []string) domain.ExtractionResult {
	f.paths = paths
	return f.result
}

type tablesFake struct {
	readIDs   []domain.Identifier
	readErr   error
	readPath  string
	written   []domain.Identifier
	writePath string
}

func (f *tablesFake) Read(_ context.Context, path string) ([]domain.Identifier, error) {
	f.readPath = path
	return f.readIDs, f.readErr
}

func (f *tablesFake) Write(_ context.Context, path string, ids []domain.Identifier) error {
	f.writePath = path
	f.written = ids
	return nil
}

func (f *tablesFake) Encode(context.Context, io.Writer, string, []domain.Identifier) error {
	return nil
}

type runnerFake struct {
	req    domain.RunRequest
	events []domain.ProgressEvent
	err    error
}

func (f *runnerFake) Execute(_ context.Context, req domain.RunRequest) (*domain.RunStream, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan domain.ProgressEvent, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return &domain.RunStream{RunID: 11, Total: len(req.Identifiers), Events: ch}, nil
}

type ledgerFake struct {
	gotStatus domain.ItemStatus
}

func (f *ledgerFake) AggregateStats(context.Context) (domain.Stats, error) {
	return domain.NewStats(3, 10, 8, 2), nil
}

func (f *ledgerFake) RecentRuns(context.Context, int) ([]domain.Run, error) {
	return []domain.Run{{ID: 3, StartedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), Operator: "op", SourceKind: domain.SourceExcel, Total: 4, Successes: 3, Failures: 1}}, nil
}

func (f *ledgerFake) ItemsByStatus(_ context.Context, status domain.ItemStatus, _ int) ([]domain.ItemOutcome, error) {
	f.gotStatus = status
	return []domain.ItemOutcome{{RunID: 3, Identifier: "12345.678.901", Status: domain.ItemFailure, Reason: "timeout"}}, nil
}

type harness struct {
	deps   *Deps
	out    bytes.Buffer
	errOut bytes.Buffer
	closed bool
}

func newHarness() *harness {
	h := &harness{}
	h.deps = &Deps{
		Extractor: &extractorFake{},
		Tables:    &tablesFake{},
		Runner:    &runnerFake{},
		Ledger:    &ledgerFake{},
		Close:     func() { h.closed = true },
	}
	return h
}

func (h *harness) run(t *testing.T, cfg config.Config, args ...string) error {
	t.Helper()
	root := NewRootCommand(Options{
		Config: cfg,
		Logger: logging.Discard(),
		Open:   func(context.Context) (*Deps, error) { return h.deps, nil },
		Out:    &h.out,
		Err:    &h.errOut,
	})
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func writePDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("%PDF-1.4"), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCollectPDFsExpandsDirectories(t *testing.T) {
	dir := t.TempDir()
	writePDF(t, dir, "b.PDF")
	writePDF(t, dir, "a.pdf")
	writePDF(t, dir, "notes.txt")
	explicit := writePDF(t, t.TempDir(), "scan.bin")

	got, err := collectPDFs([]string{dir, explicit})
	if err != nil {
		t.Fatalf("collectPDFs() error = %v", err)
	}
	want := []string{filepath.Join(dir, "a.pdf"), filepath.Join(dir, "b.PDF"), explicit}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestCollectPDFsRejectsMissingAndEmpty(t *testing.T) {
	if _, err := collectPDFs([]string{filepath.Join(t.TempDir(), "missing.pdf")}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing file, got %v", err)
	}
	if _, err := collectPDFs([]string{t.TempDir()}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty dir, got %v", err)
	}
}

func TestExtractWritesHandoffTable(t *testing.T) {
	h := newHarness()
	extractor := h.deps.Extractor.(*extractorFake)
	extractor.result = domain.ExtractionResult{
		Identifiers: []domain.Identifier{"12345.678.901", "22222.333.444"},
		Documents:   []domain.DocumentReport{{Path: "/x/a.pdf", Method: domain.MethodOCR, Pages: 2, Found: 2}},
	}
	pdf := writePDF(t, t.TempDir(), "a.pdf")

	if err := h.run(t, config.Config{}, "extract", pdf); err != nil {
		t.Fatalf("extract error = %v", err)
	}
	tables := h.deps.Tables.(*tablesFake)
	if tables.writePath != defaultHandoffFile || len(tables.written) != 2 {
		t.Fatalf("unexpected write path=%q ids=%v", tables.writePath, tables.written)
	}
	if !strings.Contains(h.out.String(), "pdf-ocr") {
		t.Fatalf("expected document report, got %q", h.out.String())
	}
	if !h.closed {
		t.Fatal("deps must be closed")
	}
}

func TestExtractFailsWithoutIdentifiers(t *testing.T) {
	h := newHarness()
	pdf := writePDF(t, t.TempDir(), "a.pdf")

	if err := h.run(t, config.Config{}, "extract", "--out", "x.csv", pdf); err == nil {
		t.Fatal("expected error when nothing is found")
	}
	if h.deps.Tables.(*tablesFake).writePath != "" {
		t.Fatal("nothing must be written")
	}
}

func TestSubmitFromTable(t *testing.T) {
	h := newHarness()
	h.deps.Tables.(*tablesFake).readIDs = []domain.Identifier{"12345.678.901", "22222.333.444"}
	runner := h.deps.Runner.(*runnerFake)
	rc := domain.NewRunContext(2, time.Now())
	rc.Record(true)
	first := domain.ItemAttemptedEvent("12345.678.901", rc, true, "")
	rc.Record(false)
	second := domain.ItemAttemptedEvent("22222.333.444", rc, false, "item: not found")
	runner.events = []domain.ProgressEvent{
		domain.StartedEvent(2, 10*time.Second),
		first,
		second,
		domain.FinalizingEvent(),
		domain.CompletedEvent(9*time.Second, 2, 1),
	}

	cfg := config.Config{Operator: "operador", Secret: "s3cret"}
	if err := h.run(t, cfg, "submit", "--table", "in.xlsx", "--mode", "failures", "--no-progress"); err != nil {
		t.Fatalf("submit error = %v", err)
	}
	if runner.req.Operator != "operador" || runner.req.Secret != "s3cret" {
		t.Fatalf("unexpected credentials in request %+v", runner.req)
	}
	if runner.req.Mode != domain.ModeFailures || runner.req.SourceKind != domain.SourceExcel {
		t.Fatalf("unexpected request %+v", runner.req)
	}
	if !strings.Contains(h.out.String(), "failed: 22222.333.444") {
		t.Fatalf("expected failed identifier in summary, got %q", h.out.String())
	}
	if !strings.Contains(h.errOut.String(), "[2/2] 22222.333.444 FAIL") {
		t.Fatalf("expected per-item progress lines, got %q", h.errOut.String())
	}
}

func TestSubmitIndexesImplySubset(t *testing.T) {
	h := newHarness()
	h.deps.Tables.(*tablesFake).readIDs = []domain.Identifier{"12345.678.901"}
	runner := h.deps.Runner.(*runnerFake)
	runner.events = []domain.ProgressEvent{domain.StartedEvent(1, 0), domain.FailedEvent(domain.ReasonCancelled)}

	cfg := config.Config{Operator: "op", Secret: "x"}
	err := h.run(t, cfg, "submit", "-t", "in.csv", "--index", "0", "--no-progress")
	if err == nil || !strings.Contains(err.Error(), "cancelled") {
		t.Fatalf("expected incomplete run error, got %v", err)
	}
	if runner.req.Mode != domain.ModeSubset || len(runner.req.Subset) != 1 {
		t.Fatalf("unexpected request %+v", runner.req)
	}
}

func TestSubmitFromPDFs(t *testing.T) {
	h := newHarness()
	h.deps.Extractor.(*extractorFake).result = domain.ExtractionResult{Identifiers: []domain.Identifier{"12345.678.901"}}
	runner := h.deps.Runner.(*runnerFake)
	runner.events = []domain.ProgressEvent{domain.StartedEvent(1, 0), domain.CompletedEvent(time.Second, 1, 1)}
	dir := t.TempDir()
	writePDF(t, dir, "a.pdf")

	if err := h.run(t, config.Config{Operator: "op", Secret: "x"}, "submit", "--pdf", dir); err != nil {
		t.Fatalf("submit error = %v", err)
	}
	if runner.req.SourceKind != domain.SourcePDF || len(runner.req.Identifiers) != 1 {
		t.Fatalf("unexpected request %+v", runner.req)
	}
}

func TestSubmitValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  config.Config
		args []string
	}{
		{"no source", config.Config{Secret: "x"}, []string{"submit"}},
		{"both sources", config.Config{Secret: "x"}, []string{"submit", "--table", "a.xlsx", "--pdf", "a.pdf"}},
		{"bad mode", config.Config{Secret: "x"}, []string{"submit", "--table", "a.xlsx", "--mode", "later"}},
		{"no secret", config.Config{}, []string{"submit", "--table", "a.xlsx"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			err := h.run(t, tc.cfg, tc.args...)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if h.deps.Runner.(*runnerFake).req.Operator != "" {
				t.Fatal("runner must not be called")
			}
		})
	}
}

func TestSubmitPropagatesRunnerError(t *testing.T) {
	h := newHarness()
	h.deps.Tables.(*tablesFake).readIDs = []domain.Identifier{"12345.678.901"}
	h.deps.Runner.(*runnerFake).err = domain.WrapError(domain.ErrAuthentication, "execute", errors.New("login rejected"))

	err := h.run(t, config.Config{Operator: "op", Secret: "x"}, "submit", "--table", "a.xlsx")
	if !errors.Is(err, domain.ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestStatsPrintsRunsAndItems(t *testing.T) {
	h := newHarness()
	if err := h.run(t, config.Config{}, "stats", "--items", "5", "--status", "failure"); err != nil {
		t.Fatalf("stats error = %v", err)
	}
	out := h.out.String()
	for _, want := range []string{"success rate: 80.0%", "75.0%", "12345.678.901", "timeout"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if h.deps.Ledger.(*ledgerFake).gotStatus != domain.ItemFailure {
		t.Fatal("expected status filter to reach the ledger")
	}
}

func TestWatchRequiresBroker(t *testing.T) {
	h := newHarness()
	err := h.run(t, config.Config{}, "watch")
	if err == nil || !strings.Contains(err.Error(), "NATS_URL") {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	rc := domain.NewRunContext(4, time.Now())
	rc.Record(true)
	printEvent(&buf, 7, domain.ItemAttemptedEvent("12345.678.901", rc, true, ""))
	printEvent(&buf, 7, domain.FailedEvent("navigation: no module link"))

	want := "run 7 [1/4 25%] 12345.678.901 ok\nrun 7 failed: navigation: no module link\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}
