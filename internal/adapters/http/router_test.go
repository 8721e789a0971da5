package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/tombamento-bot/internal/config"
	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/observability/logging"
	"github.com/kirillkom/tombamento-bot/internal/observability/metrics"
)

type ledgerReaderFake struct {
	stats       domain.Stats
	runs        []domain.Run
	items       []domain.ItemOutcome
	err         error
	gotLimit    int
	gotStatus   domain.ItemStatus
	statsCalled bool
}

func (f *ledgerReaderFake) AggregateStats(context.Context) (domain.Stats, error) {
	f.statsCalled = true
	return f.stats, f.err
}

func (f *ledgerReaderFake) RecentRuns(_ context.Context, limit int) ([]domain.Run, error) {
	f.gotLimit = limit
	return f.runs, f.err
}

func (f *ledgerReaderFake) ItemsByStatus(_ context.Context, status domain.ItemStatus, limit int) ([]domain.ItemOutcome, error) {
	f.gotStatus = status
	f.gotLimit = limit
	return f.items, f.err
}

type uploadExtractorFake struct {
	names  []string
	bodies []string
	result domain.ExtractionResult
	err    error
}

func (f *uploadExtractorFake) ExtractUploads(_ context.Context, uploads []domain.Upload) (domain.ExtractionResult, error) {
	for _, up := range uploads {
		raw, err := io.ReadAll(up.Body)
		if err != nil {
			return domain.ExtractionResult{}, err
		}
		f.names = append(f.names, up.Filename)
		f.bodies = append(f.bodies, string(raw))
	}
	return f.result, f.err
}

type tableEncoderFake struct {
	format string
	ids    []domain.Identifier
}

func (f *tableEncoderFake) Write(context.Context, string, []domain.Identifier) error { return nil }

func (f *tableEncoderFake) Encode(_ context.Context, w io.Writer, format string, ids []domain.Identifier) error {
	f.format = format
	f.ids = ids
	_, err := io.WriteString(w, "Numero_Tombamento\n")
	return err
}

func newTestHandler(cfg config.Config, ledger *ledgerReaderFake) http.Handler {
	return NewRouter(cfg, &uploadExtractorFake{}, ledger, &tableEncoderFake{}, WithLogger(logging.Discard())).Handler()
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{}, &ledgerReaderFake{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	ledger := &ledgerReaderFake{stats: domain.NewStats(2, 4, 3, 1)}
	handler := newTestHandler(config.Config{}, ledger)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var got domain.Stats
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if got.TotalItems != 4 || got.SuccessRate != 75 {
		t.Fatalf("unexpected stats %+v", got)
	}
}

func TestStatsRejectsPost(t *testing.T) {
	ledger := &ledgerReaderFake{}
	handler := newTestHandler(config.Config{}, ledger)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/stats", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
	if ledger.statsCalled {
		t.Fatal("ledger must not be queried")
	}
}

func TestRecentRunsIncludesSuccessRate(t *testing.T) {
	ledger := &ledgerReaderFake{runs: []domain.Run{{
		ID: 3, StartedAt: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), Operator: "op",
		SourceKind: domain.SourcePDF, Total: 4, Successes: 1, Failures: 3,
	}}}
	handler := newTestHandler(config.Config{}, ledger)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=5", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ledger.gotLimit != 5 {
		t.Fatalf("expected limit 5, got %d", ledger.gotLimit)
	}

	var got struct {
		Runs []struct {
			ID          int64   `json:"id"`
			SuccessRate float64 `json:"success_rate"`
		} `json:"runs"`
	}
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(got.Runs) != 1 || got.Runs[0].ID != 3 || got.Runs[0].SuccessRate != 25 {
		t.Fatalf("unexpected runs %+v", got.Runs)
	}
}

func TestRecentRunsRejectsBadLimit(t *testing.T) {
	handler := newTestHandler(config.Config{}, &ledgerReaderFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=-1", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestItemsFiltersByStatus(t *testing.T) {
	ledger := &ledgerReaderFake{items: []domain.ItemOutcome{{ID: 1, Identifier: "12345.678.901", Status: domain.ItemFailure}}}
	handler := newTestHandler(config.Config{}, ledger)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/items?status=failure", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ledger.gotStatus != domain.ItemFailure || ledger.gotLimit != defaultListLimit {
		t.Fatalf("unexpected query status=%q limit=%d", ledger.gotStatus, ledger.gotLimit)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/items?status=maybe", nil))
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", res.Code)
	}
}

func TestLedgerErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrTemporary, "stats", errors.New("db locked")), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrRunNotFound, "stats", errors.New("run 9")), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		handler := newTestHandler(config.Config{}, &ledgerReaderFake{err: tc.err})
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
		if res.Code != tc.want {
			t.Fatalf("error %v: expected %d, got %d", tc.err, tc.want, res.Code)
		}
	}
}

func TestExtractionsReturnsJSON(t *testing.T) {
	extractor := &uploadExtractorFake{result: domain.ExtractionResult{
		Identifiers: []domain.Identifier{"12345.678.901"},
		Documents: []domain.DocumentReport{
			{Path: "a.pdf", Method: domain.MethodText, Found: 1},
			{Path: "b.pdf", Error: "recover: broken"},
		},
	}}
	handler := NewRouter(config.Config{}, extractor, &ledgerReaderFake{}, &tableEncoderFake{}, WithLogger(logging.Discard())).Handler()

	body, contentType := multipartBody(t, map[string]string{"a.pdf": "%PDF-a"})
	req := httptest.NewRequest(http.MethodPost, "/v1/extractions", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if len(extractor.names) != 1 || extractor.names[0] != "a.pdf" || extractor.bodies[0] != "%PDF-a" {
		t.Fatalf("unexpected uploads %v %v", extractor.names, extractor.bodies)
	}

	var got extractionResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode extraction: %v", err)
	}
	if len(got.Identifiers) != 1 || got.Failed != 1 {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestExtractionsEncodesTable(t *testing.T) {
	extractor := &uploadExtractorFake{result: domain.ExtractionResult{Identifiers: []domain.Identifier{"12345.678.901"}}}
	tables := &tableEncoderFake{}
	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	handler := NewRouter(config.Config{}, extractor, &ledgerReaderFake{}, tables,
		WithLogger(logging.Discard()),
		WithMetrics(httpMetrics, httpMetrics.Handler()),
	).Handler()

	body, contentType := multipartBody(t, map[string]string{"a.pdf": "%PDF-a"})
	req := httptest.NewRequest(http.MethodPost, "/v1/extractions?format=csv", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if tables.format != "csv" || len(tables.ids) != 1 {
		t.Fatalf("unexpected encode call format=%q ids=%v", tables.format, tables.ids)
	}
	if !strings.Contains(res.Header().Get("Content-Disposition"), "numeros_tombamento.csv") {
		t.Fatalf("unexpected disposition %q", res.Header().Get("Content-Disposition"))
	}

	metricsRes := httptest.NewRecorder()
	handler.ServeHTTP(metricsRes, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(metricsRes.Body.String(), "tombamento_http_uploaded_bytes_total") {
		t.Fatal("expected upload bytes metric to be exposed")
	}
}

func TestExtractionsValidation(t *testing.T) {
	handler := newTestHandler(config.Config{}, &ledgerReaderFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/extractions", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}

	body, contentType := multipartBody(t, map[string]string{"a.pdf": "x"})
	req := httptest.NewRequest(http.MethodPost, "/v1/extractions?format=pdf", body)
	req.Header.Set("Content-Type", contentType)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown format, got %d", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/extractions", strings.NewReader("not multipart"))
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without multipart body, got %d", res.Code)
	}
}

func TestExtractionsRejectsOversizedUpload(t *testing.T) {
	handler := newTestHandler(config.Config{UploadMaxBytes: 64}, &ledgerReaderFake{})

	body, contentType := multipartBody(t, map[string]string{"a.pdf": strings.Repeat("x", 1024)})
	req := httptest.NewRequest(http.MethodPost, "/v1/extractions", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", res.Code)
	}
}
