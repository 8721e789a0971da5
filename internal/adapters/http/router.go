package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/tombamento-bot/internal/config"
	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/core/ports"
	"github.com/kirillkom/tombamento-bot/internal/observability/metrics"
)

const (
	serviceName        = "tombamento-api"
	defaultListLimit   = 10
	multipartMemory    = 8 << 20
	handoffFilename    = "numeros_tombamento"
	formatJSON         = "json"
	contentTypeXLSX    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV     = "text/csv; charset=utf-8"
	uploadFormField    = "file"
	defaultUploadLimit = 50 << 20
)

// Router serves the read-only status API over the run ledger plus the
// upload extraction endpoint.
type Router struct {
	cfg       config.Config
	extractor ports.UploadExtractor
	ledger    ports.LedgerReader
	tables    ports.IdentifierTableWriter
	logger    *slog.Logger

	httpMetrics    *metrics.HTTPServerMetrics
	metricsHandler http.Handler
}

type RouterOption func(*Router)

// WithMetrics instruments every request and exposes handler on /metrics.
func WithMetrics(m *metrics.HTTPServerMetrics, handler http.Handler) RouterOption {
	return func(rt *Router) {
		rt.httpMetrics = m
		rt.metricsHandler = handler
	}
}

func WithLogger(logger *slog.Logger) RouterOption {
	return func(rt *Router) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

func NewRouter(
	cfg config.Config,
	extractor ports.UploadExtractor,
	ledger ports.LedgerReader,
	tables ports.IdentifierTableWriter,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:       cfg,
		extractor: extractor,
		ledger:    ledger,
		tables:    tables,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/stats", rt.stats)
	mux.HandleFunc("/v1/runs", rt.recentRuns)
	mux.HandleFunc("/v1/items", rt.items)
	mux.HandleFunc("/v1/extractions", rt.extract)
	if rt.metricsHandler != nil {
		mux.Handle("/metrics", rt.metricsHandler)
	}

	var handler http.Handler = mux
	if rt.httpMetrics != nil {
		handler = rt.httpMetrics.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIQueueWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	stats, err := rt.ledger.AggregateStats(r.Context())
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type runView struct {
	domain.Run
	SuccessRate float64 `json:"success_rate"`
}

func (rt *Router) recentRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	runs, err := rt.ledger.RecentRuns(r.Context(), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, runView{Run: run, SuccessRate: run.SuccessRate()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": views})
}

func (rt *Router) items(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	query := r.URL.Query()
	status, err := domain.ParseItemStatus(strings.TrimSpace(query.Get("status")))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	items, err := rt.ledger.ItemsByStatus(r.Context(), status, limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

type extractionResponse struct {
	Identifiers []domain.Identifier     `json:"identifiers"`
	Documents   []domain.DocumentReport `json:"documents"`
	Failed      int                     `json:"failed"`
}

func (rt *Router) extract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = formatJSON
	}
	contentType, ok := tableContentType(format)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unsupported format %q", format)})
		return
	}

	limit := rt.cfg.UploadMaxBytes
	if limit <= 0 {
		limit = defaultUploadLimit
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[uploadFormField]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}

	uploads, closeAll, err := openUploads(headers)
	defer closeAll()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if rt.httpMetrics != nil {
		for _, h := range headers {
			rt.httpMetrics.RecordUpload(serviceName, h.Size)
		}
	}

	result, err := rt.extractor.ExtractUploads(r.Context(), uploads)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	if format == formatJSON {
		writeJSON(w, http.StatusOK, extractionResponse{
			Identifiers: result.Identifiers,
			Documents:   result.Documents,
			Failed:      len(result.Failed()),
		})
		return
	}

	var buf bytes.Buffer
	if err := rt.tables.Encode(r.Context(), &buf, format, result.Identifiers); err != nil {
		rt.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", handoffFilename+"."+format))
	w.Header().Set("X-Identifiers-Found", strconv.Itoa(len(result.Identifiers)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func openUploads(headers []*multipart.FileHeader) ([]domain.Upload, func(), error) {
	files := make([]io.Closer, 0, len(headers))
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}

	uploads := make([]domain.Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			return nil, closeAll, fmt.Errorf("open upload %q: %w", h.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, domain.Upload{Filename: h.Filename, Body: f})
	}
	return uploads, closeAll, nil
}

func tableContentType(format string) (string, bool) {
	switch format {
	case formatJSON:
		return "application/json", true
	case "xlsx":
		return contentTypeXLSX, true
	case "csv":
		return contentTypeCSV, true
	default:
		return "", false
	}
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput)
	}
	return n, nil
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
