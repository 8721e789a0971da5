package usecase

import (
	"context"
	"log/slog"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/core/ports"
)

// ExtractionPipeline turns a batch of documents into one ordered,
// deduplicated identifier list.
type ExtractionPipeline struct {
	recovery ports.TextRecoverer
	logger   *slog.Logger
}

func NewExtractionPipeline(recovery ports.TextRecoverer, logger *slog.Logger) *ExtractionPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionPipeline{recovery: recovery, logger: logger}
}

func (p *ExtractionPipeline) Extract(ctx context.Context, paths []string) domain.ExtractionResult {
	result := domain.ExtractionResult{Documents: make([]domain.DocumentReport, 0, len(paths))}
	var found []domain.Identifier

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			result.Documents = append(result.Documents, domain.DocumentReport{Path: path, Error: err.Error()})
			continue
		}

		recovered := p.recovery.Recover(ctx, path)
		report := domain.DocumentReport{
			Path:       path,
			Method:     recovered.Method,
			Pages:      recovered.Pages,
			Warnings:   recovered.Warnings,
			DurationMS: recovered.Duration.Milliseconds(),
		}
		if recovered.Err != nil {
			report.Error = recovered.Err.Error()
			p.logger.Error("document recovery failed", "path", path, "error", recovered.Err)
			result.Documents = append(result.Documents, report)
			continue
		}

		ids := MatchIdentifiers(recovered.Text)
		report.Found = len(ids)
		found = append(found, ids...)
		result.Documents = append(result.Documents, report)

		p.logger.Info("document processed",
			"path", path,
			"method", recovered.Method,
			"pages", recovered.Pages,
			"found", len(ids),
			"duration_ms", report.DurationMS,
		)
	}

	result.Identifiers = Deduplicate(found)
	return result
}
