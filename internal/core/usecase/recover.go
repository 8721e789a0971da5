package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/core/ports"
)

// TextRecovery reads the text layer of a PDF and falls back to OCR when
// the text layer is incomplete or carries no identifiers.
type TextRecovery struct {
	reader     ports.TextLayerReader
	rasterizer ports.Rasterizer
	ocr        ports.OCREngine
	logger     *slog.Logger
}

func NewTextRecovery(
	reader ports.TextLayerReader,
	rasterizer ports.Rasterizer,
	ocr ports.OCREngine,
	logger *slog.Logger,
) *TextRecovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextRecovery{
		reader:     reader,
		rasterizer: rasterizer,
		ocr:        ocr,
		logger:     logger,
	}
}

func (r *TextRecovery) Recover(ctx context.Context, path string) domain.RecoveredText {
	start := time.Now()
	result := r.recover(ctx, path)
	result.Duration = time.Since(start)
	return result
}

func (r *TextRecovery) recover(ctx context.Context, path string) domain.RecoveredText {
	pages, err := r.reader.ReadPages(ctx, path)
	switch {
	case err != nil:
		r.logger.Warn("text layer read failed", "path", path, "error", err)
	case len(pages) == 0:
		r.logger.Info("text layer empty", "path", path)
	case hasEmptyPage(pages):
		r.logger.Info("text layer incomplete", "path", path, "pages", len(pages))
	default:
		text := strings.Join(pages, domain.PageSeparator)
		if len(MatchIdentifiers(text)) > 0 {
			return domain.RecoveredText{Text: text, Pages: len(pages), Method: domain.MethodText}
		}
		r.logger.Info("text layer has no identifiers", "path", path, "pages", len(pages))
	}

	if err := ctx.Err(); err != nil {
		return domain.RecoveredText{Method: domain.MethodOCR, Err: domain.WrapError(domain.ErrRecovery, "ocr", err)}
	}
	return r.recoverWithOCR(ctx, path)
}

func (r *TextRecovery) recoverWithOCR(ctx context.Context, path string) domain.RecoveredText {
	result := domain.RecoveredText{Method: domain.MethodOCR}

	images, cleanup, err := r.rasterizer.Rasterize(ctx, path)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		result.Err = domain.WrapError(domain.ErrRecovery, "rasterize", err)
		return result
	}
	if len(images) == 0 {
		result.Err = domain.WrapError(domain.ErrRecovery, "rasterize", errors.New("document has no pages"))
		return result
	}

	texts := make([]string, 0, len(images))
	var lastErr error
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			result.Err = domain.WrapError(domain.ErrRecovery, "ocr", err)
			return result
		}
		text, err := r.ocr.Recognize(ctx, img.Path)
		if err != nil {
			lastErr = err
			result.Warnings = append(result.Warnings, fmt.Sprintf("page %d: %v", img.Number, err))
			r.logger.Warn("page recognition failed", "path", path, "page", img.Number, "error", err)
			continue
		}
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		result.Err = domain.WrapError(domain.ErrRecovery, "ocr", lastErr)
		return result
	}

	result.Pages = len(images)
	result.Text = NormalizeText(strings.Join(texts, domain.PageSeparator))
	return result
}

func hasEmptyPage(pages []string) bool {
	for _, p := range pages {
		if strings.TrimSpace(p) == "" {
			return true
		}
	}
	return false
}
