package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/core/ports"
)

// UploadExtractionUseCase stages uploaded documents on storage, runs the
// extraction pipeline over them and removes the staged copies.
type UploadExtractionUseCase struct {
	storage   ports.ObjectStorage
	extractor ports.IdentifierExtractor
	logger    *slog.Logger
}

func NewUploadExtractionUseCase(
	storage ports.ObjectStorage,
	extractor ports.IdentifierExtractor,
	logger *slog.Logger,
) *UploadExtractionUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadExtractionUseCase{storage: storage, extractor: extractor, logger: logger}
}

func (uc *UploadExtractionUseCase) ExtractUploads(ctx context.Context, uploads []domain.Upload) (domain.ExtractionResult, error) {
	if len(uploads) == 0 {
		return domain.ExtractionResult{}, fmt.Errorf("%w: no documents uploaded", domain.ErrInvalidInput)
	}

	keys := make([]string, 0, len(uploads))
	defer func() {
		for _, key := range keys {
			if err := uc.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
				uc.logger.Warn("staged upload cleanup failed", "key", key, "error", err)
			}
		}
	}()

	paths := make([]string, 0, len(uploads))
	names := make(map[string]string, len(uploads))
	for _, up := range uploads {
		key := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(up.Filename))
		path, err := uc.storage.Save(ctx, key, up.Body)
		if err != nil {
			return domain.ExtractionResult{}, fmt.Errorf("save upload %q: %w", up.Filename, err)
		}
		keys = append(keys, key)
		paths = append(paths, path)
		names[path] = up.Filename
	}

	result := uc.extractor.Extract(ctx, paths)
	for i := range result.Documents {
		if name, ok := names[result.Documents[i].Path]; ok {
			result.Documents[i].Path = name
		}
	}
	return result, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "/" {
		return "document.pdf"
	}
	return base
}
