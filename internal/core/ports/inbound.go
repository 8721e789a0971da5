package ports

import (
	"context"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

// IdentifierExtractor is the inbound contract for document batch extraction.
type IdentifierExtractor interface {
	Extract(ctx context.Context, paths []string) domain.ExtractionResult
}

// UploadExtractor extracts identifiers from documents that are not on local disk yet.
type UploadExtractor interface {
	ExtractUploads(ctx context.Context, uploads []domain.Upload) (domain.ExtractionResult, error)
}

// BatchRunner is the inbound contract for starting a submission run.
type BatchRunner interface {
	Execute(ctx context.Context, req domain.RunRequest) (*domain.RunStream, error)
}

// LedgerReader is the inbound read model for run statistics.
type LedgerReader interface {
	AggregateStats(ctx context.Context) (domain.Stats, error)
	RecentRuns(ctx context.Context, limit int) ([]domain.Run, error)
	ItemsByStatus(ctx context.Context, status domain.ItemStatus, limit int) ([]domain.ItemOutcome, error)
}
