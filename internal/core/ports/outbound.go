package ports

import (
	"context"
	"io"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

// TextLayerReader returns the embedded text of every page, in page order.
// A page without a text layer yields an empty string.
type TextLayerReader interface {
	ReadPages(ctx context.Context, path string) ([]string, error)
}

// Rasterizer renders every page of a document to an image on disk.
// The returned cleanup removes the images and must always be called.
type Rasterizer interface {
	Rasterize(ctx context.Context, path string) ([]domain.PageImage, func(), error)
}

// OCREngine recognizes the text of a single page image.
type OCREngine interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// TextRecoverer recovers the full text of one document. It never fails;
// problems are reported inside the result.
type TextRecoverer interface {
	Recover(ctx context.Context, path string) domain.RecoveredText
}

// RemoteSession is the part of the remote controller the submission
// engine drives once the session is authenticated.
type RemoteSession interface {
	NavigateToTarget(ctx context.Context) error
	SubmitIdentifier(ctx context.Context, id domain.Identifier) error
	Finalize(ctx context.Context) error
}

// SessionController owns the whole lifecycle of one remote session.
type SessionController interface {
	RemoteSession
	Open(ctx context.Context) error
	Authenticate(ctx context.Context, identity, secret string) bool
	Close(ctx context.Context)
}

// SessionFactory builds a fresh controller for each run.
type SessionFactory func() SessionController

// RunLedger persists runs and per-item outcomes.
type RunLedger interface {
	StartRun(ctx context.Context, operator string, source domain.SourceKind, total int) (int64, error)
	RecordItem(ctx context.Context, runID int64, id domain.Identifier, status domain.ItemStatus, reason string) error
	FinishRun(ctx context.Context, runID int64, successes, failures int) error
	AggregateStats(ctx context.Context) (domain.Stats, error)
	RecentRuns(ctx context.Context, limit int) ([]domain.Run, error)
	ItemsByStatus(ctx context.Context, status domain.ItemStatus, limit int) ([]domain.ItemOutcome, error)
	LatestStatuses(ctx context.Context, ids []domain.Identifier) (map[domain.Identifier]domain.ItemStatus, error)
}

// IdentifierTableReader loads identifiers from a hand-off table.
type IdentifierTableReader interface {
	Read(ctx context.Context, path string) ([]domain.Identifier, error)
}

// IdentifierTableWriter persists identifiers as a single-column table.
type IdentifierTableWriter interface {
	Write(ctx context.Context, path string, ids []domain.Identifier) error
	Encode(ctx context.Context, w io.Writer, format string, ids []domain.Identifier) error
}

// ObjectStorage keeps uploaded source documents until they are processed.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// ProgressPublisher fans progress events out to other processes.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, runID int64, event domain.ProgressEvent) error
}

// ProgressSubscriber receives progress events published by another process.
type ProgressSubscriber interface {
	SubscribeProgress(ctx context.Context, handler func(context.Context, int64, domain.ProgressEvent) error) error
}

// RunMetrics records submission telemetry.
type RunMetrics interface {
	ObserveEvent(event domain.ProgressEvent)
}
