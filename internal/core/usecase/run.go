package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/core/ports"
)

// RunService opens a remote session, drives the submission engine and
// mirrors every event into the ledger, metrics and publisher.
type RunService struct {
	sessions  ports.SessionFactory
	ledger    ports.RunLedger
	engine    *SubmissionEngine
	publisher ports.ProgressPublisher
	metrics   ports.RunMetrics
	logger    *slog.Logger
	busy      atomic.Bool
}

func NewRunService(
	sessions ports.SessionFactory,
	ledger ports.RunLedger,
	engine *SubmissionEngine,
	publisher ports.ProgressPublisher,
	metrics ports.RunMetrics,
	logger *slog.Logger,
) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{
		sessions:  sessions,
		ledger:    ledger,
		engine:    engine,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Execute validates req and starts a run. Errors returned here happen
// before any item is attempted; later problems arrive as events.
func (s *RunService) Execute(ctx context.Context, req domain.RunRequest) (*domain.RunStream, error) {
	if strings.TrimSpace(req.Operator) == "" {
		return nil, fmt.Errorf("%w: operator is required", domain.ErrInvalidInput)
	}
	if len(req.Identifiers) == 0 {
		return nil, fmt.Errorf("%w: no identifiers to submit", domain.ErrInvalidInput)
	}
	if req.SourceKind == "" {
		req.SourceKind = domain.SourceExcel
	}
	if _, err := domain.ParseSourceKind(string(req.SourceKind)); err != nil {
		return nil, err
	}

	ids, err := SelectWorkingSet(ctx, s.ledger, req.Identifiers, req.Mode, req.Subset)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: working set %q is empty", domain.ErrInvalidInput, req.Mode)
	}

	if !s.busy.CompareAndSwap(false, true) {
		return nil, domain.ErrRunInProgress
	}

	session := s.sessions()
	release := func() {
		session.Close(context.WithoutCancel(ctx))
		s.busy.Store(false)
	}

	if err := session.Open(ctx); err != nil {
		release()
		return nil, domain.WrapError(domain.ErrInitialization, "open session", err)
	}
	if !session.Authenticate(ctx, req.Operator, req.Secret) {
		release()
		return nil, fmt.Errorf("authenticate %s: %w", req.Operator, domain.ErrAuthentication)
	}

	runID, err := s.ledger.StartRun(ctx, req.Operator, req.SourceKind, len(ids))
	if err != nil {
		release()
		return nil, fmt.Errorf("start ledger run: %w", err)
	}
	s.logger.Info("run started", "run_id", runID, "operator", req.Operator, "source", req.SourceKind, "total", len(ids), "mode", req.Mode)

	m := &runMirror{
		svc:     s,
		ctx:     context.WithoutCancel(ctx),
		runID:   runID,
		logger:  s.logger.With("run_id", runID),
		release: release,
	}
	events := s.engine.Run(ctx, session, ids, m.observe)

	return &domain.RunStream{RunID: runID, Total: len(ids), Events: events}, nil
}

// runMirror writes each event of one run to the ledger, metrics and
// publisher. It runs on the producer goroutine, so it sees every event
// whether or not the caller is still reading, and outcomes are recorded
// even after the caller cancels.
type runMirror struct {
	svc       *RunService
	ctx       context.Context
	runID     int64
	logger    *slog.Logger
	release   func()
	successes int
	failures  int
}

func (m *runMirror) observe(ev domain.ProgressEvent) {
	s := m.svc
	switch ev.Kind {
	case domain.EventItemAttempted:
		status, reason := domain.ItemSuccess, ""
		if ev.Success {
			m.successes++
		} else {
			m.failures++
			status, reason = domain.ItemFailure, ev.Reason
		}
		if err := s.ledger.RecordItem(m.ctx, m.runID, ev.Identifier, status, reason); err != nil {
			m.logger.Error("ledger record item failed", "identifier", ev.Identifier, "error", err)
		}
	case domain.EventCompleted, domain.EventFailed:
		if err := s.ledger.FinishRun(m.ctx, m.runID, m.successes, m.failures); err != nil {
			m.logger.Error("ledger finish run failed", "error", err)
		}
		m.logger.Info("run finished", "kind", ev.Kind, "successes", m.successes, "failures", m.failures, "reason", ev.Reason)
	}

	if s.metrics != nil {
		s.metrics.ObserveEvent(ev)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishProgress(m.ctx, m.runID, ev); err != nil {
			m.logger.Warn("progress publish failed", "kind", ev.Kind, "error", err)
		}
	}

	// The terminal event is the last one; the session is done with.
	if ev.Terminal() {
		m.release()
	}
}
