package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/core/ports"
)

// DefaultPerItemEstimate approximates the settle delays of one submission.
const DefaultPerItemEstimate = 5 * time.Second

const cancelGrace = 250 * time.Millisecond

type SubmissionConfig struct {
	PerItemEstimate time.Duration
}

// SubmissionEngine drives an authenticated session through a batch and
// reports progress as a stream of events.
type SubmissionEngine struct {
	cfg    SubmissionConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewSubmissionEngine(cfg SubmissionConfig, logger *slog.Logger) *SubmissionEngine {
	if cfg.PerItemEstimate <= 0 {
		cfg.PerItemEstimate = DefaultPerItemEstimate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionEngine{cfg: cfg, logger: logger, now: time.Now}
}

// Observer sees every event the producer creates, in order, before it is
// offered to the stream. Observers run on the producer goroutine and see
// events a departed consumer never receives.
type Observer func(domain.ProgressEvent)

// Run starts the producer and returns its event stream. The stream ends
// with exactly one completed or failed event and is then closed. Cancel
// ctx to stop early: the event in flight and the cancelled terminal event
// are still offered for a short grace period, so a consumer that keeps
// reading sees both, and the producer never blocks on an abandoned stream.
func (e *SubmissionEngine) Run(ctx context.Context, session ports.RemoteSession, ids []domain.Identifier, observers ...Observer) <-chan domain.ProgressEvent {
	out := make(chan domain.ProgressEvent)
	go e.produce(ctx, session, ids, observers, out)
	return out
}

func (e *SubmissionEngine) produce(ctx context.Context, session ports.RemoteSession, ids []domain.Identifier, observers []Observer, out chan<- domain.ProgressEvent) {
	defer close(out)

	observe := func(ev domain.ProgressEvent) {
		for _, o := range observers {
			o(ev)
		}
	}
	// emit reports false when ctx ended first; ev was still offered.
	emit := func(ev domain.ProgressEvent) bool {
		observe(ev)
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			offer(out, ev)
			return false
		}
	}
	cancelled := func() {
		e.logger.Warn("batch cancelled")
		ev := domain.FailedEvent(domain.ReasonCancelled)
		observe(ev)
		offer(out, ev)
	}

	rc := domain.NewRunContext(len(ids), e.now())
	if !emit(domain.StartedEvent(rc.Total, time.Duration(rc.Total)*e.cfg.PerItemEstimate)) {
		cancelled()
		return
	}

	if err := session.NavigateToTarget(ctx); err != nil {
		if ctx.Err() != nil {
			cancelled()
			return
		}
		e.logger.Error("navigation failed", "error", err)
		emit(domain.FailedEvent("navigation: " + err.Error()))
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			cancelled()
			return
		}

		start := e.now()
		err := submitOne(ctx, session, id)
		rc.Record(err == nil)

		reason := ""
		if err != nil {
			reason = err.Error()
			e.logger.Warn("item failed", "identifier", id, "index", rc.Attempted, "error", err)
		} else {
			e.logger.Info("item submitted", "identifier", id, "index", rc.Attempted, "duration_ms", e.now().Sub(start).Milliseconds())
		}

		if !emit(domain.ItemAttemptedEvent(id, rc, err == nil, reason)) {
			cancelled()
			return
		}
	}

	if !emit(domain.FinalizingEvent()) {
		cancelled()
		return
	}
	if err := session.Finalize(ctx); err != nil {
		if ctx.Err() != nil {
			cancelled()
			return
		}
		e.logger.Error("finalize failed", "error", err)
		emit(domain.FailedEvent("finalize: " + err.Error()))
		return
	}

	elapsed := e.now().Sub(rc.StartedAt)
	e.logger.Info("batch completed", "total", rc.Total, "successes", rc.Successes, "failures", rc.Failures, "duration_ms", elapsed.Milliseconds())
	emit(domain.CompletedEvent(elapsed, rc.Total, rc.Successes))
}

// offer hands ev to a consumer that may already be gone; when nobody is
// receiving, closing the stream is the signal.
func offer(out chan<- domain.ProgressEvent, ev domain.ProgressEvent) {
	timer := time.NewTimer(cancelGrace)
	defer timer.Stop()
	select {
	case out <- ev:
	case <-timer.C:
	}
}

// submitOne turns a driver panic into an item failure so one bad item
// cannot take the batch down.
func submitOne(ctx context.Context, session ports.RemoteSession, id domain.Identifier) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrItem, "submit "+id.String(), fmt.Errorf("panic: %v", r))
		}
	}()
	return session.SubmitIdentifier(ctx, id)
}

// Summary is the folded outcome of an event stream.
type Summary struct {
	Total     int
	Attempted int
	Successes int
	Failures  int
	Failed    []domain.Identifier
	Completed bool
	Reason    string
	Elapsed   time.Duration
}

// Apply folds one event into the summary.
func (s *Summary) Apply(ev domain.ProgressEvent) {
	switch ev.Kind {
	case domain.EventStarted:
		s.Total = ev.Total
	case domain.EventItemAttempted:
		s.Attempted++
		if ev.Success {
			s.Successes++
		} else {
			s.Failures++
			s.Failed = append(s.Failed, ev.Identifier)
		}
	case domain.EventCompleted:
		s.Completed = true
		s.Elapsed = ev.Elapsed
	case domain.EventFailed:
		s.Reason = ev.Reason
	}
}

// Collect drains events and folds them into a Summary.
func Collect(events <-chan domain.ProgressEvent) Summary {
	var s Summary
	for ev := range events {
		s.Apply(ev)
	}
	return s
}
