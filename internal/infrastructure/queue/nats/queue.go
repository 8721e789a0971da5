package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
	"github.com/kirillkom/tombamento-bot/internal/infrastructure/resilience"
)

// Queue fans progress events out on "<subject>.<run id>" so a separate
// presentation process can follow a run.
type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	logger   *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("tombamento-bot"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		logger:   logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

type envelope struct {
	RunID  int64                `json:"run_id"`
	Event  domain.ProgressEvent `json:"event"`
	SentAt time.Time            `json:"sent_at"`
}

func encodeEnvelope(runID int64, ev domain.ProgressEvent, now time.Time) ([]byte, error) {
	return json.Marshal(envelope{RunID: runID, Event: ev, SentAt: now.UTC()})
}

func decodeEnvelope(data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, fmt.Errorf("decode progress envelope: %w", err)
	}
	if env.Event.Kind == "" {
		return envelope{}, fmt.Errorf("decode progress envelope: missing event kind")
	}
	return env, nil
}

func runSubject(prefix string, runID int64) string {
	return fmt.Sprintf("%s.%d", prefix, runID)
}

func (q *Queue) PublishProgress(ctx context.Context, runID int64, ev domain.ProgressEvent) error {
	payload, err := encodeEnvelope(runID, ev, time.Now())
	if err != nil {
		return err
	}
	subject := runSubject(q.subject, runID)

	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(err)
}

// SubscribeProgress delivers events of every run until ctx is done.
func (q *Queue) SubscribeProgress(ctx context.Context, handler func(context.Context, int64, domain.ProgressEvent) error) error {
	sub, err := q.conn.Subscribe(q.subject+".>", func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		env, err := decodeEnvelope(msg.Data)
		if err != nil {
			q.logger.Warn("progress message dropped", "subject", msg.Subject, "error", err)
			return
		}
		if err := handler(ctx, env.RunID, env.Event); err != nil {
			q.logger.Error("progress handler failed", "run_id", env.RunID, "kind", env.Event.Kind, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}
