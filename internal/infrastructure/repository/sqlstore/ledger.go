package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/tombamento-bot/internal/core/domain"
)

// lookupChunk bounds the IN list of a single status lookup.
const lookupChunk = 500

// Ledger records processing runs and per-identifier outcomes.
type Ledger struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewLedger(db *sql.DB, dialect Dialect) *Ledger {
	return &Ledger{
		db:      db,
		dialect: dialect,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) q(query string) string {
	return rebind(l.dialect, query)
}

func (l *Ledger) StartRun(ctx context.Context, operator string, source domain.SourceKind, total int) (int64, error) {
	var id int64
	err := l.db.QueryRowContext(ctx, l.q(`
INSERT INTO processamentos (data_hora, usuario, tipo_arquivo, total_processado, sucessos, falhas)
VALUES (?, ?, ?, ?, 0, 0)
RETURNING id
`), l.now(), operator, string(source), total).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

func (l *Ledger) RecordItem(ctx context.Context, runID int64, id domain.Identifier, status domain.ItemStatus, reason string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var exists int
	err = tx.QueryRowContext(ctx, l.q(`SELECT 1 FROM processamentos WHERE id = ?`), runID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WrapError(domain.ErrRunNotFound, "record item", fmt.Errorf("run %d", runID))
		}
		return fmt.Errorf("lookup run: %w", err)
	}

	var message sql.NullString
	if reason != "" {
		message = sql.NullString{String: reason, Valid: true}
	}
	_, err = tx.ExecContext(ctx, l.q(`
INSERT INTO tombamentos (numero, processamento_id, status, data_processamento, mensagem_erro)
VALUES (?, ?, ?, ?, ?)
`), string(id), runID, string(status), l.now(), message)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record tx: %w", err)
	}
	return nil
}

func (l *Ledger) FinishRun(ctx context.Context, runID int64, successes, failures int) error {
	res, err := l.db.ExecContext(ctx, l.q(`
UPDATE processamentos
SET sucessos = ?, falhas = ?
WHERE id = ?
`), successes, failures, runID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrRunNotFound, "finish run", fmt.Errorf("run %d", runID))
	}
	return nil
}

func (l *Ledger) AggregateStats(ctx context.Context) (domain.Stats, error) {
	var runs, items, successes, failures int64
	err := l.db.QueryRowContext(ctx, `
SELECT COUNT(*),
	COALESCE(SUM(total_processado), 0),
	COALESCE(SUM(sucessos), 0),
	COALESCE(SUM(falhas), 0)
FROM processamentos
`).Scan(&runs, &items, &successes, &failures)
	if err != nil {
		return domain.Stats{}, fmt.Errorf("aggregate stats: %w", err)
	}
	return domain.NewStats(int(runs), int(items), int(successes), int(failures)), nil
}

func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	rows, err := l.db.QueryContext(ctx, l.q(`
SELECT id, data_hora, usuario, tipo_arquivo, total_processado, sucessos, falhas
FROM processamentos
ORDER BY data_hora DESC, id DESC
LIMIT ?
`), normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Run, 0)
	for rows.Next() {
		var (
			run    domain.Run
			source string
		)
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.Operator, &source, &run.Total, &run.Successes, &run.Failures); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.SourceKind, err = domain.ParseSourceKind(source); err != nil {
			return nil, fmt.Errorf("run %d: %w", run.ID, err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func (l *Ledger) ItemsByStatus(ctx context.Context, status domain.ItemStatus, limit int) ([]domain.ItemOutcome, error) {
	query := `
SELECT t.id, t.processamento_id, t.numero, t.status, t.mensagem_erro, t.data_processamento, p.usuario
FROM tombamentos t
JOIN processamentos p ON p.id = t.processamento_id
`
	args := make([]any, 0, 2)
	if status != "" {
		query += "WHERE t.status = ?\n"
		args = append(args, string(status))
	}
	query += "ORDER BY t.data_processamento DESC, t.id DESC\nLIMIT ?"
	args = append(args, normalizeLimit(limit))

	rows, err := l.db.QueryContext(ctx, l.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ItemOutcome, 0)
	for rows.Next() {
		var (
			item    domain.ItemOutcome
			numero  string
			st      string
			message sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.RunID, &numero, &st, &message, &item.RecordedAt, &item.Operator); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		item.Identifier = domain.Identifier(numero)
		item.Status = domain.ItemStatus(st)
		item.Reason = message.String
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

// LatestStatuses returns the most recently recorded status of each id
// that has one. Ids never attempted are absent from the map.
func (l *Ledger) LatestStatuses(ctx context.Context, ids []domain.Identifier) (map[domain.Identifier]domain.ItemStatus, error) {
	out := make(map[domain.Identifier]domain.ItemStatus, len(ids))
	for start := 0; start < len(ids); start += lookupChunk {
		end := min(start+lookupChunk, len(ids))
		if err := l.latestStatusesChunk(ctx, ids[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (l *Ledger) latestStatusesChunk(ctx context.Context, ids []domain.Identifier, out map[domain.Identifier]domain.ItemStatus) error {
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, string(id))
	}

	rows, err := l.db.QueryContext(ctx, l.q(`
SELECT numero, status
FROM tombamentos
WHERE numero IN (`+placeholders(len(ids))+`)
ORDER BY data_processamento ASC, id ASC
`), args...)
	if err != nil {
		return fmt.Errorf("query latest statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var numero, status string
		if err := rows.Scan(&numero, &status); err != nil {
			return fmt.Errorf("scan latest status: %w", err)
		}
		out[domain.Identifier(numero)] = domain.ItemStatus(status)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate latest statuses: %w", err)
	}
	return nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 10
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
