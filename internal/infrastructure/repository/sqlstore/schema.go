package sqlstore

import (
	"context"
	"fmt"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS processamentos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	data_hora TIMESTAMP NOT NULL,
	usuario TEXT NOT NULL,
	tipo_arquivo TEXT NOT NULL,
	total_processado INTEGER NOT NULL DEFAULT 0,
	sucessos INTEGER NOT NULL DEFAULT 0,
	falhas INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS tombamentos (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	numero TEXT NOT NULL,
	processamento_id INTEGER NOT NULL REFERENCES processamentos(id),
	status TEXT NOT NULL,
	data_processamento TIMESTAMP NOT NULL,
	mensagem_erro TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_processamentos_data_hora ON processamentos(data_hora)`,
	`CREATE INDEX IF NOT EXISTS idx_tombamentos_numero ON tombamentos(numero)`,
	`CREATE INDEX IF NOT EXISTS idx_tombamentos_status ON tombamentos(status)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS processamentos (
	id BIGSERIAL PRIMARY KEY,
	data_hora TIMESTAMPTZ NOT NULL,
	usuario TEXT NOT NULL,
	tipo_arquivo TEXT NOT NULL,
	total_processado INTEGER NOT NULL DEFAULT 0,
	sucessos INTEGER NOT NULL DEFAULT 0,
	falhas INTEGER NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS tombamentos (
	id BIGSERIAL PRIMARY KEY,
	numero TEXT NOT NULL,
	processamento_id BIGINT NOT NULL REFERENCES processamentos(id),
	status TEXT NOT NULL,
	data_processamento TIMESTAMPTZ NOT NULL,
	mensagem_erro TEXT
)`,
	`CREATE INDEX IF NOT EXISTS idx_processamentos_data_hora ON processamentos(data_hora DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_tombamentos_numero ON tombamentos(numero)`,
	`CREATE INDEX IF NOT EXISTS idx_tombamentos_status ON tombamentos(status)`,
}

// schemaLockKey serializes concurrent Postgres bootstraps.
const schemaLockKey int64 = 2026101901

func (l *Ledger) EnsureSchema(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	statements := sqliteSchema
	if l.dialect == DialectPostgres {
		statements = postgresSchema
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
			return fmt.Errorf("acquire schema lock: %w", err)
		}
	}

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema ddl: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
