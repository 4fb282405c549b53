package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"TradeSentinel/internal/model"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	DSN        string `yaml:"dsn"`
	MaxConns   int    `yaml:"max_conns"`
	ViaBouncer bool   `yaml:"via_bouncer"`
}

// PostgresRecorder persists run history to PostgreSQL.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder connects to PostgreSQL and creates the history tables.
func NewPostgresRecorder(ctx context.Context, cfg PostgresConfig) (*PostgresRecorder, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 4
	}
	pcfg.MaxConns = int32(cfg.MaxConns)
	if cfg.ViaBouncer {
		pcfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	r := &PostgresRecorder{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("Postgres recorder connected")
	return r, nil
}

func (r *PostgresRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id                TEXT PRIMARY KEY,
			started_at        TIMESTAMPTZ NOT NULL,
			finished_at       TIMESTAMPTZ NOT NULL,
			workers           INT,
			sources_attempted INT,
			sources_failed    INT,
			items_fetched     INT,
			items_admitted    INT,
			duplicates        INT,
			signals_produced  INT,
			no_signal         INT,
			rejected          INT,
			timeouts          INT,
			errors            INT
		)`,
		`CREATE TABLE IF NOT EXISTS signals (
			id                BIGSERIAL PRIMARY KEY,
			run_id            TEXT,
			observed_at       TIMESTAMPTZ NOT NULL,
			session_date      TEXT NOT NULL,
			origin_source     TEXT NOT NULL,
			member_name       TEXT,
			instrument_symbol TEXT NOT NULL,
			direction         TEXT NOT NULL,
			magnitude         SMALLINT NOT NULL CHECK (magnitude BETWEEN 1 AND 10),
			source_text       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_date ON signals(session_date)`,
	}
	for _, s := range stmts {
		if _, err := r.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *PostgresRecorder) RecordRun(ctx context.Context, run *model.RunResult) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO runs
		(id, started_at, finished_at, workers, sources_attempted, sources_failed,
		 items_fetched, items_admitted, duplicates, signals_produced, no_signal,
		 rejected, timeouts, errors)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO NOTHING`,
		run.ID, run.StartedAt, run.FinishedAt, run.Workers,
		run.SourcesAttempted, run.SourcesFailed, run.ItemsFetched, run.ItemsAdmitted,
		run.Duplicates, run.SignalsProduced, run.NoSignal, run.Rejected,
		run.Timeouts, run.Errors,
	)
	return err
}

func (r *PostgresRecorder) RecordSignal(ctx context.Context, runID string, sig *model.TradeSignal) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO signals
		(run_id, observed_at, session_date, origin_source, member_name,
		 instrument_symbol, direction, magnitude, source_text)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		runID, sig.ObservedAt, sig.ObservedAt.Format(model.DateLayout),
		string(sig.OriginSource), sig.MemberName, sig.InstrumentSymbol,
		string(sig.Direction), sig.Magnitude, sig.SourceText,
	)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (r *PostgresRecorder) RecentRuns(ctx context.Context, limit int) ([]model.RunResult, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, started_at, finished_at, workers,
		sources_attempted, sources_failed, items_fetched, items_admitted, duplicates,
		signals_produced, no_signal, rejected, timeouts, errors
		FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunResult
	for rows.Next() {
		var run model.RunResult
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Workers,
			&run.SourcesAttempted, &run.SourcesFailed, &run.ItemsFetched, &run.ItemsAdmitted,
			&run.Duplicates, &run.SignalsProduced, &run.NoSignal, &run.Rejected,
			&run.Timeouts, &run.Errors); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountSignals returns the number of recorded signals for a session date.
func (r *PostgresRecorder) CountSignals(ctx context.Context, sessionDate string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signals WHERE session_date = $1`, sessionDate).Scan(&n)
	return n, err
}

func (r *PostgresRecorder) Close() error {
	r.pool.Close()
	return nil
}
