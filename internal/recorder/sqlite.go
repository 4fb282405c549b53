package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"

	"TradeSentinel/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL so that readers can query history while runs are being written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("SQLite recorder opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id                TEXT PRIMARY KEY,
			started_at        INTEGER NOT NULL,
			finished_at       INTEGER NOT NULL,
			workers           INTEGER,
			sources_attempted INTEGER,
			sources_failed    INTEGER,
			items_fetched     INTEGER,
			items_admitted    INTEGER,
			duplicates        INTEGER,
			signals_produced  INTEGER,
			no_signal         INTEGER,
			rejected          INTEGER,
			timeouts          INTEGER,
			errors            INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS signals (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            TEXT,
			observed_at       INTEGER NOT NULL,
			session_date      TEXT NOT NULL,
			origin_source     TEXT NOT NULL,
			member_name       TEXT,
			instrument_symbol TEXT NOT NULL,
			direction         TEXT NOT NULL,
			magnitude         INTEGER NOT NULL,
			source_text       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_date ON signals(session_date)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(instrument_symbol)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(ctx context.Context, run *model.RunResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(id, started_at, finished_at, workers, sources_attempted, sources_failed,
		 items_fetched, items_admitted, duplicates, signals_produced, no_signal,
		 rejected, timeouts, errors)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.StartedAt.Unix(), run.FinishedAt.Unix(), run.Workers,
		run.SourcesAttempted, run.SourcesFailed, run.ItemsFetched, run.ItemsAdmitted,
		run.Duplicates, run.SignalsProduced, run.NoSignal, run.Rejected,
		run.Timeouts, run.Errors,
	)
	return err
}

func (r *SQLiteRecorder) RecordSignal(ctx context.Context, runID string, sig *model.TradeSignal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO signals
		(run_id, observed_at, session_date, origin_source, member_name,
		 instrument_symbol, direction, magnitude, source_text)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		runID, sig.ObservedAt.Unix(), sig.ObservedAt.Format(model.DateLayout),
		string(sig.OriginSource), sig.MemberName, sig.InstrumentSymbol,
		string(sig.Direction), sig.Magnitude, sig.SourceText,
	)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (r *SQLiteRecorder) RecentRuns(ctx context.Context, limit int) ([]model.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT id, started_at, finished_at, workers,
		sources_attempted, sources_failed, items_fetched, items_admitted, duplicates,
		signals_produced, no_signal, rejected, timeouts, errors
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.RunResult
	for rows.Next() {
		var (
			run             model.RunResult
			started, finish int64
		)
		if err := rows.Scan(&run.ID, &started, &finish, &run.Workers,
			&run.SourcesAttempted, &run.SourcesFailed, &run.ItemsFetched, &run.ItemsAdmitted,
			&run.Duplicates, &run.SignalsProduced, &run.NoSignal, &run.Rejected,
			&run.Timeouts, &run.Errors); err != nil {
			return nil, err
		}
		run.StartedAt = unixTime(started)
		run.FinishedAt = unixTime(finish)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountSignals returns the number of recorded signals for a session date.
func (r *SQLiteRecorder) CountSignals(ctx context.Context, sessionDate string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signals WHERE session_date = ?`, sessionDate).Scan(&n)
	return n, err
}

func (r *SQLiteRecorder) Close() error {
	slog.Info("Closing SQLite recorder")
	return r.db.Close()
}
