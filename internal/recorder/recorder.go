package recorder

import (
	"context"

	"TradeSentinel/internal/model"
)

// Recorder persists run history and a queryable copy of stored signals.
// The JSON session store stays the system of record.
type Recorder interface {
	RecordRun(ctx context.Context, run *model.RunResult) error
	RecordSignal(ctx context.Context, runID string, sig *model.TradeSignal) error
	Close() error
}

// History is implemented by recorders that can answer queries about past runs.
type History interface {
	RecentRuns(ctx context.Context, limit int) ([]model.RunResult, error)
	CountSignals(ctx context.Context, sessionDate string) (int, error)
}
