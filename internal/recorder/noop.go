package recorder

import (
	"context"

	"TradeSentinel/internal/model"
)

// NoopRecorder is a no-op implementation used when no database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(context.Context, *model.RunResult) error                { return nil }
func (n *NoopRecorder) RecordSignal(context.Context, string, *model.TradeSignal) error { return nil }
func (n *NoopRecorder) Close() error                                                   { return nil }
