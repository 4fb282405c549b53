package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"TradeSentinel/internal/classifier"
	"TradeSentinel/internal/filter"
	"TradeSentinel/internal/metrics"
	"TradeSentinel/internal/model"
)

type worker struct {
	id        int
	run       string
	c         *Coordinator
	abandoned *atomic.Bool
}

// process handles a partition in order and returns this worker's counts.
// It stops picking up new sources once the run has been abandoned.
func (w *worker) process(ctx context.Context, sources []model.Source) model.RunResult {
	var res model.RunResult
	for _, src := range sources {
		if w.abandoned.Load() || ctx.Err() != nil {
			slog.Warn("Worker stopping early", "worker", w.id, "source", src, "stage", "fetch")
			break
		}
		res.SourcesAttempted++
		if err := w.processSource(ctx, src, &res); err != nil {
			res.SourcesFailed++
			res.Errors++
			metrics.FetchErrors.Inc()
			slog.Error("Failed to process source",
				"worker", w.id, "source", src, "stage", "fetch", "error", err)
		}
	}
	return res
}

// processSource fetches one source and processes its items. Only a fetch
// failure is returned; item failures are counted into res.
func (w *worker) processSource(ctx context.Context, src model.Source, res *model.RunResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	items, err := w.c.fetcher.Fetch(ctx, src)
	if err != nil {
		return err
	}
	res.ItemsFetched += len(items)
	metrics.ItemsFetched.Add(float64(len(items)))

	for _, item := range items {
		w.processItem(ctx, item, res)
	}
	return nil
}

func (w *worker) processItem(ctx context.Context, item model.RawItem, res *model.RunResult) {
	defer func() {
		if r := recover(); r != nil {
			res.Errors++
			slog.Error("Failed to process post",
				"worker", w.id, "source", item.Source, "stage", "classify",
				"error", fmt.Errorf("panic: %v", r), "text", preview(item.Text))
		}
	}()

	if !filter.Admit(item.Text) {
		return
	}
	res.ItemsAdmitted++
	metrics.ItemsAdmitted.Inc()

	first, err := w.c.seen.FirstSeen(ctx, item.Source, item.Text)
	if err != nil {
		slog.Warn("Dedup lookup failed, classifying anyway",
			"worker", w.id, "source", item.Source, "stage", "dedup", "error", err)
		first = true
	}
	if !first {
		res.Duplicates++
		return
	}

	sig, err := w.c.classifier.Classify(ctx, item.Source, item.Text)
	if err != nil {
		if errors.Is(err, classifier.ErrRejected) {
			res.Rejected++
			slog.Warn("Classifier verdict rejected",
				"worker", w.id, "source", item.Source, "stage", "validate", "error", err, "text", preview(item.Text))
			return
		}
		res.Errors++
		if ferr := w.c.seen.Forget(ctx, item.Source, item.Text); ferr != nil {
			slog.Warn("Failed to forget post", "source", item.Source, "stage", "dedup", "error", ferr)
		}
		slog.Error("Failed to classify post",
			"worker", w.id, "source", item.Source, "stage", "classify", "error", err, "text", preview(item.Text))
		return
	}
	if sig == nil {
		res.NoSignal++
		return
	}

	res.SignalsProduced++
	res.Signals = append(res.Signals, *sig)
	w.c.sink.Append(*sig)
	if err := w.c.recorder.RecordSignal(ctx, w.run, sig); err != nil {
		slog.Error("Failed to record signal",
			"worker", w.id, "source", item.Source, "stage", "record", "error", err)
	}
	slog.Info("Processed post",
		"worker", w.id, "source", item.Source, "symbol", sig.InstrumentSymbol,
		"direction", sig.Direction, "magnitude", sig.Magnitude, "text", preview(item.Text))
}

func preview(s string) string {
	const n = 100
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
