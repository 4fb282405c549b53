// Package pipeline runs one fetch-filter-classify-store pass over the tracked sources.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"TradeSentinel/internal/collector"
	"TradeSentinel/internal/dedup"
	"TradeSentinel/internal/metrics"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/recorder"
)

var (
	// ErrNoSources is returned when a run is started with an empty source list.
	ErrNoSources = errors.New("no sources to analyze")
	// ErrRunFailed is returned when not a single source could be fetched.
	ErrRunFailed = errors.New("every source failed or timed out")
)

// Classifier turns an admitted post into a trade signal.
type Classifier interface {
	Classify(ctx context.Context, source model.Source, text string) (*model.TradeSignal, error)
	Ping(ctx context.Context) error
}

// Sink receives produced signals. It must be safe for concurrent use and must not fail.
type Sink interface {
	Append(sig model.TradeSignal)
}

// SourceLoader returns the ordered source list for a run.
type SourceLoader func() ([]model.Source, error)

// Config controls worker fan-out and the run deadline.
type Config struct {
	MaxWorkers int
	Deadline   time.Duration
	// Preflight checks the classifier before any worker starts.
	Preflight      bool
	PreflightLimit time.Duration
}

// Coordinator orchestrates analysis runs.
type Coordinator struct {
	cfg        Config
	loadSrc    SourceLoader
	fetcher    collector.Fetcher
	classifier Classifier
	sink       Sink
	seen       dedup.Seen
	recorder   recorder.Recorder
	loc        *time.Location
	now        func() time.Time
}

// Deps bundles the collaborators of a Coordinator.
type Deps struct {
	Sources    SourceLoader
	Fetcher    collector.Fetcher
	Classifier Classifier
	Sink       Sink
	Seen       dedup.Seen
	Recorder   recorder.Recorder
	Location   *time.Location
}

// NewCoordinator creates a Coordinator. Seen and Recorder are optional.
func NewCoordinator(cfg Config, d Deps) *Coordinator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 5
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 5 * time.Minute
	}
	if cfg.PreflightLimit <= 0 {
		cfg.PreflightLimit = 30 * time.Second
	}
	if d.Seen == nil {
		d.Seen = dedup.Noop{}
	}
	if d.Recorder == nil {
		d.Recorder = recorder.NewNoopRecorder()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	return &Coordinator{
		cfg:        cfg,
		loadSrc:    d.Sources,
		fetcher:    d.Fetcher,
		classifier: d.Classifier,
		sink:       d.Sink,
		seen:       d.Seen,
		recorder:   d.Recorder,
		loc:        d.Location,
		now:        time.Now,
	}
}

// RunScheduled loads the source list and runs the analysis over it.
func (c *Coordinator) RunScheduled(ctx context.Context) (*model.RunResult, error) {
	if c.loadSrc == nil {
		return nil, fmt.Errorf("load sources: %w", ErrNoSources)
	}
	sources, err := c.loadSrc()
	if err != nil {
		metrics.RunsTotal.WithLabelValues("precondition").Inc()
		return nil, fmt.Errorf("load sources: %w", err)
	}
	return c.Run(ctx, sources)
}

// Run fans sources out to workers and waits for them up to the run deadline.
func (c *Coordinator) Run(ctx context.Context, sources []model.Source) (*model.RunResult, error) {
	if len(sources) == 0 {
		metrics.RunsTotal.WithLabelValues("precondition").Inc()
		slog.Error("Analysis aborted", "stage", "precondition", "error", ErrNoSources)
		return nil, ErrNoSources
	}

	if c.cfg.Preflight {
		pctx, cancel := context.WithTimeout(ctx, c.cfg.PreflightLimit)
		err := c.classifier.Ping(pctx)
		cancel()
		if err != nil {
			metrics.RunsTotal.WithLabelValues("precondition").Inc()
			slog.Error("Analysis aborted", "stage", "preflight", "error", err)
			return nil, fmt.Errorf("classifier preflight: %w", err)
		}
	}

	partitions := Partition(sources, c.cfg.MaxWorkers)
	result := &model.RunResult{
		ID:        uuid.NewString(),
		StartedAt: c.now().In(c.loc),
		Workers:   len(partitions),
	}
	slog.Info("Starting analysis",
		"run_id", result.ID, "sources", len(sources), "workers", len(partitions), "deadline", c.cfg.Deadline)

	var abandoned atomic.Bool
	deltas := make(chan model.RunResult, len(partitions))
	for i, part := range partitions {
		w := &worker{id: i, run: result.ID, c: c, abandoned: &abandoned}
		go func(part []model.Source) {
			deltas <- w.process(ctx, part)
		}(part)
	}

	timer := time.NewTimer(c.cfg.Deadline)
	defer timer.Stop()

	received := 0
wait:
	for received < len(partitions) {
		select {
		case d := <-deltas:
			result.Merge(d)
			received++
		case <-timer.C:
			break wait
		}
	}
	if received < len(partitions) {
		abandoned.Store(true)
		result.Timeouts = len(partitions) - received
		metrics.WorkerTimeouts.Add(float64(result.Timeouts))
		slog.Warn("Run deadline reached, abandoning workers",
			"run_id", result.ID, "stage", "deadline", "timeouts", result.Timeouts)
	}

	result.FinishedAt = c.now().In(c.loc)
	metrics.RunDuration.Observe(result.Duration().Seconds())

	var runErr error
	if result.SourcesAttempted-result.SourcesFailed == 0 {
		runErr = ErrRunFailed
		metrics.RunsTotal.WithLabelValues("failed").Inc()
	} else {
		metrics.RunsTotal.WithLabelValues("success").Inc()
		metrics.LastSuccessfulRun.Set(float64(result.FinishedAt.Unix()))
	}

	if err := c.recorder.RecordRun(context.WithoutCancel(ctx), result); err != nil {
		slog.Error("Failed to record run", "run_id", result.ID, "stage", "record", "error", err)
	}

	slog.Info("Analysis complete",
		"run_id", result.ID,
		"duration", result.Duration().Round(time.Millisecond),
		"sources", result.SourcesAttempted,
		"sources_failed", result.SourcesFailed,
		"fetched", result.ItemsFetched,
		"admitted", result.ItemsAdmitted,
		"duplicates", result.Duplicates,
		"signals", result.SignalsProduced,
		"rejected", result.Rejected,
		"timeouts", result.Timeouts,
		"errors", result.Errors)

	return result, runErr
}

// Partition splits sources into min(maxWorkers, len(sources)) contiguous
// slices of near-equal size. The last slice absorbs the remainder.
func Partition(sources []model.Source, maxWorkers int) [][]model.Source {
	if len(sources) == 0 {
		return nil
	}
	n := min(max(maxWorkers, 1), len(sources))
	size := len(sources) / n
	parts := make([][]model.Source, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if i == n-1 {
			end = len(sources)
		}
		parts[i] = sources[start:end]
	}
	return parts
}
