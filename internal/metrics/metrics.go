package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks completed analysis runs by outcome (success, failed, precondition)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesentinel_runs_total",
			Help: "Total number of analysis runs",
		},
		[]string{"outcome"},
	)

	// RunDuration tracks wall-clock duration of analysis runs
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradesentinel_run_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	// ItemsFetched tracks raw posts returned by the fetcher
	ItemsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesentinel_items_fetched_total",
			Help: "Total number of posts fetched",
		},
	)

	// ItemsAdmitted tracks posts that passed the ticker prefilter
	ItemsAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesentinel_items_admitted_total",
			Help: "Total number of posts admitted by the ticker filter",
		},
	)

	// FetchErrors tracks failed source fetches
	FetchErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesentinel_fetch_errors_total",
			Help: "Total number of failed source fetches",
		},
	)

	// ClassifierAttempts tracks individual classification requests
	ClassifierAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesentinel_classifier_attempts_total",
			Help: "Total number of classification requests issued",
		},
	)

	// ClassifierOutcomes tracks final classification outcomes (signal, no_signal, rejected, exhausted, terminal)
	ClassifierOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradesentinel_classifier_outcomes_total",
			Help: "Total number of classification outcomes",
		},
		[]string{"outcome"},
	)

	// SignalsStored tracks signals appended to the session store
	SignalsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesentinel_signals_stored_total",
			Help: "Total number of trade signals appended to the store",
		},
	)

	// StoreAppendFailures tracks swallowed persistence failures
	StoreAppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesentinel_store_append_failures_total",
			Help: "Total number of failed session store appends",
		},
	)

	// WorkerTimeouts tracks workers abandoned at the run deadline
	WorkerTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tradesentinel_worker_timeouts_total",
			Help: "Total number of workers abandoned at the run deadline",
		},
	)

	// ConsecutiveFailures mirrors the supervisor's failure counter
	ConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradesentinel_consecutive_failures",
			Help: "Current number of consecutive failed supervisor iterations",
		},
	)

	// LastSuccessfulRun is the unix time of the last successful run
	LastSuccessfulRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradesentinel_last_successful_run_timestamp_seconds",
			Help: "Unix timestamp of the last successful analysis run",
		},
	)
)
