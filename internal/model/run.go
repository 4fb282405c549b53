package model

import "time"

// RunResult summarizes one analysis run.
type RunResult struct {
	ID               string        `json:"id"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       time.Time     `json:"finished_at"`
	Workers          int           `json:"workers"`
	SourcesAttempted int           `json:"sources_attempted"`
	SourcesFailed    int           `json:"sources_failed"`
	ItemsFetched     int           `json:"items_fetched"`
	ItemsAdmitted    int           `json:"items_admitted"`
	Duplicates       int           `json:"duplicates"`
	SignalsProduced  int           `json:"signals_produced"`
	NoSignal         int           `json:"no_signal"`
	Rejected         int           `json:"rejected"`
	Timeouts         int           `json:"timeouts"`
	Errors           int           `json:"errors"`
	Signals          []TradeSignal `json:"-"`
}

// Merge folds a worker's partial result into r.
func (r *RunResult) Merge(d RunResult) {
	r.SourcesAttempted += d.SourcesAttempted
	r.SourcesFailed += d.SourcesFailed
	r.ItemsFetched += d.ItemsFetched
	r.ItemsAdmitted += d.ItemsAdmitted
	r.Duplicates += d.Duplicates
	r.SignalsProduced += d.SignalsProduced
	r.NoSignal += d.NoSignal
	r.Rejected += d.Rejected
	r.Timeouts += d.Timeouts
	r.Errors += d.Errors
	r.Signals = append(r.Signals, d.Signals...)
}

// Duration returns how long the run took.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
