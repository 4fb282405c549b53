// Package supervisor drives scheduled analysis runs and decides when the
// process has failed often enough to ask for a restart.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"TradeSentinel/internal/metrics"
	"TradeSentinel/internal/model"
	"TradeSentinel/internal/recorder"
)

// ErrRestartRequested is returned by Run once the failure threshold is reached.
var ErrRestartRequested = errors.New("restart requested after consecutive failures")

// State is the supervisor's coarse lifecycle state.
type State string

const (
	StateIdle         State = "idle"
	StateRunning      State = "running"
	StateShuttingDown State = "shutting_down"
	StateRestarting   State = "restarting"
	StateStopped      State = "stopped"
)

// Runner executes one analysis run.
type Runner interface {
	RunScheduled(ctx context.Context) (*model.RunResult, error)
}

// Reporter is told about every finished run.
type Reporter interface {
	ReportRun(ctx context.Context, res *model.RunResult, err error)
}

// Config controls scheduling and failure accounting.
type Config struct {
	Schedule         string
	Heartbeat        string
	PollInterval     time.Duration
	FailureThreshold int
	RunOnStart       bool
	Location         *time.Location
	// OnRestart is called exactly once when the failure threshold is reached.
	OnRestart func(failures int, lastErr error)
	// History, when set, adds recorded runs to the /status reply.
	History recorder.History
}

// Status is a snapshot of the supervisor for health checks and chat commands.
type Status struct {
	State               State            `json:"state"`
	ConsecutiveFailures int              `json:"consecutive_failures"`
	LastRunAt           time.Time        `json:"last_run_at,omitzero"`
	LastError           string           `json:"last_error,omitempty"`
	LastRun             *model.RunResult `json:"last_run,omitempty"`
	NextRun             time.Time        `json:"next_run"`
}

// Supervisor is the long-lived control loop.
type Supervisor struct {
	cfg      Config
	schedule cron.Schedule
	runner   Runner
	reporter Reporter
	triggers chan string
	now      func() time.Time

	mu       sync.Mutex
	status   Status
	failures int
	next     time.Time
}

// New creates a Supervisor. reporter may be nil.
func New(cfg Config, runner Runner, reporter Reporter) (*Supervisor, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Heartbeat == "" {
		cfg.Heartbeat = "@every 1h"
	}
	sched, err := ParseSchedule(cfg.Schedule, cfg.Location)
	if err != nil {
		return nil, err
	}
	return &Supervisor{
		cfg:      cfg,
		schedule: sched,
		runner:   runner,
		reporter: reporter,
		triggers: make(chan string, 1),
		now:      time.Now,
		status:   Status{State: StateIdle},
	}, nil
}

// ParseSchedule parses a five-field cron spec evaluated in loc.
// A spec that already carries CRON_TZ= or TZ= keeps its own zone.
func ParseSchedule(spec string, loc *time.Location) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if loc != nil && !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") && !strings.HasPrefix(spec, "@") {
		spec = "CRON_TZ=" + loc.String() + " " + spec
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return sched, nil
}

// Trigger queues an out-of-schedule run. It reports false if one is already queued.
func (s *Supervisor) Trigger(reason string) bool {
	select {
	case s.triggers <- reason:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the current state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.ConsecutiveFailures = s.failures
	st.NextRun = s.next
	return st
}

// Healthy reports whether the loop is alive and not about to restart.
func (s *Supervisor) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.State == StateIdle || s.status.State == StateRunning
}

// Run blocks until ctx is cancelled or the failure threshold is reached.
// Cancellation is observed between runs; an in-flight run is allowed to finish.
func (s *Supervisor) Run(ctx context.Context) error {
	hb := cron.New(cron.WithLocation(s.cfg.Location))
	if _, err := hb.AddFunc(s.cfg.Heartbeat, s.heartbeat); err != nil {
		return fmt.Errorf("register heartbeat: %w", err)
	}
	hb.Start()
	defer hb.Stop()

	s.mu.Lock()
	s.next = s.schedule.Next(s.now().In(s.cfg.Location))
	s.mu.Unlock()
	slog.Info("Supervisor started",
		"schedule", s.cfg.Schedule, "timezone", s.cfg.Location.String(), "next_run", s.next.Format(time.RFC3339))

	if s.cfg.RunOnStart {
		if err := s.execute(ctx, "startup"); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateShuttingDown)
			slog.Info("Supervisor shutting down")
			s.setState(StateStopped)
			return nil
		case reason := <-s.triggers:
			if err := s.execute(ctx, reason); err != nil {
				return err
			}
		case <-ticker.C:
			if !s.due() {
				continue
			}
			if err := s.execute(ctx, "schedule"); err != nil {
				return err
			}
		}
	}
}

// due reports whether the scheduled time has passed and advances the next trigger.
func (s *Supervisor) due() bool {
	now := s.now().In(s.cfg.Location)
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Before(s.next) {
		return false
	}
	s.next = s.schedule.Next(now)
	return true
}

// execute runs one analysis and updates failure accounting. It returns
// ErrRestartRequested when the threshold is reached.
func (s *Supervisor) execute(ctx context.Context, reason string) error {
	if ctx.Err() != nil {
		return nil
	}
	s.setState(StateRunning)
	slog.Info("Running analysis", "reason", reason)

	res, err := s.safeRun(context.WithoutCancel(ctx))
	if s.reporter != nil {
		s.reporter.ReportRun(context.WithoutCancel(ctx), res, err)
	}

	s.mu.Lock()
	s.status.LastRunAt = s.now().In(s.cfg.Location)
	if res != nil {
		s.status.LastRun = res
	}
	if err == nil {
		s.failures = 0
		s.status.LastError = ""
		s.status.State = StateIdle
		s.mu.Unlock()
		metrics.ConsecutiveFailures.Set(0)
		return nil
	}
	s.failures++
	failures := s.failures
	s.status.LastError = err.Error()
	restart := failures >= s.cfg.FailureThreshold
	if restart {
		s.status.State = StateRestarting
	} else {
		s.status.State = StateIdle
	}
	s.mu.Unlock()

	metrics.ConsecutiveFailures.Set(float64(failures))
	slog.Error("Scheduled run failed",
		"stage", "supervisor", "reason", reason, "consecutive_failures", failures,
		"threshold", s.cfg.FailureThreshold, "error", err)

	if !restart {
		return nil
	}
	slog.Error("Failure threshold reached, requesting restart",
		"stage", "supervisor", "consecutive_failures", failures)
	if s.cfg.OnRestart != nil {
		s.cfg.OnRestart(failures, err)
	}
	return fmt.Errorf("%w: %d consecutive failures, last: %v", ErrRestartRequested, failures, err)
}

func (s *Supervisor) safeRun(ctx context.Context) (res *model.RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v", r)
		}
	}()
	return s.runner.RunScheduled(ctx)
}

func (s *Supervisor) heartbeat() {
	st := s.Status()
	slog.Info("Heartbeat",
		"state", st.State,
		"consecutive_failures", st.ConsecutiveFailures,
		"next_run", st.NextRun.Format(time.RFC3339))
}

func (s *Supervisor) setState(state State) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}
