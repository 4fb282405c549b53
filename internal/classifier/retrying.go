package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"TradeSentinel/internal/filter"
	"TradeSentinel/internal/metrics"
	"TradeSentinel/internal/model"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts: 4,
	BaseDelay:   1 * time.Second,
	MaxDelay:    30 * time.Second,
}

// Retrying wraps a Client with bounded retries and verdict validation.
type Retrying struct {
	client Client
	cfg    RetryConfig
	loc    *time.Location
	now    func() time.Time
}

// NewRetrying creates a Retrying classifier. Timestamps are stamped in loc.
func NewRetrying(client Client, cfg RetryConfig, loc *time.Location) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultRetryConfig.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig.BaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Retrying{client: client, cfg: cfg, loc: loc, now: time.Now}
}

// Ping forwards the preflight check to the underlying client.
func (r *Retrying) Ping(ctx context.Context) error {
	return r.client.Ping(ctx)
}

// Classify returns the trade signal carried by text, nil if the classifier
// found none, or a *ClassificationError.
func (r *Retrying) Classify(ctx context.Context, source model.Source, text string) (*model.TradeSignal, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ClassificationError{Source: source, Err: fmt.Errorf("%w: empty text", ErrRejected)}
	}

	b := retry.NewExponential(r.cfg.BaseDelay)
	b = retry.WithCappedDuration(r.cfg.MaxDelay, b)
	b = retry.WithMaxRetries(uint64(r.cfg.MaxAttempts-1), b)

	var (
		verdict  *Verdict
		attempts int
	)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		metrics.ClassifierAttempts.Inc()
		v, err := r.client.ClassifyRaw(ctx, source, text)
		if err != nil {
			if retryable(err) {
				slog.Warn("Classification attempt failed",
					"source", source, "attempt", attempts, "max_attempts", r.cfg.MaxAttempts, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		outcome := "terminal"
		if retryable(err) {
			outcome = "exhausted"
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = "canceled"
		}
		metrics.ClassifierOutcomes.WithLabelValues(outcome).Inc()
		return nil, &ClassificationError{Source: source, Attempts: attempts, Err: err}
	}

	if verdict == nil {
		metrics.ClassifierOutcomes.WithLabelValues("no_signal").Inc()
		return nil, nil
	}

	sig, err := r.toSignal(source, text, verdict)
	if err != nil {
		metrics.ClassifierOutcomes.WithLabelValues("rejected").Inc()
		return nil, &ClassificationError{Source: source, Attempts: attempts, Err: err}
	}
	metrics.ClassifierOutcomes.WithLabelValues("signal").Inc()
	return sig, nil
}

// toSignal validates v against text. Out-of-range values are rejected, never clamped.
func (r *Retrying) toSignal(source model.Source, text string, v *Verdict) (*model.TradeSignal, error) {
	symbol := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(v.CompanyTraded), "$"))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrRejected)
	}
	if !filter.Mentions(text, symbol) {
		return nil, fmt.Errorf("%w: symbol %s not mentioned as $%s", ErrRejected, symbol, symbol)
	}

	dir, err := model.ParseDirection(v.TradeDirection)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	m := v.TradeMagnitude
	if m != math.Trunc(m) || m < model.MinMagnitude || m > model.MaxMagnitude {
		return nil, fmt.Errorf("%w: magnitude %v outside [%d,%d]", ErrRejected, m, model.MinMagnitude, model.MaxMagnitude)
	}

	member := strings.TrimSpace(v.MemberName)
	if member == "" {
		member = string(source)
	}

	return &model.TradeSignal{
		MemberName:       member,
		InstrumentSymbol: symbol,
		Direction:        dir,
		Magnitude:        int(m),
		SourceText:       text,
		ObservedAt:       r.now().In(r.loc),
		OriginSource:     source,
	}, nil
}
