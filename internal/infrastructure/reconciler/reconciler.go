// Package reconciler finishes settlements whose post-commit effects failed.
package reconciler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/invitequeue/internal/domain"
	"github.com/iho/invitequeue/internal/infrastructure/metrics"
	"github.com/iho/invitequeue/internal/usecase"
)

// Settlements resumes owed effects of stored transactions.
type Settlements interface {
	ReconcilePending(ctx context.Context, filter domain.PendingFilter) (usecase.ReconcileReport, error)
}

// Config for Reconciler.
type Config struct {
	Settlements Settlements
	Logger      zerolog.Logger
	Metrics     *metrics.Metrics
	BatchSize   int           // transactions resumed per pass
	Interval    time.Duration // time between passes
	MinAge      time.Duration // skip transactions touched more recently
	MaxAttempts int           // leave transactions that failed this often to an operator
}

// Reconciler periodically resumes settlement effects.
type Reconciler struct {
	settlements Settlements
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	batchSize   int
	interval    time.Duration
	minAge      time.Duration
	maxAttempts int
	now         func() time.Time
}

// New creates a new Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MinAge < 0 {
		cfg.MinAge = 0
	}

	return &Reconciler{
		settlements: cfg.Settlements,
		logger:      cfg.Logger.With().Str("component", "reconciler").Logger(),
		metrics:     cfg.Metrics,
		batchSize:   cfg.BatchSize,
		interval:    cfg.Interval,
		minAge:      cfg.MinAge,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
	}
}

// Start runs passes until ctx is cancelled.
func (r *Reconciler) Start(ctx context.Context) error {
	r.logger.Info().
		Int("batch_size", r.batchSize).
		Dur("interval", r.interval).
		Dur("min_age", r.minAge).
		Int("max_attempts", r.maxAttempts).
		Msg("reconciler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pass(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler shutting down")
			return ctx.Err()
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

// RunOnce resumes one batch of transactions that are old enough and below
// the attempt limit.
func (r *Reconciler) RunOnce(ctx context.Context) (usecase.ReconcileReport, error) {
	ctx = r.logger.WithContext(ctx)

	report, err := r.settlements.ReconcilePending(ctx, domain.PendingFilter{
		UpdatedBefore: r.now().Add(-r.minAge),
		MaxAttempts:   r.maxAttempts,
		Limit:         r.batchSize,
	})
	if r.metrics != nil && err == nil {
		r.metrics.ReconcilePending.Set(float64(report.Pending))
	}
	return report, err
}

func (r *Reconciler) pass(ctx context.Context) {
	report, err := r.RunOnce(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("reconcile pass failed")
		return
	}
	if report.Scanned == 0 {
		return
	}

	r.logger.Info().
		Int("scanned", report.Scanned).
		Int("resolved", report.Resolved).
		Int("pending", report.Pending).
		Msg("reconcile pass finished")
}
