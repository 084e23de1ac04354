package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Always retries every error until the budget is spent.
func Always(error) bool { return true }

// Config bounds a Retrier.
type Config struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
}

// DefaultConfig returns the budget used for store operations.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     1 * time.Second,
		MaxElapsedTime:  10 * time.Second,
	}
}

// Retrier implements usecase.Retrier with exponential backoff.
type Retrier struct {
	cfg       Config
	retryable Classifier
	logger    zerolog.Logger
}

// New creates a Retrier. A nil classifier retries every error.
func New(cfg Config, retryable Classifier, logger zerolog.Logger) *Retrier {
	d := DefaultConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = d.InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = d.MaxInterval
	}
	if cfg.MaxElapsedTime <= 0 {
		cfg.MaxElapsedTime = d.MaxElapsedTime
	}
	if retryable == nil {
		retryable = Always
	}
	return &Retrier{cfg: cfg, retryable: retryable, logger: logger}
}

// Retry executes op until it succeeds, fails with a non-retryable error,
// or the budget runs out. The last error is returned unwrapped.
func (r *Retrier) Retry(ctx context.Context, op func() error) error {
	return r.RetryN(ctx, r.cfg.MaxRetries, op)
}

// RetryN is Retry with a caller-supplied retry count in place of the
// configured one. Backoff timing still comes from the Config.
func (r *Retrier) RetryN(ctx context.Context, maxRetries int, op func() error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = r.cfg.MaxElapsedTime

	retryCount := 0

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}

		if !r.retryable(err) {
			return backoff.Permanent(err)
		}

		retryCount++
		if retryCount > maxRetries {
			return backoff.Permanent(err)
		}

		r.logger.Warn().
			Err(err).
			Int("retry", retryCount).
			Msg("retryable error, retrying")

		return err
	}, backoff.WithContext(b, ctx))
}
