// Package retry implements the retry policy shared by every outbound
// service client: exponential backoff for transient failures and a fixed
// long backoff when the remote side reports rate limiting.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specforge/internal/config"
	"github.com/fyrsmithlabs/specforge/internal/logging"
	"github.com/fyrsmithlabs/specforge/internal/metrics"
)

// StatusError carries the HTTP status of a failed service call so the
// policy can classify it.
type StatusError struct {
	StatusCode int
	Service    string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
}

// Policy configures retry behavior for outbound service calls.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// InitialBackoff is the backoff before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// RateLimitBackoff is the fixed wait applied when the remote side
	// returns 429, regardless of the exponential schedule.
	RateLimitBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultPolicy returns the retry policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       3,
		InitialBackoff:    2 * time.Second,
		MaxBackoff:        30 * time.Second,
		RateLimitBackoff:  30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// FromConfig builds a Policy from the loaded retry configuration.
func FromConfig(cfg config.RetryConfig) Policy {
	p := Policy{
		MaxAttempts:       cfg.MaxAttempts,
		InitialBackoff:    cfg.InitialBackoff.Duration(),
		MaxBackoff:        cfg.MaxBackoff.Duration(),
		RateLimitBackoff:  cfg.RateLimitBackoff.Duration(),
		BackoffMultiplier: 2.0,
	}
	p.applyDefaults()
	return p
}

func (p *Policy) applyDefaults() {
	defaults := DefaultPolicy()
	if p.MaxAttempts == 0 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.InitialBackoff == 0 {
		p.InitialBackoff = defaults.InitialBackoff
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = defaults.MaxBackoff
	}
	if p.RateLimitBackoff == 0 {
		p.RateLimitBackoff = defaults.RateLimitBackoff
	}
	if p.BackoffMultiplier == 0 {
		p.BackoffMultiplier = defaults.BackoffMultiplier
	}
}

// Do runs op until it succeeds, fails permanently, or attempts run out.
// name identifies the operation in logs.
func (p Policy) Do(ctx context.Context, log *logging.Logger, name string, op func(context.Context) error) error {
	policy := p
	policy.applyDefaults()
	if log == nil {
		log = logging.NewNop()
	}

	var lastErr error
	backoff := policy.InitialBackoff
	startTime := time.Now()

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.RetriesTotal.WithLabelValues(name).Inc()
		}
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info(ctx, "operation recovered after retries",
					zap.String("operation", name),
					zap.Int("attempts", attempt),
					zap.Duration("total_time", time.Since(startTime)),
				)
			}
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			log.Debug(ctx, "error is not retryable",
				zap.String("operation", name),
				zap.Error(err),
			)
			return err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		wait := backoff
		if IsRateLimit(err) {
			wait = policy.RateLimitBackoff
			log.Info(ctx, "rate limit hit, backing off",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", policy.MaxAttempts),
				zap.Duration("backoff", wait),
			)
		} else {
			log.Info(ctx, "retrying after transient error",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", policy.MaxAttempts),
				zap.Error(err),
				zap.Duration("backoff", wait),
			)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(wait):
			nextBackoff := time.Duration(float64(backoff) * policy.BackoffMultiplier)
			if nextBackoff > policy.MaxBackoff {
				nextBackoff = policy.MaxBackoff
			}
			backoff = nextBackoff
		}
	}

	log.Warn(ctx, "operation failed after all retries exhausted",
		zap.String("operation", name),
		zap.Int("total_attempts", policy.MaxAttempts),
		zap.Duration("total_time", time.Since(startTime)),
		zap.Error(lastErr),
	)

	return fmt.Errorf("%s failed after %d attempts: %w", name, policy.MaxAttempts, lastErr)
}

// IsRetryable reports whether err represents a transient failure worth
// retrying. Network-level errors (no status available) are retryable;
// 4xx responses other than 408 and 429 are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		default:
			return statusErr.StatusCode >= 500
		}
	}

	// Context errors bubble up as-is rather than burning attempts.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	return true
}

// IsRateLimit reports whether err is a 429 response.
func IsRateLimit(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests
}
