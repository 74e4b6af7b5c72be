package venue

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

// ErrMaxRetries is returned when the reconnect attempt ceiling is exhausted.
// The client stays idle afterwards until explicitly restarted.
var ErrMaxRetries = errors.New("reconnect: max attempts exhausted")

// ReconnectPolicy is a bounded exponential backoff schedule. The delay after
// n consecutive failures is min(InitialDelay * Multiplier^n, MaxDelay).
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	MaxAttempts  int
}

// DefaultReconnectPolicy matches the venue client contract: 1s initial,
// doubling, capped at 30s, at most 10 attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  10,
	}
}

// Delay returns the backoff before attempt n (zero-based).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Run drives connect through the backoff schedule until it succeeds, the
// context is cancelled, or MaxAttempts is exhausted.
func (p ReconnectPolicy) Run(ctx context.Context, logger *zap.Logger, connect func(context.Context) error) error {
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		delay := p.Delay(attempt)

		logger.Info("reconnect-waiting",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		ReconnectAttemptsTotal.Inc()

		err := connect(ctx)
		if err == nil {
			logger.Info("reconnect-successful", zap.Int("attempt", attempt+1))
			return nil
		}

		if errors.Is(err, context.Canceled) {
			return err
		}

		logger.Warn("reconnect-attempt-failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		ReconnectFailuresTotal.Inc()
	}

	return ErrMaxRetries
}
