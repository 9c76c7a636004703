package client

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// ConnectWithRetry calls Connect until it succeeds, ctx ends, or the
// configured attempt budget runs out. MaxConnectAttempts <= 0 retries forever.
func (e *Engine) ConnectWithRetry(ctx context.Context) error {
	var attempt int
	for {
		attempt++
		err := e.Connect(ctx)
		if err == nil {
			return nil
		}
		log.Warn().Int("attempt", attempt).Err(err).Msg("client: connect failed")
		if !e.shouldRetry(attempt) {
			return err
		}
		if err := e.sleepBackoff(ctx, attempt); err != nil {
			return err
		}
	}
}

func (e *Engine) shouldRetry(attempt int) bool {
	if e.cfg.MaxConnectAttempts <= 0 {
		return true
	}
	return attempt < e.cfg.MaxConnectAttempts
}

func (e *Engine) sleepBackoff(ctx context.Context, attempt int) error {
	e.rngMu.Lock()
	delay := NextBackoffDelay(e.cfg.Backoff, attempt, e.rng)
	e.rngMu.Unlock()
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
