package polymarket

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// penaltyVolumeStep controls how fast 429 backoff grows: the exponent
	// is the accumulated request count divided by this step.
	penaltyVolumeStep = 50
	maxBackoffShift   = 16
)

// LimiterConfig bounds the request rate against one venue endpoint family.
type LimiterConfig struct {
	Limit       int           // max requests per Window
	Window      time.Duration // sliding window length
	MinSpacing  time.Duration // minimum gap between consecutive requests
	BackoffBase time.Duration // first 429 penalty
	BackoffCap  time.Duration // penalty ceiling
}

// RateLimiter enforces a per-window request ceiling plus a minimum spacing
// between requests. Callers Wait before every request and Penalize after a
// 429 so subsequent Waits hold off until the penalty expires.
type RateLimiter struct {
	cfg     LimiterConfig
	spacing *rate.Limiter

	mu           sync.Mutex
	count        int
	windowStart  time.Time
	total        int64
	penaltyUntil time.Time
}

func NewRateLimiter(cfg LimiterConfig) *RateLimiter {
	spacing := rate.NewLimiter(rate.Inf, 1)
	if cfg.MinSpacing > 0 {
		spacing = rate.NewLimiter(rate.Every(cfg.MinSpacing), 1)
	}
	return &RateLimiter{cfg: cfg, spacing: spacing}
}

// Wait blocks until a request slot is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.spacing.Wait(ctx); err != nil {
		return err
	}

	for {
		rl.mu.Lock()
		now := time.Now()

		if wait := rl.penaltyUntil.Sub(now); wait > 0 {
			rl.mu.Unlock()
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if rl.windowStart.IsZero() || now.Sub(rl.windowStart) >= rl.cfg.Window {
			rl.windowStart = now
			rl.count = 0
		}
		if rl.count < rl.cfg.Limit {
			rl.count++
			rl.total++
			rl.mu.Unlock()
			return nil
		}

		wait := rl.cfg.Window - now.Sub(rl.windowStart)
		rl.mu.Unlock()
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// Penalize records a 429 response. The penalty grows exponentially with the
// accumulated request volume and is capped at BackoffCap.
func (rl *RateLimiter) Penalize() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	shift := int(rl.total / penaltyVolumeStep)
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	delay := rl.cfg.BackoffBase << shift
	if delay <= 0 || delay > rl.cfg.BackoffCap {
		delay = rl.cfg.BackoffCap
	}

	until := time.Now().Add(delay)
	if until.After(rl.penaltyUntil) {
		rl.penaltyUntil = until
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
