package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out notification dispatches.
type Pacer interface {
	// Wait blocks until the next dispatch may proceed or ctx is done.
	Wait(ctx context.Context) error
}

// FixedDelay enforces a minimum gap between consecutive dispatches.
// The first Wait returns immediately.
type FixedDelay struct {
	delay time.Duration

	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewFixedDelay creates a FixedDelay pacer.
func NewFixedDelay(delay time.Duration) *FixedDelay {
	return &FixedDelay{delay: delay, now: time.Now}
}

// Wait implements Pacer.
func (p *FixedDelay) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if d := p.last.Add(p.delay).Sub(p.now()); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	p.last = p.now()
	return nil
}

// TokenBucket allows bursts up to burst and a sustained rate of perSecond.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a TokenBucket pacer.
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait implements Pacer.
func (p *TokenBucket) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// NoPacing never waits.
type NoPacing struct{}

// Wait implements Pacer.
func (NoPacing) Wait(ctx context.Context) error {
	return ctx.Err()
}
