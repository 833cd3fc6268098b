package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Pacer produces the fixed and randomized waits of an extraction attempt.
// It is safe for concurrent use.
type Pacer struct {
	sleep SleepFunc
	mu    sync.Mutex
	rnd   *rand.Rand
}

func NewPacer() *Pacer {
	return NewPacerWithSleep(Sleep, time.Now().UnixNano())
}

// NewPacerWithSleep lets tests observe waits instead of performing them.
func NewPacerWithSleep(sleep SleepFunc, seed int64) *Pacer {
	return &Pacer{
		sleep: sleep,
		rnd:   rand.New(rand.NewSource(seed)),
	}
}

// Wait sleeps for a fixed duration.
func (p *Pacer) Wait(ctx context.Context, d time.Duration) error {
	return p.sleep(ctx, d)
}

// Jitter sleeps for a random duration in [min, max).
func (p *Pacer) Jitter(ctx context.Context, min, max time.Duration) error {
	return p.sleep(ctx, p.Between(min, max))
}

// Between returns a random duration in [min, max).
func (p *Pacer) Between(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return min + time.Duration(p.rnd.Int63n(int64(max-min)))
}

// Float returns a random value in [0, max).
func (p *Pacer) Float(max float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Float64() * max
}

// TokenBucket bounds how often callers may start work.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket allows perSecond events on average with bursts up to burst.
// A non-positive perSecond disables limiting.
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(limit, burst)}
}

func (t *TokenBucket) Allow() bool {
	return t.limiter.Allow()
}

func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
