package realdebrid

import (
	"context"
	"sync"
	"time"

	"github.com/amaumene/debridstrm/internal/utils"
	"golang.org/x/time/rate"
)

const rateWindow = time.Minute

// RateLimiter allows at most budget requests in any trailing minute, and spaces consecutive
// requests at least window/budget apart. Safe for concurrent use.
type RateLimiter struct {
	mu      sync.Mutex
	clock   utils.Clock
	budget  int
	window  time.Duration
	spacing *rate.Limiter
	issued  []time.Time
}

// NewRateLimiter creates a limiter for perMinute requests
func NewRateLimiter(perMinute int, clock utils.Clock) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &RateLimiter{
		clock:   clock,
		budget:  perMinute,
		window:  rateWindow,
		spacing: rate.NewLimiter(rate.Every(rateWindow/time.Duration(perMinute)), 1),
	}
}

// Interval returns the minimum spacing between two requests
func (l *RateLimiter) Interval() time.Duration {
	return l.window / time.Duration(l.budget)
}

// Acquire blocks until a request may be issued
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.prune(now)

		if len(l.issued) >= l.budget {
			wait := l.issued[0].Add(l.window).Sub(now)
			l.mu.Unlock()
			if err := l.clock.Sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		delay := l.spacing.ReserveN(now, 1).DelayFrom(now)
		l.issued = append(l.issued, now.Add(delay))
		l.mu.Unlock()

		if delay > 0 {
			return l.clock.Sleep(ctx, delay)
		}
		return ctx.Err()
	}
}

// prune drops timestamps that left the window. Caller holds mu.
func (l *RateLimiter) prune(now time.Time) {
	keep := 0
	for keep < len(l.issued) && now.Sub(l.issued[keep]) >= l.window {
		keep++
	}
	if keep > 0 {
		l.issued = append(l.issued[:0], l.issued[keep:]...)
	}
}

// InWindow returns how many requests were issued in the trailing window
func (l *RateLimiter) InWindow() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.clock.Now())
	return len(l.issued)
}
