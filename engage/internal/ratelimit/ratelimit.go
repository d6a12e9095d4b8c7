// Package ratelimit paces outbound requests globally and per destination
// domain. Both ceilings are requests-per-second converted to minimum
// spacing (1/qps); a token-bucket with burst 1 enforces exactly that
// spacing, and tokens are debited at release time so queued waiters are
// paced from true elapsed wall-clock, not from when they started waiting.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter serializes request pacing. Safe for concurrent use; per-domain
// state is created lazily.
type Limiter struct {
	global *rate.Limiter

	mu        sync.Mutex
	domains   map[string]*rate.Limiter
	domainQPS rate.Limit
}

// New creates a Limiter with the given ceilings. Non-positive values fall
// back to 5 qps global and 2 qps per domain.
func New(globalQPS, perDomainQPS float64) *Limiter {
	if globalQPS <= 0 {
		globalQPS = 5
	}
	if perDomainQPS <= 0 {
		perDomainQPS = 2
	}
	return &Limiter{
		global:    rate.NewLimiter(rate.Limit(globalQPS), 1),
		domains:   make(map[string]*rate.Limiter),
		domainQPS: rate.Limit(perDomainQPS),
	}
}

// Wait blocks until the global minimum inter-request interval has elapsed.
// The only failure mode is context cancellation.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.global.Wait(ctx)
}

// WaitForDomain blocks for the global interval and additionally for the
// per-domain interval since the last request to domain. Different domains
// pace independently; two callers against the same domain are serialized.
func (l *Limiter) WaitForDomain(ctx context.Context, domain string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	return l.forDomain(domain).Wait(ctx)
}

func (l *Limiter) forDomain(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.domains[domain]
	if !ok {
		lim = rate.NewLimiter(l.domainQPS, 1)
		l.domains[domain] = lim
	}
	return lim
}
