package rate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim      *rate.Limiter
	lastSeen atomic.Int64
}

// MemoryLimiter holds token buckets in process memory. It is safe for
// concurrent use; each bucket serializes its own take.
type MemoryLimiter struct {
	config Config

	mu      sync.RWMutex
	buckets map[string]*bucket
}

// NewMemoryLimiter validates cfg and returns an empty limiter.
func NewMemoryLimiter(cfg Config) (*MemoryLimiter, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &MemoryLimiter{config: cfg, buckets: make(map[string]*bucket)}, nil
}

// Consume takes one token from the bucket of key in category.
func (m *MemoryLimiter) Consume(_ context.Context, key string, category Category) (Decision, error) {
	rule, ok := m.config.Rules[category]
	if !ok {
		return Decision{}, ErrUnknownCategory
	}

	now := m.config.Clock()
	b := m.bucket(bucketKey(category, key), rule)
	b.lastSeen.Store(now.UnixNano())

	if b.lim.AllowN(now, 1) {
		tokens := b.lim.TokensAt(now)
		return Decision{
			Allowed:   true,
			Remaining: int(tokens),
			ResetTime: now.Add(rule.timeFor(float64(rule.Points) - tokens)),
		}, nil
	}

	tokens := b.lim.TokensAt(now)
	return Decision{
		Allowed:   false,
		Remaining: 0,
		ResetTime: now.Add(rule.timeFor(1 - tokens)),
	}, nil
}

// Reset drops the bucket so the next Consume starts full.
func (m *MemoryLimiter) Reset(_ context.Context, key string, category Category) error {
	if _, ok := m.config.Rules[category]; !ok {
		return ErrUnknownCategory
	}
	m.mu.Lock()
	delete(m.buckets, bucketKey(category, key))
	m.mu.Unlock()
	return nil
}

// Sweep removes buckets untouched for longer than IdleTTL. A bucket idle for
// its whole window is full, so dropping it does not change any decision.
func (m *MemoryLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-m.config.IdleTTL).UnixNano()

	m.mu.RLock()
	var idle []string
	for k, b := range m.buckets {
		if b.lastSeen.Load() < cutoff {
			idle = append(idle, k)
		}
	}
	m.mu.RUnlock()

	removed := 0
	m.mu.Lock()
	for _, k := range idle {
		if b, ok := m.buckets[k]; ok && b.lastSeen.Load() < cutoff {
			delete(m.buckets, k)
			removed++
		}
	}
	m.mu.Unlock()
	return removed
}

// Len returns the number of live buckets.
func (m *MemoryLimiter) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buckets)
}

func (m *MemoryLimiter) bucket(k string, rule Rule) *bucket {
	m.mu.RLock()
	b, ok := m.buckets[k]
	m.mu.RUnlock()
	if ok {
		return b
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok = m.buckets[k]; ok {
		return b
	}
	b = &bucket{
		lim: rate.NewLimiter(rate.Limit(rule.perSecond()), rule.Points),
	}
	m.buckets[k] = b
	return b
}

var _ Limiter = (*MemoryLimiter)(nil)

