package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config defines a request budget per key
type Config struct {
	// Requests is the number of requests allowed per window
	Requests int
	// Window is the refill period
	Window time.Duration
	// Burst allows temporary bursts above the rate (memory limiter only)
	Burst int
}

// DefaultConfig returns the per-actor defaults
func DefaultConfig() Config {
	return Config{
		Requests: 1000,
		Window:   time.Minute,
		Burst:    50,
	}
}

// Result describes a single limiter check
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration // time until the budget refills
}

// Limiter decides whether a request under key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// MemoryLimiter is a token bucket limiter local to one process
type MemoryLimiter struct {
	config  Config
	now     func() time.Time
	buckets map[string]*bucket
	mu      sync.Mutex
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter(config Config) *MemoryLimiter {
	if config.Requests <= 0 || config.Window <= 0 {
		config = DefaultConfig()
	}
	return &MemoryLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *MemoryLimiter) capacity() float64 {
	return float64(l.config.Requests + l.config.Burst)
}

// Allow takes one token from key's bucket
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.capacity(), lastUpdate: now}
		l.buckets[key] = b
	}

	rate := float64(l.config.Requests) / l.config.Window.Seconds()
	b.tokens += now.Sub(b.lastUpdate).Seconds() * rate
	if b.tokens > l.capacity() {
		b.tokens = l.capacity()
	}
	b.lastUpdate = now

	result := Result{Limit: l.config.Requests}
	if b.tokens >= 1 {
		b.tokens--
		result.Allowed = true
	}
	result.Remaining = int(b.tokens)
	if !result.Allowed {
		result.Reset = time.Duration((1 - b.tokens) / rate * float64(time.Second))
	}
	return result, nil
}

// Cleanup removes buckets idle for more than two windows
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.lastUpdate) > l.config.Window*2 {
			delete(l.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup once per window until ctx is done
func (l *MemoryLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.config.Window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
