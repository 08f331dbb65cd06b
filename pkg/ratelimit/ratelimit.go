// Package ratelimit provides per-producer rate limiting middleware for the ingest API.
package ratelimit

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/telekom/auditlog/pkg/apiresponses"
	"github.com/telekom/auditlog/pkg/metrics"
	"github.com/telekom/auditlog/pkg/system"
)

// Config holds rate limiter configuration
type Config struct {
	// Rate is the number of batches allowed per second
	Rate float64 `yaml:"rate"`
	// Burst is the maximum number of batches allowed in a burst
	Burst int `yaml:"burst"`
	// CleanupInterval is how often to clean up stale entries
	CleanupInterval time.Duration `yaml:"-"`
	// MaxAge is how long to keep an entry after last access
	MaxAge time.Duration `yaml:"-"`
}

// DefaultIngestConfig returns the default limits for the events endpoint:
// 50 batches/s per producer, burst of 100
func DefaultIngestConfig() Config {
	return Config{
		Rate:            50,
		Burst:           100,
		CleanupInterval: time.Minute,
		MaxAge:          5 * time.Minute,
	}
}

// entry holds rate limiter and last access time for a producer
type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiter implements per-key rate limiting with automatic cleanup. Keys are
// the acting user when one is known, the client IP otherwise.
type Limiter struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	config   Config
	userKeys []string
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a limiter. userKeys are the gin context keys checked for the
// acting user; system.DefaultUserKeys is used when none are given.
func New(cfg Config, userKeys ...string) *Limiter {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 5 * time.Minute
	}

	rl := &Limiter{
		entries:  make(map[string]*entry),
		config:   cfg,
		userKeys: userKeys,
		done:     make(chan struct{}),
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

// Allow checks if a request for the given key should be allowed
func (rl *Limiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, exists := rl.entries[key]
	if !exists {
		e = &entry{
			limiter: rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst),
		}
		rl.entries[key] = e
	}
	e.lastAccess = time.Now()

	return e.limiter.Allow()
}

// Key returns the rate limit key of a request.
func (rl *Limiter) Key(c *gin.Context) string {
	if user := system.UserFromGin(c, rl.userKeys...); user != "" {
		return "user:" + user
	}
	return "ip:" + c.ClientIP()
}

// Middleware returns a Gin middleware that rejects requests over the limit
// with 429.
func (rl *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(rl.Key(c)) {
			metrics.IngestBatches.WithLabelValues("api", "throttled").Inc()
			apiresponses.RespondTooManyRequests(c, "rate limit exceeded, please try again later", rl.retryAfter())
			return
		}
		c.Next()
	}
}

// retryAfter is the time one token takes to refill.
func (rl *Limiter) retryAfter() time.Duration {
	if rl.config.Rate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / rl.config.Rate)
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// cleanup periodically removes stale entries
func (rl *Limiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanupStaleEntries()
		}
	}
}

// cleanupStaleEntries removes entries that haven't been accessed recently
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, e := range rl.entries {
		if now.Sub(e.lastAccess) > rl.config.MaxAge {
			delete(rl.entries, key)
		}
	}
}

// Len returns the current number of tracked keys (for testing/metrics)
func (rl *Limiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.entries)
}

// Config returns a copy of the current configuration (for testing)
func (rl *Limiter) Config() Config {
	return rl.config
}
