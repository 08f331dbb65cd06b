/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/metrics"
)

// CircuitState is the state of a CircuitBreaker. The numeric value is
// exported as the auditlog_circuit_breaker_state gauge.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker. Zero values take the
// defaults of DefaultCircuitBreakerConfig.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failed batches that opens
	// the circuit. Default: 5
	FailureThreshold int
	// SuccessThreshold is the number of successful trial batches that closes
	// a half-open circuit. Default: 2
	SuccessThreshold int
	// OpenTimeout is how long an open circuit rejects batches before probing.
	// Default: 30s
	OpenTimeout time.Duration
	// HalfOpenMaxRequests bounds the trial batches in flight. Default: 1
	HalfOpenMaxRequests int
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// ErrCircuitOpen is returned for batches rejected by an open circuit.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calling a failing persister for a while so that
// commits fail fast instead of waiting on an unavailable backend.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitState
	changedAt time.Time
	failures  int
	successes int
	trials    int
	stats     CircuitBreakerStats
}

// CircuitBreakerStats counts batches seen by a breaker.
type CircuitBreakerStats struct {
	State     CircuitState
	Batches   int64
	Failures  int64
	Rejected  int64
	LastError error
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}

	logger = logger.Named("circuit-breaker").With(zap.String("persister", name))
	logger.Debug("Circuit breaker configured",
		zap.Int("failure_threshold", cfg.FailureThreshold),
		zap.Int("success_threshold", cfg.SuccessThreshold),
		zap.Duration("open_timeout", cfg.OpenTimeout))
	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(CircuitClosed))

	return &CircuitBreaker{
		name:      name,
		config:    cfg,
		logger:    logger,
		now:       time.Now,
		changedAt: time.Now(),
	}
}

// Execute runs fn unless the circuit is open, in which case it returns an
// error wrapping ErrCircuitOpen. The error of fn is returned unchanged.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.admit() {
		metrics.CircuitBreakerRejections.WithLabelValues(cb.name).Inc()
		return fmt.Errorf("persister %s: %w", cb.name, ErrCircuitOpen)
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.changedAt) >= cb.config.OpenTimeout {
		cb.transition(CircuitHalfOpen)
	}
	switch cb.state {
	case CircuitClosed:
	case CircuitHalfOpen:
		if cb.trials >= cb.config.HalfOpenMaxRequests {
			cb.stats.Rejected++
			return false
		}
		cb.trials++
	default:
		cb.stats.Rejected++
		return false
	}
	cb.stats.Batches++
	return true
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.trials--
	}
	if err != nil {
		cb.stats.Failures++
		cb.stats.LastError = err
		cb.successes = 0
		cb.failures++
		if cb.state == CircuitHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.transition(CircuitOpen)
		}
		return
	}
	cb.failures = 0
	if cb.state == CircuitHalfOpen {
		cb.successes++
		if cb.successes >= cb.config.SuccessThreshold {
			cb.transition(CircuitClosed)
		}
	}
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.changedAt = cb.now()
	cb.failures, cb.successes, cb.trials = 0, 0, 0

	fields := []zap.Field{zap.Stringer("from", from), zap.Stringer("to", to)}
	if to == CircuitOpen && cb.stats.LastError != nil {
		fields = append(fields, zap.NamedError("last_error", cb.stats.LastError))
	}
	cb.logger.Warn("Circuit breaker state changed", fields...)
	metrics.CircuitBreakerState.WithLabelValues(cb.name).Set(float64(to))
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	stats := cb.stats
	stats.State = cb.state
	return stats
}

// BreakerPersister guards a persister with a circuit breaker. While the
// circuit is open LogEvents fails with ErrCircuitOpen without calling the
// wrapped persister. There are no retries.
type BreakerPersister struct {
	persister Persister
	breaker   *CircuitBreaker
}

func NewBreakerPersister(name string, p Persister, cfg CircuitBreakerConfig, logger *zap.Logger) *BreakerPersister {
	return &BreakerPersister{
		persister: p,
		breaker:   NewCircuitBreaker(name, cfg, logger),
	}
}

func (b *BreakerPersister) LogEvents(ctx context.Context, events []*Event) error {
	return b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.persister.LogEvents(ctx, events)
	})
}

func (b *BreakerPersister) CircuitBreaker() *CircuitBreaker {
	return b.breaker
}
