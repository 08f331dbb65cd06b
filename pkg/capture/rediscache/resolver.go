// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

// Package rediscache caches foreign key labels in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/capture"
	"github.com/telekom/auditlog/pkg/metrics"
)

const (
	keyPrefix = "auditlog:label:"
	// DefaultTTL is used when no TTL is configured.
	DefaultTTL = 10 * time.Minute
)

// Client is the subset of *redis.Client used by the resolver.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTTL sets how long resolved labels are cached.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// Resolver serves labels from Redis and falls through to the wrapped
// resolver on a miss. Redis failures are logged and bypass the cache.
type Resolver struct {
	client Client
	next   capture.LabelResolver
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps next with a Redis cache.
func New(client Client, next capture.LabelResolver, logger *zap.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		client: client,
		next:   next,
		ttl:    DefaultTTL,
		logger: logger.Named("label-cache"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Key returns the cache key of a label.
func Key(collection, field string, id any) string {
	return fmt.Sprintf("%s%s:%s:%v", keyPrefix, collection, field, id)
}

// Resolve implements capture.LabelResolver.
func (r *Resolver) Resolve(ctx context.Context, collection string, id any, field string) (any, error) {
	key := Key(collection, field, id)

	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var label any
		if jsonErr := json.Unmarshal(raw, &label); jsonErr == nil {
			metrics.LabelCacheLookups.WithLabelValues("hit").Inc()
			return label, nil
		}
		r.logger.Warn("discarding undecodable cached label", zap.String("key", key))
		metrics.LabelCacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		metrics.LabelCacheLookups.WithLabelValues("miss").Inc()
	default:
		r.logger.Warn("label cache lookup failed", zap.String("key", key), zap.Error(err))
		metrics.LabelCacheLookups.WithLabelValues("error").Inc()
	}

	label, err := r.next.Resolve(ctx, collection, id, field)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(label)
	if err != nil {
		return label, nil
	}
	if err := r.client.Set(ctx, key, encoded, r.ttl).Err(); err != nil {
		r.logger.Warn("failed to cache label", zap.String("key", key), zap.Error(err))
	}
	return label, nil
}
