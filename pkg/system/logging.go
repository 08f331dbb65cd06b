// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ReqLoggerKey is the context key used to store request-scoped logger in gin context.
const ReqLoggerKey = "reqLogger"

// DefaultUserKeys are the gin context keys checked for the acting user.
var DefaultUserKeys = []string{"username", "email"}

// NewLogger builds the process logger. Debug selects the development
// encoder; otherwise JSON production output is used. Timestamps are UTC RFC3339.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	// Disable automatic stacktraces for non-fatal levels to avoid noisy traces in WARN/INFO logs
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return logger, nil
}

// GetReqLogger returns the request-scoped logger from gin.Context if present,
// otherwise the fallback.
func GetReqLogger(c *gin.Context, fallback *zap.Logger) *zap.Logger {
	if c == nil {
		return fallback
	}
	if v, ok := c.Get(ReqLoggerKey); ok {
		if l, ok2 := v.(*zap.Logger); ok2 {
			return l
		}
	}
	return fallback
}

// UserFromGin returns the first non-empty string stored in the gin context
// under one of keys. DefaultUserKeys is used when keys is empty.
func UserFromGin(c *gin.Context, keys ...string) string {
	if c == nil {
		return ""
	}
	if len(keys) == 0 {
		keys = DefaultUserKeys
	}
	for _, key := range keys {
		if v, ok := c.Get(key); ok {
			if user, ok2 := v.(string); ok2 && user != "" {
				return user
			}
		}
	}
	return ""
}
