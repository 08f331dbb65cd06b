// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

// Package requestmeta captures request identity for audit metadata.
package requestmeta

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/audit"
	"github.com/telekom/auditlog/pkg/system"
)

// Config configures the middleware.
type Config struct {
	// UserKeys are the gin context keys holding the acting user, checked in
	// order. Default: system.DefaultUserKeys
	UserKeys []string
}

// Middleware stores the client IP, request URI and acting user in the request
// context, where audit.RequestMetadata reads them. It must run after the
// authentication middleware that sets the user keys.
func Middleware(cfg Config, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("requestmeta")
	return func(c *gin.Context) {
		info := audit.RequestInfo{
			ClientIP: c.ClientIP(),
			Target:   c.Request.RequestURI,
			User:     system.UserFromGin(c, cfg.UserKeys...),
		}
		if info.Target == "" {
			info.Target = c.Request.URL.RequestURI()
		}
		c.Request = c.Request.WithContext(audit.WithRequest(c.Request.Context(), info))

		reqLogger := system.GetReqLogger(c, log).With(
			zap.String("ip", info.ClientIP),
			zap.String("url", info.Target))
		if info.User != "" {
			reqLogger = reqLogger.With(zap.String("user", info.User))
		}
		c.Set(system.ReqLoggerKey, reqLogger)

		c.Next()
	}
}
