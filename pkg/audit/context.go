// SPDX-FileCopyrightText: 2026 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import "context"

type (
	clientIPKey      struct{}
	requestTargetKey struct{}
	userKey          struct{}
)

// RequestInfo is the request identity read by the request metadata enricher.
type RequestInfo struct {
	ClientIP string
	Target   string
	User     string
}

// WithRequest stores all request identity values in the context.
func WithRequest(ctx context.Context, info RequestInfo) context.Context {
	ctx = WithClientIP(ctx, info.ClientIP)
	ctx = WithRequestTarget(ctx, info.Target)
	return WithUser(ctx, info.User)
}

// RequestFromContext returns the request identity stored in ctx.
func RequestFromContext(ctx context.Context) RequestInfo {
	return RequestInfo{
		ClientIP: ClientIP(ctx),
		Target:   RequestTarget(ctx),
		User:     User(ctx),
	}
}

// WithClientIP injects the client address into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the client address or "" if not set.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(clientIPKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestTarget injects the request target (path and query) into the context.
func WithRequestTarget(ctx context.Context, target string) context.Context {
	return context.WithValue(ctx, requestTargetKey{}, target)
}

// RequestTarget returns the request target or "" if not set.
func RequestTarget(ctx context.Context) string {
	if v, ok := ctx.Value(requestTargetKey{}).(string); ok {
		return v
	}
	return ""
}

// WithUser injects the acting user into the context.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// User returns the acting user or "" if not set.
func User(ctx context.Context) string {
	if v, ok := ctx.Value(userKey{}).(string); ok {
		return v
	}
	return ""
}
