// Package ratelimit provides per-producer token-bucket rate limiting
// middleware for the Gin ingest server. Producers are keyed by acting user
// when known and by client IP otherwise; stale entries are cleaned up
// automatically.
package ratelimit
