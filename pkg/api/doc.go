// Package api implements the ingest HTTP server (Gin-based) that accepts
// audit records from remote producers, enriches them with request metadata
// and hands them to the configured persister.
package api
