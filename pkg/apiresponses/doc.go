// Package apiresponses provides standardized HTTP API response helpers
// (bad request, unprocessable entity, bad gateway, etc.) for the ingest API.
package apiresponses
