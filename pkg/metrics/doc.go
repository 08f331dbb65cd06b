// Package metrics defines Prometheus metrics for the audit log pipeline,
// covering capture, flushing, persister writes, circuit breakers, and the
// foreign key label cache.
package metrics
