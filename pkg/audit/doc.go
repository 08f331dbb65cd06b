// Package audit holds the audit event model, the record factory used to
// restore stored events, the metadata enricher chain, and the Persister
// contract with a few general purpose implementations (log, memory, fan-out,
// circuit breaker).
package audit
