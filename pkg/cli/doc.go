// Package cli implements the auditlog command line: loading configuration,
// wiring the capture pipeline and the serve, replay, mapping, sources,
// validate and version commands.
package cli
