// Package config loads the auditlog YAML configuration: application identity,
// audited sources, the persister and its connection settings, and the label cache.
package config
