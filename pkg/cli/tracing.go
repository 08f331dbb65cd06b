package cli

import (
	"context"

	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/config"
	"github.com/telekom/auditlog/pkg/telemetry"
	"github.com/telekom/auditlog/pkg/version"
)

// startTracing installs the configured tracer provider. The returned func
// flushes it and never fails the command.
func startTracing(ctx context.Context, cfg *config.Config, log *zap.Logger) (func(), error) {
	_, shutdown, err := telemetry.Init(ctx, cfg.TelemetryOptions(version.Version, log))
	if err != nil {
		return nil, err
	}
	return func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Failed to flush traces", zap.Error(err))
		}
	}, nil
}
