package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/api"
	"github.com/telekom/auditlog/pkg/version"
)

// NewServeCommand runs the ingest API until SIGINT or SIGTERM.
func NewServeCommand() *cobra.Command {
	var listenAddress string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the audit ingest API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			cfg, err := rt.Config()
			if err != nil {
				return err
			}
			log := rt.Logger()
			log.Info("Starting auditlog ingest server", zap.String("version", version.GetBuildInfo().String()))

			if listenAddress != "" {
				cfg.Server.ListenAddress = listenAddress
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			stopTracing, err := startTracing(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer stopTracing()

			pipeline, err := buildPipeline(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := pipeline.Close(); err != nil {
					log.Warn("Failed to close audit pipeline", zap.Error(err))
				}
			}()

			server, err := api.NewServer(log, cfg.Server, rt.debug)
			if err != nil {
				return err
			}
			defer server.Close()
			if err := server.RegisterAll([]api.APIController{
				api.NewEventsController(pipeline.Persister, pipeline.Enrichers, log),
			}); err != nil {
				return err
			}
			return server.Listen(ctx)
		},
	}

	cmd.Flags().StringVar(&listenAddress, "listen-address", "", "Override server.listenAddress")
	return cmd
}
