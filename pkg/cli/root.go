package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/telekom/auditlog/pkg/config"
	"github.com/telekom/auditlog/pkg/system"
)

// DebugEnv enables debug logging like --debug.
const DebugEnv = "AUDITLOG_DEBUG"

type Config struct {
	ConfigPath   string
	OutputWriter io.Writer
	// Input is read by replay when no file is given.
	Input io.Reader
	// Logger replaces the logger built from --debug.
	Logger *zap.Logger
}

type runtimeState struct {
	configPath string
	debug      bool
	cfg        *config.Config
	logger     *zap.Logger
	writer     io.Writer
	input      io.Reader
}

type runtimeKey struct{}

func DefaultConfig() Config {
	return Config{
		ConfigPath:   getEnvString(config.PathEnv, config.DefaultPath),
		OutputWriter: os.Stdout,
		Input:        os.Stdin,
	}
}

func NewRootCommand(cfg Config) *cobra.Command {
	rt := &runtimeState{
		configPath: cfg.ConfigPath,
		writer:     cfg.OutputWriter,
		input:      cfg.Input,
		logger:     cfg.Logger,
	}

	root := &cobra.Command{
		Use:           "auditlog",
		Short:         "Capture, replay and serve audit events",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if rt.writer == nil {
				rt.writer = os.Stdout
			}
			if rt.input == nil {
				rt.input = os.Stdin
			}
			if rt.configPath == "" {
				rt.configPath = config.DefaultPath
			}
			if !rt.debug {
				rt.debug = getEnvBool(DebugEnv, false)
			}

			// Skip config loading for commands that don't need it
			if cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}

			loaded, err := config.Load(rt.configPath)
			if err != nil {
				return err
			}
			rt.cfg = &loaded
			if rt.cfg.Debug {
				rt.debug = true
			}
			if rt.logger == nil {
				logger, err := system.NewLogger(rt.debug)
				if err != nil {
					return err
				}
				rt.logger = logger
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&rt.configPath, "config", rt.configPath, "Path to config file")
	root.PersistentFlags().BoolVar(&rt.debug, "debug", false, "Enable debug level logging")

	root.SetContext(context.WithValue(context.Background(), runtimeKey{}, rt))

	root.AddCommand(
		NewServeCommand(),
		NewReplayCommand(),
		NewMappingCommand(),
		NewSourcesCommand(),
		NewValidateCommand(),
		NewVersionCommand(),
	)

	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok || rt == nil {
		return nil, errors.New("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) Writer() io.Writer {
	if rt.writer != nil {
		return rt.writer
	}
	return os.Stdout
}

func (rt *runtimeState) Logger() *zap.Logger {
	if rt.logger != nil {
		return rt.logger
	}
	return zap.NewNop()
}

func (rt *runtimeState) Config() (*config.Config, error) {
	if rt.cfg == nil {
		return nil, errors.New("config not loaded")
	}
	return rt.cfg, nil
}
