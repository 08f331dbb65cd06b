package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCommand loads the configuration and reports what it would run.
// Loading already validates, so reaching RunE means the file is valid.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
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
			_, _ = fmt.Fprintf(rt.Writer(), "%s: ok (persister: %s, sources: %d, enrichers: %d)\n",
				rt.configPath, cfg.Persister.Type, len(cfg.Capture.Sources), cfg.Enrichers().Len())
			return nil
		},
	}
}
