package cli

import (
	"github.com/spf13/cobra"

	"github.com/telekom/auditlog/pkg/output"
)

func NewSourcesCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the audited sources and their tracked fields",
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
			format, err := output.ParseFormat(outputFormat, output.FormatTable)
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				output.WriteSourceTable(rt.Writer(), cfg.Capture.Sources, cfg.Capture.Blacklist)
				return nil
			}
			return output.WriteObject(rt.Writer(), format, cfg.Capture.Sources)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: table, json, yaml")
	return cmd
}
