package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telekom/auditlog/pkg/output"
	"github.com/telekom/auditlog/pkg/persister/elasticsearch"
)

// NewMappingCommand prints the Elasticsearch index mapping for a source.
func NewMappingCommand() *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "mapping <source>",
		Short: "Print the Elasticsearch mapping for an audited source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			cfg, err := rt.Config()
			if err != nil {
				return err
			}
			src, ok := cfg.Source(args[0])
			if !ok {
				return fmt.Errorf("source %q is not configured", args[0])
			}
			format, err := output.ParseFormat(outputFormat, output.FormatJSON)
			if err != nil {
				return err
			}
			if format == output.FormatTable {
				return fmt.Errorf("mapping supports json and yaml output")
			}
			return output.WriteObject(rt.Writer(), format, elasticsearch.Mapping(&src, cfg.Capture.Blacklist))
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: json, yaml")
	return cmd
}
