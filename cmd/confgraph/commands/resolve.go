package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newResolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <section>",
		Short: "Resolve a section and print its value",
		Long: `Resolve a section through the directive rules and print the result.

Plain sections print as ordered JSON objects; values produced by
directives (instance:, eval:, json:, ...) print in their resolved form.`,
		Example: `  # Resolve a section from a manifest
  confgraph --config app.yml resolve default

  # Supply a path token used by the manifest
  confgraph --config app.yml --token data_dir=/var/lib/app resolve paths`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyLogLevel()
			section := args[0]

			st, _, err := loadStore()
			if err != nil {
				return err
			}

			log.Info().Str("section", section).Msg("Resolving section")
			v, err := newGraph(st).Resolve(section)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			if !jsonOutput {
				enc.SetIndent("", "  ")
			}
			if err := enc.Encode(v); err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			return nil
		},
	}
	return cmd
}
