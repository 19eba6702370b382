package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDumpCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the merged store to stdout",
		Example: `  # Dump as INI
  confgraph --config app.yml dump

  # Dump as JSON
  confgraph --config app.yml dump --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyLogLevel()

			st, _, err := loadStore()
			if err != nil {
				return err
			}

			switch format {
			case "ini":
				return st.WriteINI(os.Stdout)
			case "json":
				return st.WriteJSON(os.Stdout)
			}
			return fmt.Errorf("unknown format %q, expected ini or json", format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "ini", "output format (ini, json)")
	return cmd
}
