package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sections",
		Short: "List the merged section names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyLogLevel()

			st, _, err := loadStore()
			if err != nil {
				return err
			}

			names := st.SortedNames()
			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(names)
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
	return cmd
}
