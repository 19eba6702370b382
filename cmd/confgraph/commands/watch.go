package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confgraph/confgraph/pkg/store"
	"github.com/confgraph/confgraph/pkg/watch"
)

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <section>",
		Short: "Re-resolve a section whenever a contributing file changes",
		Long: `Resolve a section, then watch the manifest and every merged file;
each change rebuilds the store and resolver from scratch and prints the
freshly resolved value. Live objects are never patched in place.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applyLogLevel()
			section := args[0]

			printSection := func(st *store.Store) error {
				v, err := newGraph(st).Resolve(section)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(os.Stdout)
				if !jsonOutput {
					enc.SetIndent("", "  ")
				}
				return enc.Encode(v)
			}

			// the initial merge doubles as the source of the watch list
			st, importer, err := loadStore()
			if err != nil {
				return err
			}
			if err := printSection(st); err != nil {
				return err
			}

			rebuild := func(context.Context) error {
				st, _, err := loadStore()
				if err != nil {
					return err
				}
				return printSection(st)
			}

			paths := append([]string{manifestPath}, importer.Files()...)
			watcher, err := watch.New(paths, log.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = watcher.Close() }()

			log.Info().Strs("paths", paths).Msg("Watching configuration files")
			watcher.Start(cmd.Context(), rebuild)
			<-cmd.Context().Done()
			return nil
		},
	}
	return cmd
}
