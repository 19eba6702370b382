package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/confgraph/confgraph/pkg/eval"
	"github.com/confgraph/confgraph/pkg/graph"
	"github.com/confgraph/confgraph/pkg/imports"
	"github.com/confgraph/confgraph/pkg/registry"
	"github.com/confgraph/confgraph/pkg/store"
)

var (
	// Global flags
	manifestPath string
	logLevel     string
	jsonOutput   bool
	tokenFlags   []string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "confgraph",
		Short: "Confgraph - Configuration-driven object graph resolver",
		Long: `Confgraph merges layered configuration sources into one section store
and resolves sections into typed values and object graphs on demand.

Features:
  - INI/YAML/JSON/string/environment sources via an ordered import manifest
  - Directive grammar inside option values (instance:, eval:, json:, ...)
  - Shared-instance cache with default/evict/deep sharing policies
  - Sandboxed Starlark expression evaluation
  - Rebuild-on-change watching over contributing files`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&manifestPath, "config", "c", "", "import manifest path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringArrayVar(&tokenFlags, "token", nil, "path token value as name=value (repeatable)")

	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newSectionsCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newDumpCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}

// pathTokens builds the ^{token} substitution map from the --token flags,
// always supplying config_path as the manifest's own directory.
func pathTokens() (map[string]string, error) {
	tokens := map[string]string{}
	if manifestPath != "" {
		tokens["config_path"] = filepath.Dir(manifestPath)
	}
	for _, kv := range tokenFlags {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("invalid token %q, expected name=value", kv)
		}
		tokens[name] = value
	}
	return tokens, nil
}

// loadStore merges the manifest named by --config into a section store.
func loadStore() (*store.Store, *imports.Resolver, error) {
	if manifestPath == "" {
		return nil, nil, fmt.Errorf("no import manifest given, use --config")
	}
	manifest, err := imports.Load(manifestPath)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := pathTokens()
	if err != nil {
		return nil, nil, err
	}
	resolver := imports.NewResolver(tokens)
	resolver.Evaluator = eval.New(5 * time.Second)
	resolver.Logger = log.Logger
	st, err := resolver.Merge(manifest)
	if err != nil {
		return nil, nil, err
	}
	for _, diag := range resolver.Diagnostics() {
		log.Warn().Msg(diag)
	}
	return st, resolver, nil
}

// newGraph builds a resolver over st. The CLI registers no constructible
// types, so typed sections fail and plain sections resolve to settings, which
// is what inspection commands print.
func newGraph(st *store.Store) *graph.Resolver {
	logger := log.Logger
	return graph.New(st, registry.New(), graph.Options{
		Evaluator: eval.New(5 * time.Second),
		Logger:    &logger,
	})
}

// applyLogLevel raises or lowers the global level for one command run.
func applyLogLevel() {
	switch logLevel {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	}
}
