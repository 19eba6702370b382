package imports

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/confgraph/confgraph/pkg/directive"
	"github.com/confgraph/confgraph/pkg/fault"
	"github.com/confgraph/confgraph/pkg/sources"
	"github.com/confgraph/confgraph/pkg/store"
	"github.com/confgraph/confgraph/pkg/telemetry"
)

var (
	tokenRe = regexp.MustCompile(`\^\{([^}]+)\}`)
	refRe   = regexp.MustCompile(`\$\{([^:${}]+):([^${}]+)\}`)
)

// Resolver merges the sources a manifest describes into one section store.
type Resolver struct {
	// Tokens supplies ^{token} placeholder values, e.g. a --config flag
	// supplying ^{config_path}.
	Tokens map[string]string

	// Evaluator backs directive evaluation of conditional if nodes; nil
	// restricts conditions to the non-eval rules.
	Evaluator directive.Evaluator

	// Metrics records merged and skipped entries; nil disables it.
	Metrics *telemetry.Metrics

	// Logger reports per-entry merge progress.
	Logger zerolog.Logger

	diagnostics []string
	files       []string
}

// NewResolver creates a resolver with the given path tokens.
func NewResolver(tokens map[string]string) *Resolver {
	return &Resolver{Tokens: tokens, Logger: zerolog.Nop()}
}

// Diagnostics returns the recorded skip notices, one per skipped optional
// entry, in merge order.
func (r *Resolver) Diagnostics() []string {
	return append([]string(nil), r.diagnostics...)
}

// Files returns the substituted paths of every file source that was merged,
// in merge order; the set a change watcher should cover.
func (r *Resolver) Files() []string {
	return append([]string(nil), r.files...)
}

// Merge processes the manifest entries strictly in list order and returns the
// merged store after a final global substitution pass, so sections merged
// late can be referenced by values merged early.
func (r *Resolver) Merge(m *Manifest) (*store.Store, error) {
	st := store.New()
	if err := r.mergeInto(st, m); err != nil {
		return nil, err
	}
	if err := st.ResolveAll(); err != nil {
		return nil, err
	}
	return st, nil
}

func (r *Resolver) mergeInto(st *store.Store, m *Manifest) error {
	for _, name := range m.Sections {
		entry := m.Config[name]
		if err := r.mergeEntry(st, m, name, entry); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) mergeEntry(st *store.Store, m *Manifest, name string, entry *Entry) error {
	allowed := r.allowedSections(st, m, entry)
	switch entry.Type {
	case "string":
		return r.mergeReader(st, name, entry, sources.NewStringReader(entry.Content))
	case "environment":
		section := entry.Section
		if section == "" {
			section = name
		}
		return r.mergeReader(st, name, entry, sources.NewEnvReader(section, entry.Prefix))
	case "conditional":
		return r.mergeConditional(st, name, entry)
	}

	paths := entry.paths()
	if len(paths) == 0 {
		return fault.Import(
			fmt.Sprintf("entry %q has no config_file", name), nil)
	}
	for _, raw := range paths {
		path, err := r.substitute(st, name, raw, allowed)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			if entry.Optional {
				r.skip(name, fmt.Sprintf("optional source %q is absent", path))
				continue
			}
			return fault.Import(
				fmt.Sprintf("entry %q: can not load %q", name, path), err)
		}
		switch entry.Type {
		case "ini":
			if err := r.mergeReader(st, name, entry, sources.NewINIReader(path)); err != nil {
				return err
			}
		case "yaml":
			if err := r.mergeReader(st, name, entry, sources.NewYAMLReader(path)); err != nil {
				return err
			}
		case "json":
			if err := r.mergeReader(st, name, entry, sources.NewJSONReader(path)); err != nil {
				return err
			}
		case "import":
			nested, err := Load(path)
			if err != nil {
				return err
			}
			if err := r.mergeInto(st, nested); err != nil {
				return err
			}
			r.Metrics.ImportMerged()
		}
		r.files = append(r.files, path)
	}
	return nil
}

// mergeReader loads one source and append-merges its sections; a read failure
// on an optional entry is skipped with a diagnostic.
func (r *Resolver) mergeReader(st *store.Store, name string, entry *Entry, reader sources.Reader) error {
	loaded, err := reader.Read()
	if err != nil {
		if entry.Optional {
			r.skip(name, fmt.Sprintf("optional source %s failed: %v", reader.Description(), err))
			return nil
		}
		return fault.Import(
			fmt.Sprintf("entry %q: can not load %s", name, reader.Description()), err)
	}
	st.MergeStore(loaded)
	r.Metrics.ImportMerged()
	r.Logger.Debug().Str("entry", name).Str("source", reader.Description()).
		Int("sections", loaded.Len()).Msg("Merged import entry")
	return nil
}

// mergeConditional evaluates the if node through the directive rules and
// merges the subtree of the matching branch.
func (r *Resolver) mergeConditional(st *store.Store, name string, entry *Entry) error {
	if entry.If == "" || entry.Then == nil || entry.Else == nil {
		return fault.Import(
			fmt.Sprintf("conditional entry %q needs if, then, and else nodes", name), nil)
	}
	thenName, err := singleChild(name, "then", entry.Then)
	if err != nil {
		return err
	}
	elseName, err := singleChild(name, "else", entry.Else)
	if err != nil {
		return err
	}
	if thenName != elseName {
		return fault.Import(
			fmt.Sprintf("conditional entry %q: then child %q and else child %q differ",
				name, thenName, elseName), nil)
	}

	parser := directive.NewParser(st)
	parser.Evaluator = r.Evaluator
	parser.Logger = r.Logger
	cond, err := parser.Value(entry.If)
	if err != nil {
		return fault.Import(
			fmt.Sprintf("conditional entry %q: can not evaluate if node", name), err)
	}
	branch := entry.Else
	if truthy(cond) {
		branch = entry.Then
	}
	st.MergeStore(sources.TreeToStore(branch, fmt.Sprintf("conditional:%s", name)))
	r.Metrics.ImportMerged()
	return nil
}

// allowedSections is the set of section names an entry's ${section:option}
// path placeholders may use: everything already merged plus the manifest's
// and the entry's declared references.
func (r *Resolver) allowedSections(st *store.Store, m *Manifest, entry *Entry) map[string]bool {
	allowed := make(map[string]bool)
	for _, name := range st.Names() {
		allowed[name] = true
	}
	for _, ref := range m.References {
		allowed[ref] = true
	}
	for _, ref := range entry.References {
		allowed[ref] = true
	}
	return allowed
}

// substitute fills ^{token} and ${section:option} placeholders in a path.
// An undeclared section reference fails even when the section is otherwise
// loadable later: forward references belong to the global pass, not paths.
func (r *Resolver) substitute(st *store.Store, entry, path string, allowed map[string]bool) (string, error) {
	var firstErr error
	out := tokenRe.ReplaceAllStringFunc(path, func(match string) string {
		token := tokenRe.FindStringSubmatch(match)[1]
		v, ok := r.Tokens[token]
		if !ok {
			if firstErr == nil {
				firstErr = fault.Import(
					fmt.Sprintf("entry %q: no value supplied for path token %q",
						entry, token), nil)
			}
			return match
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	out = refRe.ReplaceAllStringFunc(out, func(match string) string {
		parts := refRe.FindStringSubmatch(match)
		section, option := parts[1], parts[2]
		if !allowed[section] {
			if firstErr == nil {
				firstErr = fault.Import(
					fmt.Sprintf("entry %q: path references section %q, which is not loaded or declared in references",
						entry, section), nil)
			}
			return match
		}
		v, ok := st.Option(section, option)
		if !ok {
			if firstErr == nil {
				firstErr = fault.Import(
					fmt.Sprintf("entry %q: path references missing option %s:%s",
						entry, section, option), nil)
			}
			return match
		}
		return v
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (r *Resolver) skip(entry, reason string) {
	r.diagnostics = append(r.diagnostics,
		fmt.Sprintf("entry %q skipped: %s", entry, reason))
	r.Metrics.ImportSkipped()
	r.Logger.Warn().Str("entry", entry).Str("reason", reason).
		Msg("Skipped optional import entry")
}

func singleChild(entry, branch string, node map[string]any) (string, error) {
	if len(node) != 1 {
		return "", fault.Import(
			fmt.Sprintf("conditional entry %q: %s must hold exactly one child, has %d",
				entry, branch, len(node)), nil)
	}
	for name := range node {
		return name, nil
	}
	return "", nil
}

// truthy decides a conditional branch from a parsed if value.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		return strings.TrimSpace(t) != ""
	}
	return true
}
