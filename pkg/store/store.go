package store

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/confgraph/confgraph/pkg/fault"
)

// Store is the merged, ordered collection of configuration sections. Sections
// are append-merged: a later source's option overwrites an earlier one's under
// the same section and option name. Section names are unique post-merge.
type Store struct {
	names    []string
	sections map[string]*Section
	trees    map[string]any
}

// New creates an empty store.
func New() *Store {
	return &Store{
		sections: make(map[string]*Section),
		trees:    make(map[string]any),
	}
}

// Merge appends sections into the store.
func (st *Store) Merge(secs ...*Section) {
	for _, sec := range secs {
		existing, ok := st.sections[sec.Name]
		if !ok {
			st.names = append(st.names, sec.Name)
			st.sections[sec.Name] = sec.Clone()
			continue
		}
		existing.merge(sec)
	}
}

// MergeStore appends every section of other into the store.
func (st *Store) MergeStore(other *Store) {
	for _, name := range other.names {
		st.Merge(other.sections[name])
	}
	for root, tree := range other.trees {
		st.MergeTree(root, tree)
	}
}

// MergeTree retains the nested mapping a structured source (YAML/JSON) was
// flattened from, keyed by its top-level node name. The tree serves the
// tree: directive's dot-path lookups.
func (st *Store) MergeTree(root string, tree any) {
	st.trees[root] = tree
}

// Section returns the section with the given name.
func (st *Store) Section(name string) (*Section, bool) {
	sec, ok := st.sections[name]
	return sec, ok
}

// Has reports whether a section exists.
func (st *Store) Has(name string) bool {
	_, ok := st.sections[name]
	return ok
}

// Names returns the section names in merge order.
func (st *Store) Names() []string {
	return append([]string(nil), st.names...)
}

// Len returns the number of sections.
func (st *Store) Len() int {
	return len(st.names)
}

// Option returns the raw value at section:option.
func (st *Store) Option(section, option string) (string, bool) {
	sec, ok := st.sections[section]
	if !ok {
		return "", false
	}
	return sec.Get(option)
}

// Tree walks a dot-separated path into the retained nested mappings and
// returns the node found there.
func (st *Store) Tree(path string) (any, bool) {
	parts := strings.Split(path, ".")
	node, ok := st.trees[parts[0]]
	if !ok {
		return nil, false
	}
	for _, part := range parts[1:] {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Expand substitutes ${section:option} references in value using the current
// store contents. References are expanded recursively; a reference chain that
// revisits itself fails rather than looping. A literal dollar sign is written
// as $$.
func (st *Store) Expand(value string) (string, error) {
	return st.expand(value, make(map[string]bool))
}

func (st *Store) expand(value string, visiting map[string]bool) (string, error) {
	if !strings.Contains(value, "$") {
		return value, nil
	}
	var sb strings.Builder
	for i := 0; i < len(value); {
		c := value[i]
		if c != '$' {
			sb.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(value) && value[i+1] == '$' {
			sb.WriteByte('$')
			i += 2
			continue
		}
		if i+1 >= len(value) || value[i+1] != '{' {
			sb.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(value[i+2:], '}')
		if end < 0 {
			return "", fault.Malformed(
				fmt.Sprintf("unterminated reference in %q", value), nil)
		}
		ref := value[i+2 : i+2+end]
		resolved, err := st.expandRef(ref, visiting)
		if err != nil {
			return "", err
		}
		sb.WriteString(resolved)
		i += end + 3
	}
	return sb.String(), nil
}

func (st *Store) expandRef(ref string, visiting map[string]bool) (string, error) {
	section, option, ok := strings.Cut(ref, ":")
	if !ok {
		return "", fault.Malformed(
			fmt.Sprintf("reference %q is not of the form section:option", ref), nil)
	}
	if visiting[ref] {
		return "", fault.New(fault.KindCyclicDependency,
			fmt.Sprintf("substitution reference %q revisits itself", ref), nil).
			WithSection(section)
	}
	raw, found := st.Option(section, option)
	if !found {
		if !st.Has(section) {
			return "", fault.MissingSection(section)
		}
		return "", fault.New(fault.KindMissingSection,
			fmt.Sprintf("no option %q in section %q", option, section), nil).
			WithSection(section)
	}
	visiting[ref] = true
	defer delete(visiting, ref)
	return st.expand(raw, visiting)
}

// ResolveAll runs the global substitution pass over every option in the
// store, writing the expanded values back. It is called once after all import
// entries merge so forward references between sources resolve correctly.
func (st *Store) ResolveAll() error {
	for _, name := range st.names {
		sec := st.sections[name]
		for _, key := range sec.Keys() {
			raw, _ := sec.Get(key)
			expanded, err := st.Expand(raw)
			if err != nil {
				if fe, ok := err.(*fault.Error); ok && fe.Section == "" {
					fe.WithSection(name)
				}
				return err
			}
			sec.Set(key, expanded)
		}
	}
	return nil
}

// WriteINI writes the store in INI syntax, sections in merge order.
func (st *Store) WriteINI(w io.Writer) error {
	for i, name := range st.names {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "[%s]\n", name); err != nil {
			return err
		}
		sec := st.sections[name]
		for _, key := range sec.Keys() {
			v, _ := sec.Get(key)
			if _, err := fmt.Fprintf(w, "%s = %s\n", key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteJSON writes the store as a two-level JSON object with sorted keys.
func (st *Store) WriteJSON(w io.Writer) error {
	out := make(map[string]map[string]string, len(st.names))
	for _, name := range st.names {
		out[name] = st.sections[name].Options()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// SortedNames returns the section names sorted lexically, for stable output
// where merge order does not matter.
func (st *Store) SortedNames() []string {
	names := st.Names()
	sort.Strings(names)
	return names
}
