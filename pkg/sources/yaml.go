package sources

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/confgraph/confgraph/pkg/fault"
	"github.com/confgraph/confgraph/pkg/store"
)

// YAMLReader loads sections from a YAML file. Nested mappings flatten into
// dotted section names and the original tree is retained in the store for
// tree: directive lookups.
type YAMLReader struct {
	// Path is the file to load.
	Path string
}

// NewYAMLReader creates a reader for the given YAML file.
func NewYAMLReader(path string) *YAMLReader {
	return &YAMLReader{Path: path}
}

// Description implements Reader.
func (r *YAMLReader) Description() string {
	return r.Path
}

// Read implements Reader.
func (r *YAMLReader) Read() (*store.Store, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fault.Import(
			fmt.Sprintf("can not load YAML file %q", r.Path), err)
	}
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fault.Import(
			fmt.Sprintf("can not parse YAML file %q", r.Path), err)
	}
	return TreeToStore(root, r.Path), nil
}

// TreeToStore flattens a decoded nested mapping into a store, retaining the
// trees under their top-level node names.
func TreeToStore(root map[string]any, source string) *store.Store {
	st := store.New()
	origin := store.NewOrigin(source)
	for _, key := range sortedKeys(root) {
		child := root[key]
		m, ok := asStringMap(child)
		if !ok {
			// A scalar at the top level becomes an option of a
			// section named after the document source kind.
			sec := store.NewSection("default", origin)
			sec.Set(key, formatScalar(child))
			st.Merge(sec)
			continue
		}
		st.MergeTree(key, m)
		flattenTree(st, origin, key, m)
	}
	return st
}
