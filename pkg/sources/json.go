package sources

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/confgraph/confgraph/pkg/fault"
	"github.com/confgraph/confgraph/pkg/store"
)

// JSONReader loads sections from a JSON file. The document must be an object;
// nested objects flatten into dotted section names like the YAML reader.
type JSONReader struct {
	// Path is the file to load.
	Path string
}

// NewJSONReader creates a reader for the given JSON file.
func NewJSONReader(path string) *JSONReader {
	return &JSONReader{Path: path}
}

// Description implements Reader.
func (r *JSONReader) Description() string {
	return r.Path
}

// Read implements Reader.
func (r *JSONReader) Read() (*store.Store, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fault.Import(
			fmt.Sprintf("can not load JSON file %q", r.Path), err)
	}
	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fault.Import(
			fmt.Sprintf("can not parse JSON file %q", r.Path), err)
	}
	return TreeToStore(root, r.Path), nil
}
