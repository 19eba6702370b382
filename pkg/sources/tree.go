package sources

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/confgraph/confgraph/pkg/store"
)

// flattenTree converts a nested mapping into flat sections. Every mapping
// node with at least one scalar child becomes a section named by the
// dot-joined path to the node; scalar children become its options. Mapping
// children recurse; sequence and other non-scalar children are carried as
// json: directive values so no type information is lost.
func flattenTree(st *store.Store, origin store.Origin, path string, node map[string]any) {
	var sec *store.Section
	for _, key := range sortedKeys(node) {
		child := node[key]
		if m, ok := asStringMap(child); ok {
			flattenTree(st, origin, path+"."+key, m)
			continue
		}
		if sec == nil {
			sec = store.NewSection(path, origin)
		}
		sec.Set(key, formatScalar(child))
	}
	if sec != nil {
		st.Merge(sec)
	}
}

// asStringMap normalizes the two mapping shapes the YAML and JSON decoders
// produce.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprintf("%v", k)] = val
		}
		return out, true
	}
	return nil, false
}

// formatScalar renders a decoded value back into the directive value grammar
// so the flattened option round-trips through the parser.
func formatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return "json: " + string(b)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Decoded maps are unordered; sort so flattening is deterministic.
	sort.Strings(keys)
	return keys
}
