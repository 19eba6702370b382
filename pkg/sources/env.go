package sources

import (
	"os"
	"strings"

	"github.com/confgraph/confgraph/pkg/store"
)

// EnvReader exposes the process environment as a single section. Variable
// names are lowercased so they read like ordinary options.
type EnvReader struct {
	// SectionName is the section the variables land in; defaults to "env".
	SectionName string

	// Prefix, when set, keeps only variables carrying it and strips it
	// from the option name.
	Prefix string
}

// NewEnvReader creates a reader over the process environment.
func NewEnvReader(sectionName, prefix string) *EnvReader {
	if sectionName == "" {
		sectionName = "env"
	}
	return &EnvReader{SectionName: sectionName, Prefix: prefix}
}

// Description implements Reader.
func (r *EnvReader) Description() string {
	return "environment"
}

// Read implements Reader.
func (r *EnvReader) Read() (*store.Store, error) {
	st := store.New()
	sec := store.NewSection(r.SectionName, store.NewOrigin(r.Description()))
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if r.Prefix != "" {
			if !strings.HasPrefix(name, r.Prefix) {
				continue
			}
			name = strings.TrimPrefix(name, r.Prefix)
		}
		if name == "" {
			continue
		}
		sec.Set(strings.ToLower(name), value)
	}
	st.Merge(sec)
	return st, nil
}
