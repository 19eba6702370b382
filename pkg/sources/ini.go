package sources

import (
	"fmt"

	"github.com/go-ini/ini"

	"github.com/confgraph/confgraph/pkg/fault"
	"github.com/confgraph/confgraph/pkg/store"
)

// INIReader loads sections from an INI file.
type INIReader struct {
	// Path is the file to load.
	Path string
}

// NewINIReader creates a reader for the given INI file.
func NewINIReader(path string) *INIReader {
	return &INIReader{Path: path}
}

// Description implements Reader.
func (r *INIReader) Description() string {
	return r.Path
}

// Read implements Reader.
func (r *INIReader) Read() (*store.Store, error) {
	f, err := ini.LoadSources(ini.LoadOptions{}, r.Path)
	if err != nil {
		return nil, fault.Import(
			fmt.Sprintf("can not load INI file %q", r.Path), err)
	}
	return iniToStore(f, r.Path), nil
}

// StringReader loads sections from an INI-formatted literal string.
type StringReader struct {
	// Content is the INI text.
	Content string
}

// NewStringReader creates a reader over literal INI content.
func NewStringReader(content string) *StringReader {
	return &StringReader{Content: content}
}

// Description implements Reader.
func (r *StringReader) Description() string {
	return "string"
}

// Read implements Reader.
func (r *StringReader) Read() (*store.Store, error) {
	f, err := ini.LoadSources(ini.LoadOptions{}, []byte(r.Content))
	if err != nil {
		return nil, fault.Import("can not parse string config", err)
	}
	return iniToStore(f, "string"), nil
}

func iniToStore(f *ini.File, source string) *store.Store {
	st := store.New()
	origin := store.NewOrigin(source)
	for _, isec := range f.Sections() {
		name := isec.Name()
		if name == ini.DefaultSection {
			if len(isec.Keys()) == 0 {
				continue
			}
			name = "default"
		}
		sec := store.NewSection(name, origin)
		for _, key := range isec.Keys() {
			sec.Set(key.Name(), key.Value())
		}
		st.Merge(sec)
	}
	return st
}
