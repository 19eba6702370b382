// Package imports merges configuration sources into one section store from an
// ordered YAML manifest. Entry file paths may carry ^{token} placeholders
// filled from caller-supplied values and ${section:option} placeholders filled
// from sections already merged; after all entries are in, a global
// substitution pass resolves forward references between them.
package imports

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/confgraph/confgraph/pkg/fault"
)

// Entry describes one configuration source in a manifest.
type Entry struct {
	// Type selects the source reader.
	Type string `yaml:"type" validate:"required,oneof=ini yaml json string environment import conditional"`

	// ConfigFile is the source path; it may hold ^{token} and
	// ${section:option} placeholders. ConfigFiles merges several paths in
	// order under one entry.
	ConfigFile  string   `yaml:"config_file"`
	ConfigFiles []string `yaml:"config_files"`

	// Content is the inline INI text of a string entry.
	Content string `yaml:"content"`

	// Section names the target section of an environment entry.
	Section string `yaml:"section"`

	// Prefix filters environment variables for an environment entry.
	Prefix string `yaml:"prefix"`

	// Optional makes a missing source a recorded diagnostic instead of a
	// failure.
	Optional bool `yaml:"optional"`

	// References lists section names this entry's path placeholders may
	// use before the global pass; they must already be merged.
	References []string `yaml:"references"`

	// If, Then, and Else form a conditional entry: If is evaluated through
	// the directive rules and the matching branch's subtree is merged.
	// Then and Else must each hold exactly one identically-named child.
	If   string         `yaml:"if"`
	Then map[string]any `yaml:"then"`
	Else map[string]any `yaml:"else"`
}

// paths returns the entry's path list regardless of which field declared it.
func (e *Entry) paths() []string {
	if len(e.ConfigFiles) > 0 {
		return e.ConfigFiles
	}
	if e.ConfigFile != "" {
		return []string{e.ConfigFile}
	}
	return nil
}

// Manifest is the ordered description of configuration sources to merge.
type Manifest struct {
	// Sections lists the entry names in merge order.
	Sections []string `yaml:"sections" validate:"required,min=1"`

	// References lists section names every entry may use in path
	// placeholders.
	References []string `yaml:"references"`

	// Config holds the entry definitions keyed by name.
	Config map[string]*Entry `yaml:"config" validate:"required"`
}

var validate = validator.New()

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Import(
			fmt.Sprintf("can not read manifest %q", path), err)
	}
	return Parse(data, path)
}

// Parse decodes and validates manifest bytes.
func Parse(data []byte, source string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fault.Import(
			fmt.Sprintf("manifest %q is not valid YAML", source), err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fault.Import(
			fmt.Sprintf("manifest %q is incomplete", source), err)
	}
	for _, name := range m.Sections {
		entry, ok := m.Config[name]
		if !ok {
			return nil, fault.Import(
				fmt.Sprintf("manifest %q lists section %q without a config entry",
					source, name), nil)
		}
		if err := validate.Struct(entry); err != nil {
			return nil, fault.Import(
				fmt.Sprintf("manifest %q entry %q is invalid", source, name), err)
		}
	}
	if err := m.checkReferenceCycles(); err != nil {
		return nil, err
	}
	return &m, nil
}

// checkReferenceCycles rejects manifests whose entries reference each other
// circularly; references must form an order the Sections list can honor.
func (m *Manifest) checkReferenceCycles() error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(m.Config))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case visiting:
			return fault.Import(
				fmt.Sprintf("manifest references form a cycle through %q", name), nil).
				WithChain(append(path, name))
		case done:
			return nil
		}
		state[name] = visiting
		entry := m.Config[name]
		if entry != nil {
			for _, ref := range entry.References {
				if _, isEntry := m.Config[ref]; isEntry {
					if err := visit(ref, append(path, name)); err != nil {
						return err
					}
				}
			}
		}
		state[name] = done
		return nil
	}
	for _, name := range m.Sections {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}
