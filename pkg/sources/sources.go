// Package sources contains the configuration format readers that feed the
// section store: INI, YAML, JSON, literal string, and process environment.
// Readers only produce sections; substitution, merging, and directive
// interpretation happen downstream.
package sources

import (
	"github.com/confgraph/confgraph/pkg/store"
)

// Reader loads configuration sections from one underlying source.
type Reader interface {
	// Read parses the source and returns its sections (and, for
	// structured formats, retained trees) as a store.
	Read() (*store.Store, error)

	// Description identifies the source for provenance and diagnostics.
	Description() string
}
