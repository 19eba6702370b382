// Package store holds the merged configuration sections consumed by the
// resolver. A Section is a named, ordered option->string mapping with
// provenance; the Store append-merges sections from one or more sources and
// performs ${section:option} variable substitution across the whole set.
package store

import (
	"github.com/google/uuid"
)

// Origin records where a section came from.
type Origin struct {
	// Source is the originating reader description, usually a file path
	// or a reader type such as "environment".
	Source string

	// ID uniquely identifies the load that produced the section, so two
	// merges of the same file remain distinguishable in diagnostics.
	ID string
}

// NewOrigin creates an origin for the given source description.
func NewOrigin(source string) Origin {
	return Origin{Source: source, ID: uuid.NewString()}
}

// Section is a named, ordered set of option/value string pairs.
type Section struct {
	// Name is the unique section key.
	Name string

	// Origin is the provenance of the most recent source that contributed
	// to this section.
	Origin Origin

	keys   []string
	values map[string]string
}

// NewSection creates an empty section.
func NewSection(name string, origin Origin) *Section {
	return &Section{
		Name:   name,
		Origin: origin,
		values: make(map[string]string),
	}
}

// Set adds or overwrites an option, preserving first-insertion order.
func (s *Section) Set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// Get returns the raw string value for key.
func (s *Section) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether the section contains key.
func (s *Section) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Keys returns the option names in insertion order.
func (s *Section) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Len returns the number of options.
func (s *Section) Len() int {
	return len(s.keys)
}

// Options returns a copy of the option mapping.
func (s *Section) Options() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of the section.
func (s *Section) Clone() *Section {
	c := NewSection(s.Name, s.Origin)
	for _, k := range s.keys {
		c.Set(k, s.values[k])
	}
	return c
}

// merge copies all options of other into s, overwriting under identical
// names, and adopts other's origin as the most recent contributor.
func (s *Section) merge(other *Section) {
	for _, k := range other.keys {
		s.Set(k, other.values[k])
	}
	s.Origin = other.Origin
}
