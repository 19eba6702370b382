// Package registry maps type identifiers used in configuration sections to
// registered builder functions. It replaces the original design's runtime
// reflection over arbitrary class names: every constructible type is
// registered at program start, and dataclass-style shaping goes through an
// explicit zero-value factory plus struct validation.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"github.com/confgraph/confgraph/pkg/directive"
	"github.com/confgraph/confgraph/pkg/fault"
	"github.com/confgraph/confgraph/pkg/store"
)

// Bindings are the resolved constructor bindings derived from a section's
// options.
type Bindings map[string]any

// Graph is the instance graph builder as seen by constructors, so registered
// builders can resolve further sections without importing the graph package.
type Graph interface {
	Resolve(section string) (any, error)
	ResolveShare(section string, overrides map[string]any, share directive.Share) (any, error)
}

// BuildContext carries the identifying section name, the owning
// configuration, and the builder itself into a constructor. Constructors take
// what they need from it; bindings the caller supplied always win over
// context-derived values.
type BuildContext struct {
	// Name is the section being constructed.
	Name string

	// Config is the merged section store the instance is built from.
	Config *store.Store

	// Graph is the instance graph builder performing the construction.
	Graph Graph
}

// Factory constructs instances of one registered type.
type Factory struct {
	// New returns a zero value of the target type; required for dataclass
	// shaping, optional otherwise.
	New func() any

	// Build constructs an instance from resolved bindings.
	Build func(ctx BuildContext, bindings Bindings) (any, error)
}

// Registry stores the type identifier to factory mapping.
type Registry struct {
	factories map[string]*Factory
	validate  *validator.Validate
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		factories: make(map[string]*Factory),
		validate:  validator.New(),
	}
}

// Register adds a factory under the given type identifier. Registering the
// same identifier twice panics: registration happens at program start and a
// duplicate is a programming error.
func (r *Registry) Register(name string, f Factory) {
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("type %q already registered", name))
	}
	r.factories[name] = &f
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (*Factory, bool) {
	f, ok := r.factories[name]
	return f, ok
}

// Names returns the registered type identifiers, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shape builds a dataclass-style instance of the named type from nested
// mapping data. The data is shaped onto the type's zero value field by
// field; unknown fields and absent required fields (validator `required`
// tags) fail.
func (r *Registry) Shape(name string, data any) (any, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fault.Instantiation("",
			fmt.Errorf("no such registered type: %q", name))
	}
	if f.New == nil {
		return nil, fault.Instantiation("",
			fmt.Errorf("type %q does not support dataclass shaping", name))
	}
	target := f.New()
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fault.Instantiation("",
			fmt.Errorf("can not encode data for type %q: %w", name, err))
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, fault.Instantiation("",
			fmt.Errorf("data does not fit type %q: %w", name, err))
	}
	if err := r.validate.Struct(target); err != nil {
		return nil, fault.Instantiation("",
			fmt.Errorf("required fields absent for type %q: %w", name, err))
	}
	return target, nil
}
