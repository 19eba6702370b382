// Package graph builds object graphs from a merged section store. Sections
// carrying a class_name option resolve to constructed instances through the
// type registry; plain sections resolve to ordered Settings. Resolution is
// lazy and recursive: instantiation directives inside option values pull in
// further sections on demand, with per-section sharing policies deciding how
// constructed objects are cached.
package graph

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/confgraph/confgraph/pkg/directive"
	"github.com/confgraph/confgraph/pkg/fault"
	"github.com/confgraph/confgraph/pkg/memspace"
	"github.com/confgraph/confgraph/pkg/registry"
	"github.com/confgraph/confgraph/pkg/store"
	"github.com/confgraph/confgraph/pkg/telemetry"
)

// typeKey is the section option naming the registered type to construct.
const typeKey = "class_name"

// AppLocator resolves application directives: given an owner token it returns
// a fully configured resolver over that application's own section store.
type AppLocator interface {
	App(owner string) (*Resolver, error)
}

// Options carries the optional collaborators of a resolver.
type Options struct {
	// Evaluator handles eval: directives; nil makes them fail.
	Evaluator directive.Evaluator

	// Resources handles resource: directives; nil degrades them to plain
	// path expansion.
	Resources directive.ResourceLocator

	// Applications handles application: directives; nil makes them fail.
	Applications AppLocator

	// Metrics records cache and instantiation counters; nil disables them.
	Metrics *telemetry.Metrics

	// Logger reports resolution progress; nil disables logging.
	Logger *zerolog.Logger
}

// Resolver is the instance graph builder. It is not safe for concurrent use;
// callers resolving from multiple goroutines serialize externally.
type Resolver struct {
	store    *store.Store
	registry *registry.Registry
	cache    *memspace.Manager
	parser   *directive.Parser
	apps     AppLocator
	metrics  *telemetry.Metrics
	log      zerolog.Logger

	// stack is the active resolution path, outermost first.
	stack []string

	// deep counts enclosing deep-share resolutions; any nesting depth
	// above zero bypasses the cache entirely.
	deep int
}

// New creates a resolver over the given store and type registry.
func New(st *store.Store, reg *registry.Registry, opts Options) *Resolver {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}
	r := &Resolver{
		store:    st,
		registry: reg,
		cache:    memspace.New(),
		apps:     opts.Applications,
		metrics:  opts.Metrics,
		log:      log,
	}
	r.parser = &directive.Parser{
		Store:        st,
		Materializer: r,
		Evaluator:    opts.Evaluator,
		Resources:    opts.Resources,
		Logger:       log,
	}
	return r
}

// Store returns the underlying section store.
func (r *Resolver) Store() *store.Store {
	return r.store
}

// Registry returns the type registry.
func (r *Resolver) Registry() *registry.Registry {
	return r.registry
}

// Parser returns the directive parser bound to this resolver.
func (r *Resolver) Parser() *directive.Parser {
	return r.parser
}

// Resolve resolves a section under the default sharing policy.
func (r *Resolver) Resolve(section string) (any, error) {
	return r.ResolveShare(section, nil, directive.ShareDefault)
}

// ResolveShare resolves a section under an explicit sharing policy, with
// overrides merged into the section's bindings before construction.
func (r *Resolver) ResolveShare(section string, overrides map[string]any, share directive.Share) (any, error) {
	switch share {
	case directive.ShareDeep:
		r.deep++
		defer func() { r.deep-- }()
		return r.build(section, overrides)
	case directive.ShareEvict:
		v, err := r.resolveCached(section, overrides)
		if err != nil {
			return nil, err
		}
		if _, ok := r.cache.Evict(section); ok {
			r.metrics.CacheEviction()
		}
		return v, nil
	default:
		return r.resolveCached(section, overrides)
	}
}

// resolveCached consults the shared-instance cache before building. Inside a
// deep-share resolution the cache is not read or written at all.
func (r *Resolver) resolveCached(section string, overrides map[string]any) (any, error) {
	if r.deep > 0 {
		return r.build(section, overrides)
	}
	if v, ok := r.cache.Get(section); ok {
		r.metrics.CacheHit()
		r.log.Trace().Str("section", section).Msg("Cache hit")
		return v, nil
	}
	r.metrics.CacheMiss()
	r.cache.MarkResolving(section)
	v, err := r.build(section, overrides)
	if err != nil {
		r.cache.Release(section)
		return nil, err
	}
	r.cache.Put(section, v)
	return v, nil
}

// build constructs a section's value without consulting the cache. It pushes
// the section onto the resolution stack so re-entry anywhere below reports
// the full cycle path.
func (r *Resolver) build(section string, overrides map[string]any) (any, error) {
	for _, active := range r.stack {
		if active == section {
			return nil, fault.Cycle(section, append(r.chain(), section))
		}
	}
	r.stack = append(r.stack, section)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	sec, ok := r.store.Section(section)
	if !ok {
		return nil, fault.MissingSection(section).WithChain(r.chain())
	}

	r.log.Debug().Str("section", section).Msg("Building section")
	typeName, bindings, err := r.bindings(sec, overrides)
	if err != nil {
		return nil, err
	}
	if typeName == "" {
		settings := NewSettings(section)
		for _, key := range bindings.Keys() {
			v, _ := bindings.Get(key)
			settings.Set(key, v)
		}
		return settings, nil
	}
	return r.construct(section, sec.Origin, typeName, bindings.AsMap())
}

// bindings parses a section's options in order, overlaying overrides last.
// The returned type name is empty for plain settings sections.
func (r *Resolver) bindings(sec *store.Section, overrides map[string]any) (string, *Settings, error) {
	typeName := ""
	out := NewSettings(sec.Name)
	for _, key := range sec.Keys() {
		raw, _ := sec.Get(key)
		expanded, err := r.store.Expand(raw)
		if err != nil {
			return "", nil, err
		}
		if key == typeKey {
			typeName = expanded
			continue
		}
		v, err := r.parser.Value(expanded)
		if err != nil {
			return "", nil, r.wrap(sec.Name, sec.Origin, err)
		}
		out.Set(key, v)
	}
	for k, v := range overrides {
		out.Set(k, v)
	}
	return typeName, out, nil
}

// construct runs the registered factory for typeName over the bindings.
func (r *Resolver) construct(section string, origin store.Origin, typeName string, bindings map[string]any) (any, error) {
	f, ok := r.registry.Lookup(typeName)
	if !ok {
		return nil, fault.Instantiation(section,
			fmt.Errorf("no such registered type: %q", typeName)).
			WithSource(origin.Source).WithChain(r.chain())
	}
	if f.Build == nil {
		return nil, fault.Instantiation(section,
			fmt.Errorf("type %q has no builder", typeName)).
			WithSource(origin.Source).WithChain(r.chain())
	}
	ctx := registry.BuildContext{Name: section, Config: r.store, Graph: r}
	v, err := f.Build(ctx, bindings)
	if err != nil {
		r.metrics.Instantiation("error")
		return nil, r.wrap(section, origin, err)
	}
	r.metrics.Instantiation("ok")
	r.log.Debug().Str("section", section).Str("type", typeName).
		Msg("Constructed instance")
	return v, nil
}

// wrap upgrades a construction failure to a classified fault with section
// provenance and the active resolution path. Faults pass through with the
// chain filled in when absent.
func (r *Resolver) wrap(section string, origin store.Origin, err error) error {
	if fe, ok := err.(*fault.Error); ok {
		if len(fe.Chain) == 0 {
			fe.WithChain(r.chain())
		}
		return fe
	}
	return fault.Instantiation(section, err).
		WithSource(origin.Source).WithChain(r.chain())
}

func (r *Resolver) chain() []string {
	return append([]string(nil), r.stack...)
}

// Instance implements directive.Materializer.
func (r *Resolver) Instance(section string, overrides map[string]any, share directive.Share) (any, error) {
	return r.ResolveShare(section, overrides, share)
}

// Object constructs an instance of an inline type name. The result is never
// cached: each object: directive yields a fresh instance under a synthetic
// name.
func (r *Resolver) Object(typeName string, bindings map[string]any) (any, error) {
	name := fmt.Sprintf("object:%s:%s", typeName, uuid.NewString()[:8])
	return r.construct(name, store.Origin{}, typeName, bindings)
}

// Dataclass builds a structured instance of typeName from the section's data:
// a mapping tree merged under the section name when one exists, otherwise the
// section's resolved settings.
func (r *Resolver) Dataclass(typeName, section string) (any, error) {
	if node, ok := r.store.Tree(section); ok {
		data, err := r.parseNode(node)
		if err != nil {
			return nil, r.wrap(section, store.Origin{}, err)
		}
		v, err := r.registry.Shape(typeName, data)
		if err != nil {
			return nil, r.wrap(section, store.Origin{}, err)
		}
		return v, nil
	}
	resolved, err := r.ResolveShare(section, nil, directive.ShareDeep)
	if err != nil {
		return nil, err
	}
	settings, ok := resolved.(*Settings)
	if !ok {
		return nil, fault.Instantiation(section,
			fmt.Errorf("section resolves to %T, not settings data", resolved))
	}
	v, err := r.registry.Shape(typeName, settings.AsMap())
	if err != nil {
		return nil, r.wrap(section, store.Origin{}, err)
	}
	return v, nil
}

// ClassRef returns the registered factory itself.
func (r *Resolver) ClassRef(typeName string) (any, error) {
	f, ok := r.registry.Lookup(typeName)
	if !ok {
		return nil, fault.Instantiation("",
			fmt.Errorf("no such registered type: %q", typeName))
	}
	return f, nil
}

// Tree builds a value from the mapping node at a dot-separated path. A node
// carrying a class_name key constructs a typed instance; any other node
// returns its parsed form with overrides applied. Tree values are never
// cached.
func (r *Resolver) Tree(path string, overrides map[string]any) (any, error) {
	node, ok := r.store.Tree(path)
	if !ok {
		return nil, fault.MissingSection(path).WithChain(r.chain())
	}
	parsed, err := r.parseNode(node)
	if err != nil {
		return nil, r.wrap(path, store.Origin{}, err)
	}
	m, ok := parsed.(map[string]any)
	if !ok {
		if len(overrides) > 0 {
			return nil, fault.Instantiation(path,
				fmt.Errorf("tree node is %T, overrides need a mapping", parsed))
		}
		return parsed, nil
	}
	for k, v := range overrides {
		m[k] = v
	}
	typeName, _ := m[typeKey].(string)
	if typeName == "" {
		return m, nil
	}
	delete(m, typeKey)
	return r.construct(path, store.Origin{}, typeName, m)
}

// Application resolves target in the application graph owned by owner.
func (r *Resolver) Application(owner, target string) (any, error) {
	if r.apps == nil {
		return nil, fault.Instantiation(target,
			fmt.Errorf("no application locator configured for owner %q", owner))
	}
	app, err := r.apps.App(owner)
	if err != nil {
		return nil, fault.Instantiation(target, err).WithChain(r.chain())
	}
	return app.Resolve(target)
}

// parseNode re-classifies every string leaf of a mapping tree through the
// directive rules, so tree data carries the same value grammar as flat
// options.
func (r *Resolver) parseNode(node any) (any, error) {
	switch t := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, v := range t {
			pv, err := r.parseNode(v)
			if err != nil {
				return nil, err
			}
			out[k] = pv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, v := range t {
			pv, err := r.parseNode(v)
			if err != nil {
				return nil, err
			}
			out[i] = pv
		}
		return out, nil
	case string:
		return r.parser.Value(t)
	}
	return node, nil
}

// Populate resolves a section and shapes its settings onto target, which must
// be a pointer to a struct or map.
func (r *Resolver) Populate(section string, target any) error {
	v, err := r.Resolve(section)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return fault.Instantiation(section,
			fmt.Errorf("can not encode settings: %w", err))
	}
	if err := json.Unmarshal(encoded, target); err != nil {
		return fault.Instantiation(section,
			fmt.Errorf("settings do not fit target %T: %w", target, err))
	}
	return nil
}

// Evict drops the cached instance for a section, reporting whether one was
// cached.
func (r *Resolver) Evict(section string) bool {
	_, ok := r.cache.Evict(section)
	if ok {
		r.metrics.CacheEviction()
	}
	return ok
}

// CacheState returns the lifecycle state of a section's instance record.
func (r *Resolver) CacheState(section string) memspace.State {
	return r.cache.State(section)
}

// CachedNames returns the sections with live cached instances, sorted.
func (r *Resolver) CachedNames() []string {
	return r.cache.Names()
}

// Clear drops every cached instance. Subsequent resolutions rebuild from the
// current store contents.
func (r *Resolver) Clear() {
	r.cache.Clear()
}
