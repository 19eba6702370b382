package graph

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/confgraph/confgraph/pkg/directive"
	"github.com/confgraph/confgraph/pkg/eval"
	"github.com/confgraph/confgraph/pkg/fault"
	"github.com/confgraph/confgraph/pkg/memspace"
	"github.com/confgraph/confgraph/pkg/registry"
	"github.com/confgraph/confgraph/pkg/sources"
	"github.com/confgraph/confgraph/pkg/telemetry"
)

type person struct {
	Name string `json:"name" validate:"required"`
	Age  int    `json:"age"`
}

type organization struct {
	Name string
	Boss *person
}

func newTestRegistry() *registry.Registry {
	reg := registry.New()
	reg.Register("Person", registry.Factory{
		New: func() any { return &person{} },
		Build: func(ctx registry.BuildContext, b registry.Bindings) (any, error) {
			p := &person{Name: ctx.Name}
			if v, ok := b["name"].(string); ok {
				p.Name = v
			}
			if v, ok := b["age"].(int); ok {
				p.Age = v
			}
			return p, nil
		},
	})
	reg.Register("Organization", registry.Factory{
		Build: func(ctx registry.BuildContext, b registry.Bindings) (any, error) {
			o := &organization{Name: ctx.Name}
			if v, ok := b["boss"].(*person); ok {
				o.Boss = v
			}
			return o, nil
		},
	})
	return reg
}

func newTestResolver(t *testing.T, ini string, opts Options) *Resolver {
	t.Helper()
	st, err := sources.NewStringReader(ini).Read()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if err := st.ResolveAll(); err != nil {
		t.Fatalf("Failed to resolve store: %v", err)
	}
	return New(st, newTestRegistry(), opts)
}

const orgConfig = `
[default]
age = 56

[bob]
class_name = Person
name = bob
age = ${default:age}

[bob_co]
class_name = Organization
boss = instance: bob
`

func TestResolveSettings(t *testing.T) {
	r := newTestResolver(t, `
[default]
root = /opt

[app]
dir = ${default:root}/data
workers = 4
ratio = 0.5
debug = True
tags = list: a, b
`, Options{})

	v, err := r.Resolve("app")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	settings, ok := v.(*Settings)
	if !ok {
		t.Fatalf("Expected *Settings, got %T", v)
	}

	if diff := cmp.Diff([]string{"dir", "workers", "ratio", "debug", "tags"}, settings.Keys()); diff != "" {
		t.Errorf("Unexpected entry order (-want +got):\n%s", diff)
	}
	if got := settings.Str("dir"); got != "/opt/data" {
		t.Errorf("Expected substituted /opt/data, got %q", got)
	}
	if got := settings.Int("workers"); got != 4 {
		t.Errorf("Expected 4, got %d", got)
	}
	if got := settings.Float("ratio"); got != 0.5 {
		t.Errorf("Expected 0.5, got %v", got)
	}
	if got := settings.Bool("debug"); !got {
		t.Error("Expected debug to parse as true")
	}
	tags, _ := settings.Get("tags")
	if diff := cmp.Diff([]string{"a", "b"}, tags); diff != "" {
		t.Errorf("Unexpected tags (-want +got):\n%s", diff)
	}
}

func TestSettingsMarshalJSONKeepsOrder(t *testing.T) {
	s := NewSettings("s")
	s.Set("z", 1)
	s.Set("a", 2)

	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(b) != `{"z":1,"a":2}` {
		t.Errorf("Expected insertion order in JSON, got %s", b)
	}
}

func TestResolveInstanceGraph(t *testing.T) {
	r := newTestResolver(t, orgConfig, Options{})

	v, err := r.Resolve("bob_co")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	org, ok := v.(*organization)
	if !ok {
		t.Fatalf("Expected *organization, got %T", v)
	}
	if org.Boss == nil || org.Boss.Age != 56 {
		t.Fatalf("Expected boss with age 56, got %+v", org.Boss)
	}

	// default sharing: the nested boss is the cached bob instance
	bob, err := r.Resolve("bob")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if org.Boss != bob.(*person) {
		t.Error("Expected bob_co's boss to be the shared bob instance")
	}
}

func TestDeepShareBuildsIndependentSubgraph(t *testing.T) {
	r := newTestResolver(t, orgConfig, Options{})

	cached, err := r.Resolve("bob_co")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	v1, err := r.ResolveShare("bob_co", nil, directive.ShareDeep)
	if err != nil {
		t.Fatalf("ResolveShare failed: %v", err)
	}
	v2, err := r.ResolveShare("bob_co", nil, directive.ShareDeep)
	if err != nil {
		t.Fatalf("ResolveShare failed: %v", err)
	}

	o1, o2 := v1.(*organization), v2.(*organization)
	if o1 == o2 {
		t.Error("Expected two deep resolutions to build distinct objects")
	}
	if o1.Boss == o2.Boss {
		t.Error("Expected nested objects to be distinct across deep resolutions")
	}
	if o1 == cached.(*organization) {
		t.Error("Expected deep resolution not to return the cached instance")
	}

	// the shared cache is untouched by deep resolutions
	again, _ := r.Resolve("bob_co")
	if again != cached {
		t.Error("Expected the cached instance to survive deep resolutions")
	}
	if o1.Boss == again.(*organization).Boss {
		t.Error("Expected the cached subgraph to be untouched")
	}
}

func TestEvictShareReturnsCachedThenDrops(t *testing.T) {
	r := newTestResolver(t, orgConfig, Options{})

	first, err := r.Resolve("bob")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	evicted, err := r.ResolveShare("bob", nil, directive.ShareEvict)
	if err != nil {
		t.Fatalf("ResolveShare failed: %v", err)
	}
	if evicted != first {
		t.Error("Expected evict to return the previously cached instance")
	}
	if got := r.CacheState("bob"); got != memspace.Evicted {
		t.Errorf("Expected EVICTED record, got %v", got)
	}

	rebuilt, err := r.Resolve("bob")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if rebuilt == first {
		t.Error("Expected a fresh instance after evict")
	}
}

func TestCyclicDependencyFails(t *testing.T) {
	r := newTestResolver(t, `
[a]
class_name = Organization
boss = instance: b

[b]
class_name = Organization
boss = instance: a
`, Options{})

	_, err := r.Resolve("a")
	if fault.KindOf(err) != fault.KindCyclicDependency {
		t.Fatalf("Expected cyclic dependency fault, got %v", err)
	}
	var fe *fault.Error
	errors.As(err, &fe)
	if diff := cmp.Diff([]string{"a", "b", "a"}, fe.Chain); diff != "" {
		t.Errorf("Unexpected cycle path (-want +got):\n%s", diff)
	}
}

func TestMissingSectionFails(t *testing.T) {
	r := newTestResolver(t, orgConfig, Options{})
	_, err := r.Resolve("ghost")
	if fault.KindOf(err) != fault.KindMissingSection {
		t.Errorf("Expected missing section fault, got %v", err)
	}
}

func TestUnknownTypeFails(t *testing.T) {
	r := newTestResolver(t, `
[x]
class_name = Ghost
`, Options{})
	_, err := r.Resolve("x")
	if fault.KindOf(err) != fault.KindInstantiation {
		t.Errorf("Expected instantiation fault, got %v", err)
	}
}

func TestFailedBuildIsNotCached(t *testing.T) {
	r := newTestResolver(t, `
[x]
class_name = Ghost
`, Options{})
	if _, err := r.Resolve("x"); err == nil {
		t.Fatal("Expected failure")
	}
	if got := r.CacheState("x"); got != memspace.Unresolved {
		t.Errorf("Expected UNRESOLVED after failed build, got %v", got)
	}
}

func TestInstanceOverrides(t *testing.T) {
	r := newTestResolver(t, orgConfig+`
[older_bob]
class_name = Organization
boss = instance({"param": {"age": "57"}, "share": "deep"}): bob
`, Options{})

	v, err := r.Resolve("older_bob")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := v.(*organization).Boss.Age; got != 57 {
		t.Errorf("Expected override age 57, got %d", got)
	}
}

func TestObjectDirective(t *testing.T) {
	r := newTestResolver(t, `
[box]
item = object({"param": {"name": "inline", "age": "31"}}): Person
`, Options{})

	v, err := r.Resolve("box")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	settings := v.(*Settings)
	item, _ := settings.Get("item")
	p, ok := item.(*person)
	if !ok {
		t.Fatalf("Expected *person, got %T", item)
	}
	if p.Name != "inline" || p.Age != 31 {
		t.Errorf("Expected inline/31, got %+v", p)
	}
}

func TestClassDirective(t *testing.T) {
	r := newTestResolver(t, `
[box]
kind = class: Person
`, Options{})

	v, err := r.Resolve("box")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	kind, _ := v.(*Settings).Get("kind")
	if _, ok := kind.(*registry.Factory); !ok {
		t.Errorf("Expected a factory reference, got %T", kind)
	}
}

func TestDataclassDirective(t *testing.T) {
	r := newTestResolver(t, `
[bob_data]
name = bob
age = 56

[box]
p = dataclass(Person): bob_data
`, Options{})

	v, err := r.Resolve("box")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	pv, _ := v.(*Settings).Get("p")
	p, ok := pv.(*person)
	if !ok {
		t.Fatalf("Expected *person, got %T", pv)
	}
	if p.Name != "bob" || p.Age != 56 {
		t.Errorf("Expected bob/56, got %+v", p)
	}
}

func TestDataclassMissingRequiredFieldFails(t *testing.T) {
	r := newTestResolver(t, `
[bob_data]
age = 56

[box]
p = dataclass(Person): bob_data
`, Options{})

	_, err := r.Resolve("box")
	if fault.KindOf(err) != fault.KindInstantiation {
		t.Errorf("Expected instantiation fault, got %v", err)
	}
}

func TestTreeDirective(t *testing.T) {
	r := newTestResolver(t, `
[box]
db = tree({"param": {"pool": "8"}}): app.db
`, Options{})
	r.Store().MergeTree("app", map[string]any{
		"db": map[string]any{"host": "localhost", "port": "5432"},
	})

	v, err := r.Resolve("box")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	db, _ := v.(*Settings).Get("db")
	want := map[string]any{"host": "localhost", "port": 5432, "pool": 8}
	if diff := cmp.Diff(want, db); diff != "" {
		t.Errorf("Unexpected tree value (-want +got):\n%s", diff)
	}
}

func TestTreeDirectiveWithClassName(t *testing.T) {
	r := newTestResolver(t, `
[box]
p = tree: people.bob
`, Options{})
	r.Store().MergeTree("people", map[string]any{
		"bob": map[string]any{"class_name": "Person", "name": "bob", "age": "41"},
	})

	v, err := r.Resolve("box")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	pv, _ := v.(*Settings).Get("p")
	p, ok := pv.(*person)
	if !ok {
		t.Fatalf("Expected *person, got %T", pv)
	}
	if p.Age != 41 {
		t.Errorf("Expected age 41, got %d", p.Age)
	}
}

func TestEvalDirectiveWithResolveBindings(t *testing.T) {
	r := newTestResolver(t, `
[stats]
age = 56

[box]
next_age = eval({"resolve": {"s": "stats"}}): s['age'] + 1
root = eval({"import": ["math as m"]}): m.sqrt(16)
`, Options{
		Evaluator: eval.New(5 * time.Second),
	})

	v, err := r.Resolve("box")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	settings := v.(*Settings)
	if got, _ := settings.Get("next_age"); got != 57 {
		t.Errorf("Expected 57, got %v", got)
	}
	if got, _ := settings.Get("root"); got != 4.0 {
		t.Errorf("Expected 4.0, got %v", got)
	}
}

type fixedApps struct {
	app *Resolver
}

func (f fixedApps) App(owner string) (*Resolver, error) {
	return f.app, nil
}

func TestApplicationDirective(t *testing.T) {
	other := newTestResolver(t, orgConfig, Options{})
	r := newTestResolver(t, `
[box]
remote_bob = application(other): bob
`, Options{Applications: fixedApps{app: other}})

	v, err := r.Resolve("box")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	rb, _ := v.(*Settings).Get("remote_bob")
	if p, ok := rb.(*person); !ok || p.Age != 56 {
		t.Errorf("Expected bob from the other application, got %v", rb)
	}
}

func TestPopulate(t *testing.T) {
	r := newTestResolver(t, `
[app]
name = svc
port = 8080
`, Options{})

	var target struct {
		Name string `json:"name"`
		Port int    `json:"port"`
	}
	if err := r.Populate("app", &target); err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	if target.Name != "svc" || target.Port != 8080 {
		t.Errorf("Expected svc/8080, got %+v", target)
	}
}

func TestClearRebuildsFromScratch(t *testing.T) {
	r := newTestResolver(t, orgConfig, Options{})

	first, _ := r.Resolve("bob")
	r.Clear()
	second, _ := r.Resolve("bob")
	if first == second {
		t.Error("Expected a fresh instance after clear")
	}
}

func TestMetricsRecordCacheBehavior(t *testing.T) {
	metrics := telemetry.NewMetrics("confgraph")
	r := newTestResolver(t, orgConfig, Options{Metrics: metrics})

	if _, err := r.Resolve("bob"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if _, err := r.Resolve("bob"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	families, err := metrics.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	got := map[string]float64{}
	for _, f := range families {
		if len(f.Metric) == 1 && f.Metric[0].Counter != nil {
			got[f.GetName()] = f.Metric[0].Counter.GetValue()
		}
	}
	if got["confgraph_cache_misses_total"] != 1 {
		t.Errorf("Expected 1 cache miss, got %v", got["confgraph_cache_misses_total"])
	}
	if got["confgraph_cache_hits_total"] != 1 {
		t.Errorf("Expected 1 cache hit, got %v", got["confgraph_cache_hits_total"])
	}
}
