package directive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/confgraph/confgraph/pkg/fault"
)

// Materializer is the instance graph builder seen from the parser's side.
// Instantiation directives delegate here and recursion happens behind it.
type Materializer interface {
	// Instance resolves a section into a constructed object under the
	// given sharing policy, with overrides merged into the section's
	// bindings before construction.
	Instance(section string, overrides map[string]any, share Share) (any, error)

	// Object constructs an instance of an inline type name. Never cached.
	Object(typeName string, bindings map[string]any) (any, error)

	// Dataclass builds an instance of the named structured type from the
	// target section's flattened tree, failing when required fields are
	// absent.
	Dataclass(typeName, section string) (any, error)

	// ClassRef returns the type/constructor reference itself.
	ClassRef(typeName string) (any, error)

	// Tree builds an object from the mapping node at a dot-separated path
	// with overrides applied.
	Tree(path string, overrides map[string]any) (any, error)

	// Application resolves target inside a separately-configured
	// application graph owned by owner.
	Application(owner, target string) (any, error)
}

// Evaluator evaluates a restricted expression with pre-resolved bindings.
type Evaluator interface {
	Eval(expr string, modules []string, bindings map[string]any) (any, error)
}

// ResourceLocator resolves a relative resource path, optionally keyed by an
// owning-module token.
type ResourceLocator interface {
	ResolveResource(owner, relative string) (string, error)
}

// OptionSource provides raw option lookups for alias: indirection.
type OptionSource interface {
	Option(section, option string) (string, bool)
	Has(section string) bool
}

// Callable is implemented by resolved values the call: directive can invoke
// directly.
type Callable interface {
	Call(kwargs map[string]any) (any, error)
}

// MethodCaller is implemented by resolved values that dispatch call:
// directives with a method parameter.
type MethodCaller interface {
	CallMethod(method string, kwargs map[string]any) (any, error)
}

var (
	intRe   = regexp.MustCompile(`^[-+]?[0-9]+$`)
	floatRe = regexp.MustCompile(`^[-+]?[0-9]*\.[0-9]+$`)

	// resourceOwnerRe splits the optional trailing (owner) token off a
	// resource: payload.
	resourceOwnerRe = regexp.MustCompile(`^(.+?)\((.+)\)$`)
)

// Parser classifies raw option strings into typed values, delegating
// instantiation requests to a Materializer. A Parser with no Materializer can
// still handle primitives, collections, and expressions, which is how the
// import resolver evaluates conditional nodes before the graph exists.
type Parser struct {
	// Store serves alias: lookups; may be nil when aliasing is not used.
	Store OptionSource

	// Materializer handles instantiation directives; nil makes them fail.
	Materializer Materializer

	// Evaluator handles eval: directives; nil makes them fail.
	Evaluator Evaluator

	// Resources handles resource: lookups; nil degrades resource: to
	// plain path resolution.
	Resources ResourceLocator

	// Logger reports recovered malformed directives at debug level.
	Logger zerolog.Logger

	// aliasPath tracks the alias: indirections on the active call stack;
	// re-entering one is a cycle, not unbounded recursion.
	aliasPath []string
}

// NewParser creates a parser over the given option source.
func NewParser(st OptionSource) *Parser {
	return &Parser{Store: st, Logger: zerolog.Nop()}
}

// Value applies the classification rules in order and returns the typed
// value. Unparsable directive syntax is recovered by returning the literal
// string; recognized directives that reference missing sections or types, or
// carry unparsable payloads, fail fatally.
func (p *Parser) Value(raw string) (any, error) {
	switch raw {
	case "True":
		return true, nil
	case "False":
		return false, nil
	case "None":
		return nil, nil
	}
	if intRe.MatchString(raw) {
		n, err := strconv.Atoi(raw)
		if err == nil {
			return n, nil
		}
	}
	if floatRe.MatchString(raw) {
		f, err := strconv.ParseFloat(raw, 64)
		if err == nil {
			return f, nil
		}
	}
	d, ok := Parse(raw)
	if !ok {
		return raw, nil
	}
	v, err := p.apply(d)
	if fault.IsMalformed(err) {
		p.Logger.Debug().Str("value", raw).Err(err).
			Msg("Malformed directive, falling back to literal string")
		return raw, nil
	}
	return v, err
}

func (p *Parser) apply(d Directive) (any, error) {
	switch d.Prefix {
	case "str":
		return d.Payload, nil
	case "list":
		return splitTrim(d.Payload), nil
	case "tuple":
		return Tuple(splitTrim(d.Payload)), nil
	case "json":
		return p.jsonValue(d)
	case "path":
		return expandPath(d.Payload), nil
	case "resource":
		return p.resourceValue(d)
	case "eval":
		return p.evalValue(d)
	case "instance":
		return p.instanceValue(d)
	case "object":
		return p.objectValue(d)
	case "class":
		return p.materializer().ClassRef(d.Payload)
	case "dataclass":
		if d.Params == "" {
			return nil, fault.Malformed("dataclass directive requires a type name", nil)
		}
		return p.materializer().Dataclass(d.Params, d.Payload)
	case "alias":
		return p.aliasValue(d)
	case "call":
		return p.callValue(d)
	case "tree":
		return p.treeValue(d)
	case "application":
		if d.Params == "" {
			return nil, fault.Malformed("application directive requires an owner", nil)
		}
		return p.materializer().Application(d.Params, d.Payload)
	}
	return nil, fault.Malformed(fmt.Sprintf("unknown directive: %q", d.Prefix), nil)
}

// materializer returns the configured materializer or a failing stand-in so
// each directive handler reads uniformly.
func (p *Parser) materializer() Materializer {
	if p.Materializer == nil {
		return noMaterializer{}
	}
	return p.Materializer
}

func (p *Parser) jsonValue(d Directive) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(d.Payload), &v); err != nil {
		// the prefix was recognized, so a broken payload is a real
		// mistake rather than a plain string that happens to look like
		// a directive
		return nil, fault.New(fault.KindInstantiation,
			fmt.Sprintf("json directive payload %q is not valid JSON", d.Payload), err)
	}
	return v, nil
}

func (p *Parser) resourceValue(d Directive) (any, error) {
	relative, owner := d.Payload, ""
	if m := resourceOwnerRe.FindStringSubmatch(d.Payload); m != nil {
		relative, owner = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	if p.Resources == nil {
		return expandPath(relative), nil
	}
	resolved, err := p.Resources.ResolveResource(owner, relative)
	if err != nil {
		return nil, fault.Import(
			fmt.Sprintf("can not resolve resource %q (owner %q)", relative, owner), err)
	}
	return Path(resolved), nil
}

func (p *Parser) evalValue(d Directive) (any, error) {
	if p.Evaluator == nil {
		return nil, fault.Instantiation("",
			fmt.Errorf("no evaluator configured for eval directive"))
	}
	params, err := d.params()
	if err != nil {
		return nil, err
	}
	if err := d.checkParamKeys(params, "import", "resolve"); err != nil {
		return nil, err
	}
	modules, err := stringSlice(params["import"])
	if err != nil {
		return nil, fault.Malformed("eval import parameter must be a list of strings", err)
	}
	bindings := map[string]any{}
	if rv, ok := params["resolve"]; ok {
		rm, ok := rv.(map[string]any)
		if !ok {
			return nil, fault.Malformed("eval resolve parameter must be an object", nil)
		}
		for name, sec := range rm {
			secName, ok := sec.(string)
			if !ok {
				return nil, fault.Malformed("eval resolve values must be section names", nil)
			}
			inst, err := p.materializer().Instance(secName, nil, ShareDefault)
			if err != nil {
				return nil, err
			}
			bindings[name] = inst
		}
	}
	return p.Evaluator.Eval(d.Payload, modules, bindings)
}

func (p *Parser) instanceValue(d Directive) (any, error) {
	overrides, share, err := p.instanceParams(d)
	if err != nil {
		return nil, err
	}
	return p.materializeTargets(d.Payload, overrides, share)
}

// materializeTargets supports list:, tuple:, and json: shaped payloads so a
// single directive can request a collection of instances; a plain payload is
// one section name.
func (p *Parser) materializeTargets(payload string, overrides map[string]any, share Share) (any, error) {
	if sub, ok := Parse(payload); ok {
		switch sub.Prefix {
		case "list", "tuple":
			names := splitTrim(sub.Payload)
			insts := make([]any, len(names))
			for i, name := range names {
				inst, err := p.materializer().Instance(name, overrides, share)
				if err != nil {
					return nil, err
				}
				insts[i] = inst
			}
			return insts, nil
		case "json":
			var spec any
			if err := json.Unmarshal([]byte(sub.Payload), &spec); err != nil {
				return nil, fault.Malformed(
					fmt.Sprintf("instance payload %q", payload), err)
			}
			return p.materializeSpec(spec, overrides, share)
		}
	}
	return p.materializer().Instance(strings.TrimSpace(payload), overrides, share)
}

func (p *Parser) materializeSpec(spec any, overrides map[string]any, share Share) (any, error) {
	switch t := spec.(type) {
	case string:
		return p.materializer().Instance(t, overrides, share)
	case []any:
		insts := make([]any, len(t))
		for i, e := range t {
			inst, err := p.materializeSpec(e, overrides, share)
			if err != nil {
				return nil, err
			}
			insts[i] = inst
		}
		return insts, nil
	case map[string]any:
		insts := make(map[string]any, len(t))
		for k, e := range t {
			inst, err := p.materializeSpec(e, overrides, share)
			if err != nil {
				return nil, err
			}
			insts[k] = inst
		}
		return insts, nil
	}
	return nil, fault.Malformed(fmt.Sprintf("unsupported instance payload: %v", spec), nil)
}

func (p *Parser) objectValue(d Directive) (any, error) {
	params, err := d.params()
	if err != nil {
		return nil, err
	}
	if err := d.checkParamKeys(params, "param"); err != nil {
		return nil, err
	}
	bindings, err := p.overrideParams(params)
	if err != nil {
		return nil, err
	}
	return p.materializer().Object(strings.TrimSpace(d.Payload), bindings)
}

func (p *Parser) aliasValue(d Directive) (any, error) {
	section, option, ok := strings.Cut(d.Payload, ":")
	if !ok {
		return nil, fault.Malformed(
			fmt.Sprintf("alias payload %q is not of the form section:option", d.Payload), nil)
	}
	section = strings.TrimSpace(section)
	option = strings.TrimSpace(option)
	ref := section + ":" + option
	for _, active := range p.aliasPath {
		if active == ref {
			return nil, fault.Cycle(section,
				append(append([]string(nil), p.aliasPath...), ref))
		}
	}
	if p.Store == nil {
		return nil, fault.Instantiation(section,
			fmt.Errorf("no option source configured for alias directive"))
	}
	raw, found := p.Store.Option(section, option)
	if !found {
		if !p.Store.Has(section) {
			return nil, fault.MissingSection(section)
		}
		return nil, fault.New(fault.KindMissingSection,
			fmt.Sprintf("no option %q in section %q", option, section), nil).
			WithSection(section)
	}
	p.aliasPath = append(p.aliasPath, ref)
	defer func() { p.aliasPath = p.aliasPath[:len(p.aliasPath)-1] }()
	return p.Value(raw)
}

func (p *Parser) callValue(d Directive) (any, error) {
	params, err := d.params()
	if err != nil {
		return nil, err
	}
	method := ""
	if mv, ok := params["method"]; ok {
		method, ok = mv.(string)
		if !ok {
			return nil, fault.Malformed("call method parameter must be a string", nil)
		}
		delete(params, "method")
	}
	kwargs := make(map[string]any, len(params))
	for k, v := range params {
		if s, ok := v.(string); ok {
			parsed, err := p.Value(s)
			if err != nil {
				return nil, err
			}
			kwargs[k] = parsed
			continue
		}
		kwargs[k] = v
	}
	target := strings.TrimSpace(d.Payload)
	inst, err := p.materializer().Instance(target, nil, ShareDefault)
	if err != nil {
		return nil, err
	}
	if method == "" {
		callable, ok := inst.(Callable)
		if !ok {
			return nil, fault.Instantiation(target,
				fmt.Errorf("resolved value of type %T is not callable", inst))
		}
		out, err := callable.Call(kwargs)
		if err != nil {
			return nil, fault.Instantiation(target, err)
		}
		return out, nil
	}
	caller, ok := inst.(MethodCaller)
	if !ok {
		return nil, fault.Instantiation(target,
			fmt.Errorf("resolved value of type %T has no callable methods", inst))
	}
	out, err := caller.CallMethod(method, kwargs)
	if err != nil {
		return nil, fault.Instantiation(target, err)
	}
	return out, nil
}

func (p *Parser) treeValue(d Directive) (any, error) {
	params, err := d.params()
	if err != nil {
		return nil, err
	}
	if err := d.checkParamKeys(params, "param"); err != nil {
		return nil, err
	}
	overrides, err := p.overrideParams(params)
	if err != nil {
		return nil, err
	}
	return p.materializer().Tree(strings.TrimSpace(d.Payload), overrides)
}

// instanceParams extracts the param overrides and share policy of an
// instance: directive.
func (p *Parser) instanceParams(d Directive) (map[string]any, Share, error) {
	params, err := d.params()
	if err != nil {
		return nil, ShareDefault, err
	}
	if err := d.checkParamKeys(params, "param", "share"); err != nil {
		return nil, ShareDefault, err
	}
	share := ShareDefault
	if sv, ok := params["share"]; ok {
		s, ok := sv.(string)
		if !ok {
			return nil, ShareDefault, fault.Malformed("share parameter must be a string", nil)
		}
		share, err = ParseShare(s)
		if err != nil {
			return nil, ShareDefault, fault.Instantiation("", err)
		}
	}
	overrides, err := p.overrideParams(params)
	if err != nil {
		return nil, ShareDefault, err
	}
	return overrides, share, nil
}

// overrideParams parses the param object, re-classifying string values
// through the full rule set so overrides can themselves carry directives.
func (p *Parser) overrideParams(params map[string]any) (map[string]any, error) {
	pv, ok := params["param"]
	if !ok {
		return nil, nil
	}
	pm, ok := pv.(map[string]any)
	if !ok {
		return nil, fault.Malformed("param parameter must be an object", nil)
	}
	out := make(map[string]any, len(pm))
	for k, v := range pm {
		if s, ok := v.(string); ok {
			parsed, err := p.Value(s)
			if err != nil {
				return nil, err
			}
			out[k] = parsed
			continue
		}
		out[k] = v
	}
	return out, nil
}

// splitTrim splits a comma-separated payload, trimming surrounding
// whitespace from each element. Elements are not re-classified.
func splitTrim(payload string) []string {
	parts := strings.Split(payload, ",")
	out := make([]string, len(parts))
	for i, part := range parts {
		out[i] = strings.TrimSpace(part)
	}
	return out
}

// expandPath resolves a leading ~ against the user's home directory.
func expandPath(payload string) Path {
	path := strings.TrimSpace(payload)
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return Path(filepath.Clean(path))
}

func stringSlice(v any) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a string element, got %T", item)
		}
		out[i] = s
	}
	return out, nil
}

// noMaterializer fails every instantiation directive; it stands in when a
// parser is built without an instance graph builder.
type noMaterializer struct{}

func (noMaterializer) fail() error {
	return fault.Instantiation("",
		fmt.Errorf("no instance graph builder configured"))
}

func (n noMaterializer) Instance(string, map[string]any, Share) (any, error) {
	return nil, n.fail()
}
func (n noMaterializer) Object(string, map[string]any) (any, error) { return nil, n.fail() }
func (n noMaterializer) Dataclass(string, string) (any, error)      { return nil, n.fail() }
func (n noMaterializer) ClassRef(string) (any, error)               { return nil, n.fail() }
func (n noMaterializer) Tree(string, map[string]any) (any, error)   { return nil, n.fail() }
func (n noMaterializer) Application(string, string) (any, error)    { return nil, n.fail() }
