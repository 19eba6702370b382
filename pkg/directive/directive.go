// Package directive implements the value grammar used inside option strings:
// a typed prefix of the form
//
//	<prefix>[(<json-params>)]: <payload>
//
// that specifies how a raw configuration value is interpreted or constructed.
// The parser classifies primitives, collections, evaluated expressions, and
// instantiation requests; instantiation delegates back into the instance
// graph builder through the Materializer interface so nested object graphs
// resolve recursively.
package directive

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/confgraph/confgraph/pkg/fault"
)

// Share is the instance sharing policy requested by a directive.
type Share int

const (
	// ShareDefault reuses a cached instance or creates it once.
	ShareDefault Share = iota

	// ShareEvict returns the cached instance, then drops the cache entry
	// so the next resolution rebuilds from scratch.
	ShareEvict

	// ShareDeep builds a wholly independent object subgraph, never
	// reading or writing the shared cache.
	ShareDeep
)

// String returns the wire name of the policy.
func (s Share) String() string {
	switch s {
	case ShareEvict:
		return "evict"
	case ShareDeep:
		return "deep"
	default:
		return "default"
	}
}

// ParseShare maps a share parameter value to a policy.
func ParseShare(v string) (Share, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "default":
		return ShareDefault, nil
	case "evict":
		return ShareEvict, nil
	case "deep":
		return ShareDeep, nil
	}
	return ShareDefault, fmt.Errorf("unknown share policy: %q", v)
}

// Tuple is an immutable-flavored ordered sequence produced by the tuple:
// directive. The distinction from a plain slice is semantic only.
type Tuple []string

// Path is a filesystem path produced by the path: and resource: directives.
type Path string

// Directive is a classified raw value before interpretation.
type Directive struct {
	// Prefix is the directive name (instance, eval, json, ...).
	Prefix string

	// Params is the raw parenthesized parameter text, usually a JSON
	// object. For dataclass and application directives it holds the type
	// name or owner token instead.
	Params string

	// Payload is the text after the colon, leading whitespace trimmed.
	Payload string
}

// directiveRe matches the <prefix>[(<params>)]: <payload> shape. Prefixes
// that are not recognized directive names fall through to literal strings, so
// values like URLs never misparse.
var directiveRe = regexp.MustCompile(`(?s)^([a-z]+)(?:\((.+)\))?:\s*(.+)$`)

// knownPrefixes is the set of recognized directive names.
var knownPrefixes = map[string]bool{
	"str": true, "list": true, "tuple": true, "json": true,
	"path": true, "resource": true, "eval": true, "instance": true,
	"object": true, "class": true, "dataclass": true, "alias": true,
	"call": true, "tree": true, "application": true,
}

// Parse splits a raw value into a directive. The boolean result is false
// when the value carries no recognized directive prefix and should be handled
// as a primitive or literal.
func Parse(raw string) (Directive, bool) {
	m := directiveRe.FindStringSubmatch(raw)
	if m == nil || !knownPrefixes[m[1]] {
		return Directive{}, false
	}
	return Directive{Prefix: m[1], Params: m[2], Payload: m[3]}, true
}

// params unmarshals the JSON parameter object. An empty parameter text
// yields an empty map; anything unparsable is a malformed-directive fault.
func (d Directive) params() (map[string]any, error) {
	if d.Params == "" {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(d.Params), &out); err != nil {
		return nil, fault.Malformed(
			fmt.Sprintf("%s directive parameters %q are not a JSON object",
				d.Prefix, d.Params), err)
	}
	return out, nil
}

// checkParamKeys rejects parameter names outside the allowed set for the
// directive.
func (d Directive) checkParamKeys(params map[string]any, allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		ok[a] = true
	}
	for k := range params {
		if !ok[k] {
			return fault.Malformed(
				fmt.Sprintf("unknown %s directive parameter: %q", d.Prefix, k), nil)
		}
	}
	return nil
}
