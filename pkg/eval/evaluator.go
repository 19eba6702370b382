// Package eval evaluates eval: directive expressions in a restricted
// Starlark environment. General code execution is a non-goal: a single
// expression is compiled against an allowlist of modules plus the
// pre-resolved bindings supplied by the directive's resolve map.
package eval

import (
	"fmt"
	"strings"
	"time"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	starlarktime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/confgraph/confgraph/pkg/directive"
)

// Mapper exposes a resolved object as a plain mapping so it can cross into
// the expression namespace.
type Mapper interface {
	AsMap() map[string]any
}

// Evaluator executes restricted expressions safely.
type Evaluator struct {
	timeout time.Duration
	modules map[string]starlark.Value
}

// New creates an evaluator with the built-in module allowlist.
func New(timeout time.Duration) *Evaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Evaluator{
		timeout: timeout,
		modules: map[string]starlark.Value{
			"math": math.Module,
			"json": json.Module,
			"time": starlarktime.Module,
		},
	}
}

// Eval evaluates a single expression. Each modules entry is either a module
// name or "name as alias"; the module must be on the allowlist. Bindings are
// exposed as local names.
func (e *Evaluator) Eval(expr string, modules []string, bindings map[string]any) (any, error) {
	predeclared := starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
	for _, spec := range modules {
		name, alias, err := parseModuleSpec(spec)
		if err != nil {
			return nil, err
		}
		mod, ok := e.modules[name]
		if !ok {
			return nil, fmt.Errorf("module %q is not on the evaluation allowlist", name)
		}
		predeclared[alias] = mod
	}
	for name, val := range bindings {
		sv, err := toStarlark(val)
		if err != nil {
			return nil, fmt.Errorf("can not convert binding %q: %w", name, err)
		}
		predeclared[name] = sv
	}

	resultCh := make(chan starlark.Value, 1)
	errCh := make(chan error, 1)
	thread := &starlark.Thread{
		Name: "confgraph",
		Print: func(_ *starlark.Thread, _ string) {
			// print is suppressed inside config expressions
		},
	}
	go func() {
		v, err := starlark.Eval(thread, "eval", expr, predeclared)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- v
	}()

	select {
	case <-time.After(e.timeout):
		thread.Cancel("timeout")
		return nil, fmt.Errorf("expression timed out after %v", e.timeout)
	case err := <-errCh:
		return nil, fmt.Errorf("expression failed: %w", err)
	case v := <-resultCh:
		return fromStarlark(v)
	}
}

func parseModuleSpec(spec string) (name, alias string, err error) {
	parts := strings.Fields(spec)
	switch len(parts) {
	case 1:
		return parts[0], parts[0], nil
	case 3:
		if parts[1] == "as" {
			return parts[0], parts[2], nil
		}
	}
	return "", "", fmt.Errorf("invalid import %q: want \"name\" or \"name as alias\"", spec)
}

// toStarlark converts a Go value into a Starlark value.
func toStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case directive.Path:
		return starlark.String(val), nil
	case directive.Tuple:
		tup := make(starlark.Tuple, len(val))
		for i, s := range val {
			tup[i] = starlark.String(s)
		}
		return tup, nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	case Mapper:
		return toStarlark(val.AsMap())
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// fromStarlark converts a Starlark value back into a Go value.
func fromStarlark(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return int(i), nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, item := range val {
			gv, err := fromStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = gv
		}
		return list, nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			gv, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = gv
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any, val.Len())
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be a string")
			}
			gv, err := fromStarlark(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = gv
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			gv, err := fromStarlark(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = gv
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
