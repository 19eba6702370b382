package eval

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEvalArithmetic(t *testing.T) {
	e := New(5 * time.Second)
	tests := []struct {
		name string
		expr string
		want any
	}{
		{"int", "1 + 2", 3},
		{"float", "1.5 * 2", 3.0},
		{"string", `"a" + "b"`, "ab"},
		{"list", "[x for x in range(3)]", []any{0, 1, 2}},
		{"dict", `{"a": 1}`, map[string]any{"a": 1}},
		{"bool", "2 > 1", true},
		{"none", "None", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Eval(tt.expr, nil, nil)
			if err != nil {
				t.Fatalf("Eval failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEvalModuleImport(t *testing.T) {
	e := New(5 * time.Second)

	got, err := e.Eval("math.sqrt(16)", []string{"math"}, nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != 4.0 {
		t.Errorf("Expected 4.0, got %v", got)
	}
}

func TestEvalModuleAlias(t *testing.T) {
	e := New(5 * time.Second)

	got, err := e.Eval("m.floor(3.7)", []string{"math as m"}, nil)
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	// floor returns an int
	if got != 3 {
		t.Errorf("Expected 3, got %v", got)
	}
}

func TestEvalModuleNotOnAllowlist(t *testing.T) {
	e := New(5 * time.Second)

	_, err := e.Eval("os.getenv('HOME')", []string{"os"}, nil)
	if err == nil || !strings.Contains(err.Error(), "allowlist") {
		t.Errorf("Expected allowlist rejection, got %v", err)
	}
}

func TestEvalBindings(t *testing.T) {
	e := New(5 * time.Second)

	got, err := e.Eval("boss['age'] + extra", nil, map[string]any{
		"boss":  map[string]any{"age": 56},
		"extra": 1,
	})
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != 57 {
		t.Errorf("Expected 57, got %v", got)
	}
}

type mapSettings map[string]any

func (m mapSettings) AsMap() map[string]any { return m }

func TestEvalMapperBinding(t *testing.T) {
	e := New(5 * time.Second)

	got, err := e.Eval("boss['name']", nil, map[string]any{
		"boss": mapSettings{"name": "bob"},
	})
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	if got != "bob" {
		t.Errorf("Expected bob, got %v", got)
	}
}

func TestEvalSyntaxErrorFails(t *testing.T) {
	e := New(5 * time.Second)

	if _, err := e.Eval("1 +", nil, nil); err == nil {
		t.Error("Expected a syntax error")
	}
}

func TestEvalNoStatements(t *testing.T) {
	e := New(5 * time.Second)

	// only single expressions are accepted
	if _, err := e.Eval("x = 1", nil, nil); err == nil {
		t.Error("Expected statement to be rejected")
	}
}
