package store

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/confgraph/confgraph/pkg/fault"
)

func section(name string, pairs ...string) *Section {
	sec := NewSection(name, NewOrigin("test"))
	for i := 0; i+1 < len(pairs); i += 2 {
		sec.Set(pairs[i], pairs[i+1])
	}
	return sec
}

func TestSectionPreservesOptionOrder(t *testing.T) {
	sec := section("s", "c", "3", "a", "1", "b", "2")
	want := []string{"c", "a", "b"}
	if diff := cmp.Diff(want, sec.Keys()); diff != "" {
		t.Errorf("Unexpected key order (-want +got):\n%s", diff)
	}

	// overwriting keeps the original position
	sec.Set("a", "9")
	if diff := cmp.Diff(want, sec.Keys()); diff != "" {
		t.Errorf("Unexpected key order after overwrite (-want +got):\n%s", diff)
	}
	if v, _ := sec.Get("a"); v != "9" {
		t.Errorf("Expected overwritten value 9, got %q", v)
	}
}

func TestMergeLaterOptionWins(t *testing.T) {
	st := New()
	st.Merge(section("app", "host", "localhost", "port", "80"))
	st.Merge(section("app", "port", "8080"))

	if v, _ := st.Option("app", "port"); v != "8080" {
		t.Errorf("Expected later merge to win, got %q", v)
	}
	if v, _ := st.Option("app", "host"); v != "localhost" {
		t.Errorf("Expected untouched option to survive, got %q", v)
	}
	if st.Len() != 1 {
		t.Errorf("Expected 1 section after merge, got %d", st.Len())
	}
}

func TestExpand(t *testing.T) {
	st := New()
	st.Merge(section("default", "root", "/opt/app", "name", "svc"))

	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"no reference", "plain", "plain"},
		{"single", "${default:root}/data", "/opt/app/data"},
		{"two", "${default:root}/${default:name}", "/opt/app/svc"},
		{"escaped dollar", "cost is $$5", "cost is $5"},
		{"bare dollar", "a$b", "a$b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.Expand(tt.value)
			if err != nil {
				t.Fatalf("Expand failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestExpandTransitive(t *testing.T) {
	st := New()
	st.Merge(section("a", "v", "${b:v}/tail"))
	st.Merge(section("b", "v", "head"))

	got, err := st.Expand("${a:v}")
	if err != nil {
		t.Fatalf("Expand failed: %v", err)
	}
	if got != "head/tail" {
		t.Errorf("Expected head/tail, got %q", got)
	}
}

func TestExpandMissingSection(t *testing.T) {
	st := New()
	_, err := st.Expand("${nope:v}")
	if fault.KindOf(err) != fault.KindMissingSection {
		t.Errorf("Expected missing section fault, got %v", err)
	}
}

func TestExpandCycleFails(t *testing.T) {
	st := New()
	st.Merge(section("a", "v", "${b:v}"))
	st.Merge(section("b", "v", "${a:v}"))

	_, err := st.Expand("${a:v}")
	if fault.KindOf(err) != fault.KindCyclicDependency {
		t.Errorf("Expected cyclic dependency fault, got %v", err)
	}
}

func TestResolveAllForwardReference(t *testing.T) {
	// child merged first refers to parent merged later; the global pass
	// still resolves it.
	st := New()
	st.Merge(section("child", "path", "${parent:root}/etc"))
	st.Merge(section("parent", "root", "/srv", "mirror", "${child:path}"))

	if err := st.ResolveAll(); err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	if v, _ := st.Option("child", "path"); v != "/srv/etc" {
		t.Errorf("Expected forward reference to resolve, got %q", v)
	}
	if v, _ := st.Option("parent", "mirror"); v != "/srv/etc" {
		t.Errorf("Expected backward reference to resolve, got %q", v)
	}
}

func TestResolveAllReportsSection(t *testing.T) {
	st := New()
	st.Merge(section("broken", "v", "${ghost:x}"))

	err := st.ResolveAll()
	var fe *fault.Error
	if !errors.As(err, &fe) {
		t.Fatalf("Expected a fault, got %v", err)
	}
	if fe.Section != "ghost" {
		t.Errorf("Expected section ghost in error, got %q", fe.Section)
	}
}

func TestTreeWalk(t *testing.T) {
	st := New()
	st.MergeTree("app", map[string]any{
		"db": map[string]any{"host": "localhost", "port": 5432},
	})

	node, ok := st.Tree("app.db.host")
	if !ok {
		t.Fatal("Expected tree path to resolve")
	}
	if node != "localhost" {
		t.Errorf("Expected localhost, got %v", node)
	}
	if _, ok := st.Tree("app.db.missing"); ok {
		t.Error("Expected missing path to report not found")
	}
}

func TestWriteINI(t *testing.T) {
	st := New()
	st.Merge(section("b", "k", "1"))
	st.Merge(section("a", "x", "2", "y", "3"))

	var buf bytes.Buffer
	if err := st.WriteINI(&buf); err != nil {
		t.Fatalf("WriteINI failed: %v", err)
	}
	want := "[b]\nk = 1\n\n[a]\nx = 2\ny = 3\n"
	if buf.String() != want {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, buf.String())
	}
}

func TestWriteJSON(t *testing.T) {
	st := New()
	st.Merge(section("a", "x", "1"))

	var buf bytes.Buffer
	if err := st.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"x": "1"`) {
		t.Errorf("Expected JSON output to contain option, got %s", buf.String())
	}
}
