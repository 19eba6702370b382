package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStringReader(t *testing.T) {
	r := NewStringReader(`
[default]
root = /opt/app

[bob]
class_name = Person
age = 56
`)
	st, err := r.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v, _ := st.Option("default", "root"); v != "/opt/app" {
		t.Errorf("Expected /opt/app, got %q", v)
	}
	if v, _ := st.Option("bob", "age"); v != "56" {
		t.Errorf("Expected 56, got %q", v)
	}
	sec, _ := st.Section("bob")
	if diff := cmp.Diff([]string{"class_name", "age"}, sec.Keys()); diff != "" {
		t.Errorf("Unexpected option order (-want +got):\n%s", diff)
	}
}

func TestINIReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.conf")
	content := "[app]\nhost = localhost\nvalue = instance: bob\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := NewINIReader(path).Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v, _ := st.Option("app", "value"); v != "instance: bob" {
		t.Errorf("Expected directive value to survive verbatim, got %q", v)
	}

	sec, _ := st.Section("app")
	if sec.Origin.Source != path {
		t.Errorf("Expected origin %q, got %q", path, sec.Origin.Source)
	}
}

func TestINIReaderMissingFile(t *testing.T) {
	if _, err := NewINIReader("/no/such/file.conf").Read(); err == nil {
		t.Error("Expected a read failure")
	}
}

func TestYAMLReaderFlattensNestedMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.yml")
	content := `app:
  db:
    host: localhost
    port: 5432
    replicas:
      - a
      - b
  debug: true
  threshold: 0.5
  label: ~
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := NewYAMLReader(path).Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	tests := []struct {
		section, option, want string
	}{
		{"app.db", "host", "localhost"},
		{"app.db", "port", "5432"},
		{"app.db", "replicas", `json: ["a","b"]`},
		{"app", "debug", "True"},
		{"app", "threshold", "0.5"},
		{"app", "label", "None"},
	}
	for _, tt := range tests {
		v, ok := st.Option(tt.section, tt.option)
		if !ok {
			t.Errorf("Expected option %s:%s to exist", tt.section, tt.option)
			continue
		}
		if v != tt.want {
			t.Errorf("Expected %s:%s = %q, got %q", tt.section, tt.option, tt.want, v)
		}
	}

	// the original tree is retained for tree: lookups
	if _, ok := st.Tree("app.db.host"); !ok {
		t.Error("Expected retained tree path app.db.host")
	}
}

func TestTreeToStoreTopLevelScalar(t *testing.T) {
	st := TreeToStore(map[string]any{"version": 2}, "inline")
	if v, _ := st.Option("default", "version"); v != "2" {
		t.Errorf("Expected top-level scalar in default section, got %q", v)
	}
}

func TestJSONReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.json")
	content := `{"app": {"name": "svc", "port": 8080}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := NewJSONReader(path).Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v, _ := st.Option("app", "name"); v != "svc" {
		t.Errorf("Expected svc, got %q", v)
	}
	if v, _ := st.Option("app", "port"); v != "8080" {
		t.Errorf("Expected 8080, got %q", v)
	}
}

func TestEnvReader(t *testing.T) {
	t.Setenv("CG_TEST_HOST", "localhost")
	t.Setenv("CG_TEST_PORT", "9090")
	t.Setenv("OTHER_VALUE", "x")

	st, err := NewEnvReader("env", "CG_TEST_").Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if v, _ := st.Option("env", "host"); v != "localhost" {
		t.Errorf("Expected localhost, got %q", v)
	}
	if v, _ := st.Option("env", "port"); v != "9090" {
		t.Errorf("Expected 9090, got %q", v)
	}
	if _, ok := st.Option("env", "other_value"); ok {
		t.Error("Expected unprefixed variable to be excluded")
	}
}
