package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PabloGalante/kitcheck/internal/catalog"
)

func TestDefaultCatalog(t *testing.T) {
	c := catalog.Default()
	if c.Len() != 11 {
		t.Fatalf("expected 11 classes, got %d", c.Len())
	}
	if !c.Contains("shernitsa") {
		t.Fatalf("expected shernitsa in default catalog")
	}
}

func TestResolve(t *testing.T) {
	c := catalog.Default()

	tests := []struct {
		label string
		want  string
		ok    bool
	}{
		{"pliers", "pliers", true},
		{"6_pliers", "shernitsa", true},
		{"Brace", "brace", true},
		{"10_SPANNER", "ring_wrench_3_4", true},
		{"model_11_side_cutters_v2", "nippers", true},
		{"hammer", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := c.Resolve(tt.label)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Resolve(%q) = %q,%v want %q,%v", tt.label, got, ok, tt.want, tt.ok)
		}
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	if _, err := catalog.New(nil, nil); err == nil {
		t.Fatalf("expected error for empty catalog")
	}
	if _, err := catalog.New([]string{"wrench", "wrench"}, nil); err == nil {
		t.Fatalf("expected error for duplicate class")
	}
	if _, err := catalog.New([]string{"wrench"}, map[string]string{"w": "pliers"}); err == nil {
		t.Fatalf("expected error for alias to unknown class")
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := "classes:\n  - wrench\n  - pliers\naliases:\n  spanner: wrench\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := c.Classes(); len(got) != 2 || got[0] != "wrench" || got[1] != "pliers" {
		t.Fatalf("unexpected classes %v", got)
	}
	if cl, ok := c.Resolve("spanner"); !ok || cl != "wrench" {
		t.Fatalf("alias not resolved: %q %v", cl, ok)
	}
	if exp := c.Expected(); exp["pliers"] != 1 || len(exp) != 2 {
		t.Fatalf("unexpected expected map %v", exp)
	}
}
