package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	for _, id := range []string{"sage", "haven", "ember", "anchor", "spark", "luna", "atlas"} {
		p, ok := c.Persona(id)
		if !ok {
			t.Fatalf("Persona(%q) missing", id)
		}
		if p.Tone == "" {
			t.Errorf("persona %q has empty tone directive", id)
		}
	}

	m, ok := c.Mode("winddown")
	if !ok {
		t.Fatal("Mode(winddown) missing")
	}
	if m.Combinable {
		t.Error("winddown should not be combinable")
	}

	order := c.ModeOrder()
	if len(order) == 0 || order[0] != "grounding" {
		t.Errorf("ModeOrder() = %v, want grounding first", order)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	override := `{
		"personas": [{"id": "sage", "name": "Sage", "description": "patched", "tone": "new tone"}],
		"modes": [{"id": "custom", "name": "Custom", "fragment": "do the custom thing", "combinable": true}]
	}`
	if err := os.WriteFile(path, []byte(override), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	p, _ := c.Persona("sage")
	if p.Description != "patched" || p.Tone != "new tone" {
		t.Errorf("override not applied: %+v", p)
	}

	if _, ok := c.Mode("custom"); !ok {
		t.Error("new mode not added")
	}
	order := c.ModeOrder()
	if order[len(order)-1] != "custom" {
		t.Errorf("new mode should be last in order, got %v", order)
	}

	// Defaults still present
	if _, ok := c.Persona("luna"); !ok {
		t.Error("default persona lost after override load")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/registry.json"); err == nil {
		t.Error("expected error for missing file")
	}
	c, err := Load("")
	if err != nil || c == nil {
		t.Errorf("Load(\"\") should return defaults, got %v", err)
	}
}
