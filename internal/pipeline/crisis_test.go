package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCrisisGateMatches(t *testing.T) {
	g := NewCrisisGate()

	hits := []string{
		"I want to die",
		"i've been thinking about SUICIDE lately",
		"sometimes i just want to hurt myself",
		"honestly? better off dead",
		"I can't go on like this",
	}
	for _, text := range hits {
		if !g.Check(text) {
			t.Errorf("Check(%q) = false, want true", text)
		}
	}

	misses := []string{
		"I had a rough day at work",
		"feeling a bit down but managing",
		"",
	}
	for _, text := range misses {
		if g.Check(text) {
			t.Errorf("Check(%q) = true, want false", text)
		}
	}

	// Substring matching over-triggers by design.
	if !g.Check("the suicide squad movie was bad") {
		t.Error("substring gate should trigger on embedded phrases")
	}
}

func TestLoadCrisisGate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crisis.json")
	if err := os.WriteFile(path, []byte(`["bespoke phrase"]`), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := LoadCrisisGate(path)
	if err != nil {
		t.Fatalf("LoadCrisisGate: %v", err)
	}
	if !g.Check("this contains the BESPOKE PHRASE somewhere") {
		t.Error("loaded phrase not matched")
	}
	// File replaces the defaults entirely.
	if g.Check("I want to die") {
		t.Error("default phrases should be replaced by the loaded list")
	}

	if _, err := LoadCrisisGate(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}

	g, err = LoadCrisisGate("")
	if err != nil || !g.Check("suicidal") {
		t.Errorf("empty path should return defaults, err=%v", err)
	}
}

func TestLoadCrisisGateRejectsEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crisis.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCrisisGate(path); err == nil {
		t.Error("an empty phrase list must not load")
	}
}
