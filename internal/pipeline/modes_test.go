package pipeline

import (
	"strings"
	"testing"

	"github.com/solace-labs/solace/pkg/registry"
)

func newTestModeLayer() *ModeLayer {
	return NewModeLayer(registry.Default(), NewModeSet())
}

func TestModeLayerEmpty(t *testing.T) {
	l := newTestModeLayer()
	if got := l.Fragment(); got != "" {
		t.Errorf("no active modes should yield empty fragment, got %q", got)
	}
}

func TestModeLayerSingleMode(t *testing.T) {
	l := newTestModeLayer()
	l.Modes().Enable("grounding", false)

	frag := l.Fragment()
	if !strings.HasPrefix(frag, modeHeader) {
		t.Errorf("missing header: %q", frag)
	}
	if !strings.Contains(frag, "5-4-3-2-1") {
		t.Errorf("grounding fragment missing: %q", frag)
	}
	if strings.Contains(frag, modeBlend) {
		t.Error("single mode must not carry the blend instruction")
	}
}

func TestModeLayerBlendsMultiple(t *testing.T) {
	l := newTestModeLayer()
	l.Modes().Enable("reframe", false)
	l.Modes().Enable("gratitude", true)

	frag := l.Fragment()
	if !strings.Contains(frag, modeBlend) {
		t.Error("multiple modes should append the blend instruction")
	}

	// Catalog order, not enable order.
	reframeIdx := strings.Index(frag, "all-or-nothing")
	gratitudeIdx := strings.Index(frag, "went okay today")
	if reframeIdx < 0 || gratitudeIdx < 0 || reframeIdx > gratitudeIdx {
		t.Errorf("fragments out of catalog order: %q", frag)
	}
}

func TestNonCombinableSuppressesOthers(t *testing.T) {
	l := newTestModeLayer()
	l.Modes().Enable("grounding", false)
	l.Modes().Enable("winddown", false)
	l.Modes().Enable("gratitude", false)

	frag := l.Fragment()
	if !strings.Contains(frag, "wind-down conversation") {
		t.Errorf("winddown fragment missing: %q", frag)
	}
	if strings.Contains(frag, "5-4-3-2-1") || strings.Contains(frag, "went okay today") {
		t.Errorf("non-combinable mode must suppress all others: %q", frag)
	}
	if strings.Contains(frag, modeBlend) {
		t.Error("suppressed-to-one fragment must not carry the blend instruction")
	}
}

func TestModeSetScopes(t *testing.T) {
	m := NewModeSet()
	m.Enable("grounding", false)
	m.Enable("grounding", true) // same mode in both scopes dedupes
	m.Enable("reframe", true)

	active := m.Active()
	if len(active) != 2 || !active["grounding"] || !active["reframe"] {
		t.Errorf("Active = %v", active)
	}

	m.Disable("grounding")
	if active := m.Active(); active["grounding"] {
		t.Error("Disable must clear both scopes")
	}
}

func TestUnknownModeIgnored(t *testing.T) {
	l := newTestModeLayer()
	l.Modes().Enable("no-such-mode", false)
	if got := l.Fragment(); got != "" {
		t.Errorf("unknown mode should contribute nothing, got %q", got)
	}
}
