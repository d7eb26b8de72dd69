package pipeline

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/solace-labs/solace/pkg/registry"
)

// ModeSet tracks which behavior modes are active. Session modes clear
// when the daemon restarts; persistent modes are the caller's job to
// reload. Mutation happens only through explicit user commands, never
// inside the turn pipeline.
type ModeSet struct {
	mu         sync.Mutex
	session    map[string]bool
	persistent map[string]bool
}

// NewModeSet returns an empty mode set.
func NewModeSet() *ModeSet {
	return &ModeSet{
		session:    make(map[string]bool),
		persistent: make(map[string]bool),
	}
}

// Enable activates a mode for the session or persistently.
func (m *ModeSet) Enable(id string, persistent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if persistent {
		m.persistent[id] = true
	} else {
		m.session[id] = true
	}
}

// Disable deactivates a mode in both scopes.
func (m *ModeSet) Disable(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.session, id)
	delete(m.persistent, id)
}

// Active returns the deduplicated set of active mode IDs.
func (m *ModeSet) Active() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	active := make(map[string]bool, len(m.session)+len(m.persistent))
	for id := range m.session {
		active[id] = true
	}
	for id := range m.persistent {
		active[id] = true
	}
	return active
}

// modeHeader opens the mode section of the prompt.
const modeHeader = "## Active Support Modes"

// modeBlend is appended when more than one mode contributes.
const modeBlend = "Blend these approaches naturally into the conversation rather than working through them as a checklist."

// ModeLayer renders the active modes into one prompt fragment.
type ModeLayer struct {
	catalog *registry.Catalog
	modes   *ModeSet
}

// NewModeLayer creates a mode layer over the given catalog and mode set.
func NewModeLayer(catalog *registry.Catalog, modes *ModeSet) *ModeLayer {
	return &ModeLayer{catalog: catalog, modes: modes}
}

// Modes returns the underlying mode set for command handling.
func (l *ModeLayer) Modes() *ModeSet {
	return l.modes
}

// Fragment returns the mode section of the system prompt, or "" when
// no modes are active. An active non-combinable mode suppresses every
// other mode: the first such mode in catalog order wins, and the
// suppression is logged.
func (l *ModeLayer) Fragment() string {
	active := l.modes.Active()
	if len(active) == 0 {
		return ""
	}

	var selected []registry.Mode
	for _, id := range l.catalog.ModeOrder() {
		if !active[id] {
			continue
		}
		mode, ok := l.catalog.Mode(id)
		if !ok {
			slog.Warn("active mode missing from catalog", "mode", id)
			continue
		}
		selected = append(selected, mode)
	}
	if len(selected) == 0 {
		return ""
	}

	for _, mode := range selected {
		if !mode.Combinable && len(selected) > 1 {
			slog.Info("non-combinable mode suppresses others",
				"mode", mode.ID, "suppressed", len(selected)-1)
			selected = []registry.Mode{mode}
			break
		}
	}

	parts := []string{modeHeader}
	for _, mode := range selected {
		parts = append(parts, mode.Fragment)
	}
	if len(selected) > 1 {
		parts = append(parts, modeBlend)
	}
	return strings.Join(parts, "\n\n")
}
