// Package registry holds the static persona, mode, and style catalogs.
//
// Entries are read-only at runtime: the pipeline selects them per turn
// but never mutates them. Defaults are compiled in; a JSON file can
// override or extend any catalog so phrasing changes don't need a
// rebuild.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// Persona is a named personality profile used to color the system prompt.
type Persona struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Traits      []string `json:"traits"`
	Tone        string   `json:"tone"` // tone directive for the composer
}

// Mode is an optionally-active behavior overlay contributing a prompt fragment.
type Mode struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Fragment   string `json:"fragment"`
	Combinable bool   `json:"combinable"`
}

// Style is a turn-scoped style directive.
type Style struct {
	ID        string `json:"id"`
	Directive string `json:"directive"`
}

// Catalog bundles the three registries.
type Catalog struct {
	personas  map[string]Persona
	modes     map[string]Mode
	styles    map[string]Style
	modeOrder []string // registration order, used for deterministic layering
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c := &Catalog{
		personas: make(map[string]Persona),
		modes:    make(map[string]Mode),
		styles:   make(map[string]Style),
	}
	for _, p := range defaultPersonas {
		c.personas[p.ID] = p
	}
	for _, m := range defaultModes {
		c.modes[m.ID] = m
		c.modeOrder = append(c.modeOrder, m.ID)
	}
	for _, s := range defaultStyles {
		c.styles[s.ID] = s
	}
	return c
}

// catalogFile is the JSON override format.
type catalogFile struct {
	Personas []Persona `json:"personas,omitempty"`
	Modes    []Mode    `json:"modes,omitempty"`
	Styles   []Style   `json:"styles,omitempty"`
}

// Load returns the default catalog with entries from the given JSON
// file merged over it. Entries with a known ID replace the default;
// new IDs extend the catalog.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	var f catalogFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}

	for _, p := range f.Personas {
		c.personas[p.ID] = p
	}
	for _, m := range f.Modes {
		if _, known := c.modes[m.ID]; !known {
			c.modeOrder = append(c.modeOrder, m.ID)
		}
		c.modes[m.ID] = m
	}
	for _, s := range f.Styles {
		c.styles[s.ID] = s
	}
	return c, nil
}

// Persona looks up a persona by ID.
func (c *Catalog) Persona(id string) (Persona, bool) {
	p, ok := c.personas[id]
	return p, ok
}

// Mode looks up a mode by ID.
func (c *Catalog) Mode(id string) (Mode, bool) {
	m, ok := c.modes[id]
	return m, ok
}

// Style looks up a style directive by ID.
func (c *Catalog) Style(id string) (Style, bool) {
	s, ok := c.styles[id]
	return s, ok
}

// ModeOrder returns mode IDs in registration order.
func (c *Catalog) ModeOrder() []string {
	out := make([]string, len(c.modeOrder))
	copy(out, c.modeOrder)
	return out
}
