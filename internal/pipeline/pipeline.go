// Package pipeline implements the conversational turn pipeline: crisis
// gate, context aggregation, persona and mode resolution, prompt
// composition, model invocation, and post-response accounting.
//
// Its central contract is "always produce a response": Process returns
// a crisis diversion, a real generated reply, or a safe fallback, and
// never an error.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/solace-labs/solace/internal/cost"
	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/pkg/registry"
	"github.com/solace-labs/solace/pkg/session"
)

// Response source tags.
const (
	SourceCrisis   = "crisis"
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Turn is one inbound user message with everything the pipeline needs
// to process it. It is built fresh per invocation and discarded after.
type Turn struct {
	RoomID   string
	Text     string
	Now      time.Time
	History  []llm.Message // prior messages, oldest first, current excluded
	Styles   []string      // turn-scoped style directive IDs
	Snapshot Snapshot
}

// Result is the outcome of one processed turn.
type Result struct {
	Text         string
	Source       string // crisis, model, or fallback
	Persona      string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Pipeline wires the turn components together.
type Pipeline struct {
	gate    *CrisisGate
	agg     *Aggregator
	catalog *registry.Catalog
	modes   *ModeLayer
	invoker *Invoker
	ledger  *cost.Ledger    // optional
	memory  *session.Memory // optional

	settingsMu sync.Mutex
	settings   PersonaSettings

	hooks sync.WaitGroup
}

// New creates a pipeline. Ledger and memory may be nil; the pipeline
// then skips cost recording and session memory.
func New(gate *CrisisGate, agg *Aggregator, catalog *registry.Catalog, modes *ModeLayer, invoker *Invoker, ledger *cost.Ledger, memory *session.Memory, settings PersonaSettings) *Pipeline {
	return &Pipeline{
		gate:     gate,
		agg:      agg,
		catalog:  catalog,
		modes:    modes,
		invoker:  invoker,
		ledger:   ledger,
		memory:   memory,
		settings: settings,
	}
}

// PersonaSettings returns the current persona settings.
func (p *Pipeline) PersonaSettings() PersonaSettings {
	p.settingsMu.Lock()
	defer p.settingsMu.Unlock()
	return p.settings
}

// SetPersonaSettings replaces the persona settings.
func (p *Pipeline) SetPersonaSettings(s PersonaSettings) {
	p.settingsMu.Lock()
	defer p.settingsMu.Unlock()
	p.settings = s
}

// Modes returns the mode layer for command handling.
func (p *Pipeline) Modes() *ModeLayer {
	return p.modes
}

// Process handles one turn end to end. It never returns an error: the
// worst outcomes are a crisis diversion or a fallback reply.
func (p *Pipeline) Process(ctx context.Context, t Turn) Result {
	if t.Now.IsZero() {
		t.Now = time.Now()
	}

	// Safety gate first. On a hit nothing else runs: no providers, no
	// network, no cost, no memory write.
	if p.gate.Check(t.Text) {
		slog.Warn("crisis gate triggered", "room", t.RoomID)
		return Result{Text: CrisisMessage, Source: SourceCrisis}
	}

	p.recordUserTurn(t)

	contextBlock := p.agg.Collect(ctx, t)

	settings := p.PersonaSettings()
	personaID := ResolvePersona(settings, t.Text, t.Now)
	persona, ok := p.catalog.Persona(personaID)
	if !ok {
		slog.Warn("resolved persona missing from catalog", "persona", personaID)
		persona = registry.Persona{}
	}

	systemPrompt := ComposePrompt(persona, contextBlock, p.modes.Fragment(), p.resolveStyles(t.Styles))

	inv := p.invoker.Invoke(ctx, systemPrompt, t.History, t.Text)

	res := Result{
		Text:         inv.Text,
		Source:       inv.Source,
		Persona:      personaID,
		Model:        inv.Model,
		InputTokens:  inv.InputTokens,
		OutputTokens: inv.OutputTokens,
	}
	if inv.Source == SourceModel && p.ledger != nil {
		res.CostUSD = p.ledger.Compute(inv.Model, inv.InputTokens, inv.OutputTokens)
	}

	p.spawnPostHooks(t, res)
	return res
}

// Drain blocks until all spawned post-response hooks finish. Tests use
// it to assert on hook effects deterministically.
func (p *Pipeline) Drain() {
	p.hooks.Wait()
}

// recordUserTurn appends the user message to session memory and merges
// its topics. Best-effort: failures are logged and the turn continues.
func (p *Pipeline) recordUserTurn(t Turn) {
	if p.memory == nil {
		return
	}
	if _, err := p.memory.AppendTurn(t.RoomID, "user", t.Text); err != nil {
		slog.Warn("session append failed", "error", err)
	}
	if err := p.memory.MergeTopics(session.ExtractTopics(t.Text)); err != nil {
		slog.Warn("topic merge failed", "error", err)
	}
}

// resolveStyles maps style IDs through the catalog, dropping unknowns.
func (p *Pipeline) resolveStyles(ids []string) []registry.Style {
	var styles []registry.Style
	for _, id := range ids {
		if s, ok := p.catalog.Style(id); ok {
			styles = append(styles, s)
		} else {
			slog.Warn("unknown style directive", "style", id)
		}
	}
	return styles
}

// spawnPostHooks runs the fire-and-forget work: assistant-turn memory
// write, cost recording, and exchange scoring. The caller's response
// never waits on any of it.
func (p *Pipeline) spawnPostHooks(t Turn, res Result) {
	p.hooks.Add(1)
	go func() {
		defer p.hooks.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("post-response hook panicked", "panic", fmt.Sprint(r))
			}
		}()

		if p.memory != nil {
			if _, err := p.memory.AppendTurn(t.RoomID, "assistant", res.Text); err != nil {
				slog.Warn("assistant turn append failed", "error", err)
			}
		}

		if res.Source == SourceModel && p.ledger != nil {
			if _, err := p.ledger.Record(res.Model, res.InputTokens, res.OutputTokens, t.Now); err != nil {
				slog.Warn("cost recording failed", "error", err)
			}
		}

		if p.memory != nil {
			score, rationale := scoreExchange(t.Text, res)
			if err := p.memory.RecordScore(t.RoomID, score, rationale); err != nil {
				slog.Warn("exchange scoring failed", "error", err)
			}
		}
	}()
}

// scoreExchange rates one exchange 1..5 with a short rationale. A
// cheap heuristic stands in for model-based scoring so the signal
// exists without a second model call per turn.
func scoreExchange(userText string, res Result) (int, string) {
	if res.Source != SourceModel {
		return 2, "non-generated response (" + res.Source + ")"
	}

	score := 3
	var notes []string

	if n := len(res.Text); n >= 80 && n <= 900 {
		score++
		notes = append(notes, "well-sized reply")
	} else if n < 40 {
		score--
		notes = append(notes, "very short reply")
	}

	if strings.Count(res.Text, "?") > 1 {
		score--
		notes = append(notes, "too many questions")
	} else if strings.Contains(res.Text, "?") {
		score++
		notes = append(notes, "invites continuation")
	}

	if score < 1 {
		score = 1
	} else if score > 5 {
		score = 5
	}
	if len(notes) == 0 {
		notes = append(notes, "baseline")
	}
	return score, strings.Join(notes, "; ")
}
