// Package daemon wires Solace together: storage, session memory, the
// turn pipeline, the Matrix channel, background workers, and the HTTP
// API.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/solace-labs/solace/internal/cost"
	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/internal/pipeline"
	"github.com/solace-labs/solace/pkg/channel"
	"github.com/solace-labs/solace/pkg/lifelog"
	"github.com/solace-labs/solace/pkg/registry"
	"github.com/solace-labs/solace/pkg/semantic"
	"github.com/solace-labs/solace/pkg/session"
	"github.com/solace-labs/solace/pkg/upkeep"
)

// historyKeep bounds the per-room in-memory history. The invoker
// narrows this further to its own window per request.
const historyKeep = 20

// Daemon is the Solace process.
type Daemon struct {
	cfg     *Config
	store   *lifelog.Store
	memory  *session.Memory
	ledger  *cost.Ledger
	catalog *registry.Catalog
	creds   *llm.Credentials
	pipe    *pipeline.Pipeline
	bus     *EventBus
	channel channel.Channel

	semWorker *semantic.SyncWorker
	semStore  *semantic.Store
	upkeep    *upkeep.Worker

	histMu    sync.Mutex
	histories map[string][]llm.Message
}

// New builds a daemon from config. The returned daemon owns the
// lifelog store and closes it on shutdown.
func New(cfg *Config, ch channel.Channel) (*Daemon, error) {
	store, err := lifelog.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	memory, err := session.New(store.DB())
	if err != nil {
		store.Close()
		return nil, err
	}

	rates, err := cost.LoadRates(cfg.RatesPath)
	if err != nil {
		store.Close()
		return nil, err
	}
	ledger, err := cost.NewLedger(store.DB(), rates)
	if err != nil {
		store.Close()
		return nil, err
	}

	catalog, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	gate, err := pipeline.LoadCrisisGate(cfg.CrisisPath)
	if err != nil {
		store.Close()
		return nil, err
	}

	creds := llm.NewCredentials(cfg.Model.Provider+"-api-key", cfg.DataDir)
	if cfg.Model.APIKey != "" && !creds.Has() {
		if err := creds.Set(cfg.Model.APIKey); err != nil {
			slog.Warn("seeding credential failed", "error", err)
		}
	}

	d := &Daemon{
		cfg:       cfg,
		store:     store,
		memory:    memory,
		ledger:    ledger,
		catalog:   catalog,
		creds:     creds,
		bus:       NewEventBus(),
		channel:   ch,
		histories: make(map[string][]llm.Message),
	}

	if cfg.Semantic.Enabled && cfg.Semantic.PostgresURL != "" && cfg.Semantic.TEIURL != "" {
		if err := d.initSemantic(cfg.Semantic); err != nil {
			slog.Warn("semantic recall unavailable, falling back to keyword search", "error", err)
		}
	}

	factory := func(apiKey string) llm.Provider {
		switch {
		case cfg.Model.Provider == "openai-compat":
			return llm.NewOpenAICompat("openai-compat", cfg.Model.BaseURL, apiKey, cfg.Model.Model)
		case cfg.Model.BaseURL != "":
			return llm.NewAnthropicCompat(cfg.Model.Provider, cfg.Model.BaseURL, apiKey, cfg.Model.Model)
		default:
			return llm.NewAnthropic(apiKey, cfg.Model.Model)
		}
	}
	invoker := pipeline.NewInvoker(creds, cfg.Model.Model, factory)
	invoker.SetMaxTokens(cfg.Model.MaxOutput)

	agg := pipeline.NewAggregator(buildProviders(store, memory, d.recallFunc())...)
	modeLayer := pipeline.NewModeLayer(catalog, pipeline.NewModeSet())

	d.pipe = pipeline.New(gate, agg, catalog, modeLayer, invoker, ledger, memory, d.loadPersonaSettings())
	d.restoreModes()

	if !cfg.Upkeep.Disabled {
		ucfg := upkeep.DefaultConfig()
		if v, err := time.ParseDuration(cfg.Upkeep.Interval); err == nil && v > 0 {
			ucfg.Interval = v
		}
		if v, err := time.ParseDuration(cfg.Upkeep.Retention); err == nil && v > 0 {
			ucfg.Retention = v
		}
		d.upkeep = upkeep.NewWorker(memory, func(typ, msg string) {
			d.bus.Publish(Event{Type: EventStatus, Message: msg})
		}, ucfg)
	}

	return d, nil
}

// initSemantic connects the pgvector store and TEI client.
func (d *Daemon) initSemantic(cfg SemanticConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := semantic.NewStore(ctx, cfg.PostgresURL)
	if err != nil {
		return err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return err
	}

	tei := semantic.NewTEIClient(cfg.TEIURL)
	if err := tei.Health(ctx); err != nil {
		store.Close()
		return err
	}

	interval, _ := time.ParseDuration(cfg.SyncInterval)
	d.semStore = store
	d.semWorker = semantic.NewSyncWorker(d.store, store, tei, interval, cfg.BatchSize)
	slog.Info("semantic recall enabled")
	return nil
}

// recallFunc returns vector recall when available, FTS keyword search
// otherwise.
func (d *Daemon) recallFunc() RecallFunc {
	if d.semWorker != nil {
		return func(ctx context.Context, query string) ([]lifelog.JournalEntry, error) {
			return d.semWorker.Recall(ctx, query, 3)
		}
	}
	return func(_ context.Context, query string) ([]lifelog.JournalEntry, error) {
		terms := session.ExtractTopics(query)
		if len(terms) == 0 {
			return nil, nil
		}
		return d.store.SearchJournal(strings.Join(terms, " OR "), 3)
	}
}

// Run starts the daemon and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("solace starting", "name", d.cfg.Name, "data_dir", d.cfg.DataDir)

	var wg sync.WaitGroup

	if d.semWorker != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.semWorker.Run(ctx)
		}()
	}
	if d.upkeep != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.upkeep.Run(ctx)
		}()
	}
	if d.cfg.APIAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.serveAPI(ctx)
		}()
	}

	err := d.channel.Start(ctx, d.handleMessage)

	wg.Wait()
	d.shutdown()
	return err
}

// shutdown releases daemon resources.
func (d *Daemon) shutdown() {
	d.pipe.Drain()
	if d.semStore != nil {
		d.semStore.Close()
	}
	if err := d.store.Close(); err != nil {
		slog.Warn("lifelog close failed", "error", err)
	}
	slog.Info("solace stopped")
}

// handleMessage processes one inbound channel message.
func (d *Daemon) handleMessage(ctx context.Context, msg channel.Message) error {
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "/") {
		reply := d.handleCommand(text)
		if reply == "" {
			return nil
		}
		return d.channel.Send(ctx, channel.Response{RoomID: msg.RoomID, Content: reply})
	}

	styles, text := splitStyleTag(text, d.catalog)

	d.bus.Publish(Event{Type: EventChat, Role: "user", Content: text})

	turn := pipeline.Turn{
		RoomID:   msg.RoomID,
		Text:     text,
		Now:      time.Now(),
		History:  d.history(msg.RoomID),
		Styles:   styles,
		Snapshot: d.snapshot(),
	}

	res := d.pipe.Process(ctx, turn)

	switch res.Source {
	case pipeline.SourceCrisis:
		d.bus.Publish(Event{Type: EventCrisis, Message: "crisis gate triggered"})
	case pipeline.SourceFallback:
		d.bus.Publish(Event{Type: EventFallback, Message: res.Text})
	default:
		d.bus.Publish(Event{Type: EventChat, Role: "assistant", Content: res.Text, Persona: res.Persona})
		if res.CostUSD > 0 {
			d.bus.Publish(Event{Type: EventCost, USD: res.CostUSD})
		}
	}

	// Crisis turns stay out of the model-facing history.
	if res.Source != pipeline.SourceCrisis {
		d.appendHistory(msg.RoomID, text, res.Text)
	}

	return d.channel.Send(ctx, channel.Response{RoomID: msg.RoomID, Content: res.Text})
}

// snapshot assembles the immediate-context snapshot from the lifelog.
func (d *Daemon) snapshot() pipeline.Snapshot {
	var snap pipeline.Snapshot
	if mood, err := d.store.LatestMood(); err == nil && mood != nil {
		// Stale check-ins don't describe "right now".
		if time.Since(mood.CreatedAt) < 12*time.Hour {
			snap.Mood = mood.Mood
			snap.MoodIntensity = mood.Intensity
		}
	}
	if sleep, err := d.store.LastSleep(); err == nil && sleep != nil {
		snap.SleepHours = sleep.Hours
	}
	if ev, err := d.store.NextEvent(time.Now()); err == nil && ev != nil {
		snap.NextEvent = fmt.Sprintf("%s (%s)", ev.Title, ev.StartsAt.Format("Mon 15:04"))
	}
	return snap
}

// history returns a copy of the room's recent message history.
func (d *Daemon) history(roomID string) []llm.Message {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	h := d.histories[roomID]
	out := make([]llm.Message, len(h))
	copy(out, h)
	return out
}

// appendHistory records one exchange and trims the room's history.
func (d *Daemon) appendHistory(roomID, userText, reply string) {
	d.histMu.Lock()
	defer d.histMu.Unlock()
	h := append(d.histories[roomID],
		llm.Message{Role: "user", Content: userText},
		llm.Message{Role: "assistant", Content: reply},
	)
	if len(h) > historyKeep {
		h = h[len(h)-historyKeep:]
	}
	d.histories[roomID] = h
}

// loadPersonaSettings restores persona settings from the lifelog,
// falling back to defaults. Profile fields are used instead of
// preferences so the settings stay out of the preferences fragment.
func (d *Daemon) loadPersonaSettings() pipeline.PersonaSettings {
	s := pipeline.DefaultPersonaSettings()
	if v, err := d.store.Profile("persona"); err == nil && v != "" {
		s.Selected = v
	}
	if v, err := d.store.Profile("persona_adaptive"); err == nil && v == "off" {
		s.Adaptive = false
	}
	return s
}

// savePersonaSettings persists the mutable persona settings.
func (d *Daemon) savePersonaSettings(s pipeline.PersonaSettings) {
	if err := d.store.SetProfile("persona", s.Selected); err != nil {
		slog.Warn("persisting persona failed", "error", err)
	}
	mode := "on"
	if !s.Adaptive {
		mode = "off"
	}
	if err := d.store.SetProfile("persona_adaptive", mode); err != nil {
		slog.Warn("persisting persona_adaptive failed", "error", err)
	}
}

// splitStyleTag strips a leading [style] tag naming a known style, e.g.
// "[brief] how was my week?".
func splitStyleTag(text string, catalog *registry.Catalog) ([]string, string) {
	if !strings.HasPrefix(text, "[") {
		return nil, text
	}
	end := strings.Index(text, "]")
	if end < 2 {
		return nil, text
	}
	id := strings.ToLower(strings.TrimSpace(text[1:end]))
	if _, ok := catalog.Style(id); !ok {
		return nil, text
	}
	return []string{id}, strings.TrimSpace(text[end+1:])
}
