package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/solace-labs/solace/internal/cost"
	"github.com/solace-labs/solace/internal/llm"
	"github.com/solace-labs/solace/pkg/registry"
	"github.com/solace-labs/solace/pkg/session"
)

type testPipeline struct {
	*Pipeline
	provider *fakeLLM
	memory   *session.Memory
	ledger   *cost.Ledger
}

func newTestPipeline(t *testing.T, providers ...Provider) *testPipeline {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	memory, err := session.New(db)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	ledger, err := cost.NewLedger(db, nil)
	if err != nil {
		t.Fatalf("cost.NewLedger: %v", err)
	}

	provider := &fakeLLM{resp: &llm.Response{
		Content:      "It sounds like a lot is going on. What part weighs heaviest?",
		Model:        "claude-sonnet-4-5",
		InputTokens:  1000,
		OutputTokens: 1000,
	}}

	catalog := registry.Default()
	p := New(
		NewCrisisGate(),
		NewAggregator(providers...),
		catalog,
		NewModeLayer(catalog, NewModeSet()),
		newTestInvoker(&fakeCreds{key: "sk-test"}, provider),
		ledger,
		memory,
		DefaultPersonaSettings(),
	)
	return &testPipeline{Pipeline: p, provider: provider, memory: memory, ledger: ledger}
}

func TestProcessCrisisShortCircuits(t *testing.T) {
	called := false
	tp := newTestPipeline(t, Provider{Name: "spy", Fetch: func(context.Context, Turn) (string, error) {
		called = true
		return "spy fragment", nil
	}})

	res := tp.Process(context.Background(), Turn{RoomID: "!r", Text: "I just want to end my life"})
	tp.Drain()

	if res.Source != SourceCrisis || res.Text != CrisisMessage {
		t.Errorf("crisis result = %+v", res)
	}
	if res.CostUSD != 0 {
		t.Error("crisis response must carry zero cost")
	}
	if called {
		t.Error("no provider may run on a crisis turn")
	}
	if tp.provider.calls != 0 {
		t.Error("no model call may happen on a crisis turn")
	}
	if turns, _ := tp.memory.RecentTurns("!r", 10); len(turns) != 0 {
		t.Errorf("crisis turn must not be recorded, got %d turns", len(turns))
	}
}

func TestProcessHappyPath(t *testing.T) {
	tp := newTestPipeline(t, staticProvider("ctx", "## Ctx\nsome context"))

	res := tp.Process(context.Background(), Turn{
		RoomID: "!r",
		Text:   "feeling anxious about tomorrow",
		Now:    time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	})
	tp.Drain()

	if res.Source != SourceModel {
		t.Fatalf("source = %q, want model", res.Source)
	}
	if res.Persona != "haven" {
		t.Errorf("anxious message should resolve haven, got %q", res.Persona)
	}
	// 1000 in + 1000 out at sonnet rates.
	if res.CostUSD < 0.0179 || res.CostUSD > 0.0181 {
		t.Errorf("cost = %v, want ~0.018", res.CostUSD)
	}

	if !strings.Contains(tp.provider.lastReq.System, "some context") {
		t.Error("context block missing from system prompt")
	}
	if !strings.Contains(tp.provider.lastReq.System, "You are Haven") {
		t.Error("persona identity missing from system prompt")
	}

	// Post hooks: both turns in memory, usage in the ledger, a score recorded.
	turns, err := tp.memory.RecentTurns("!r", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 || turns[0].Role != "user" || turns[1].Role != "assistant" {
		t.Errorf("memory after turn = %+v", turns)
	}
	tot, err := tp.ledger.Totals(time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if tot.LifeUSD == 0 {
		t.Error("ledger not updated by post hook")
	}
	if _, n, _ := tp.memory.AverageScore("!r"); n != 1 {
		t.Errorf("exchange scores recorded = %d, want 1", n)
	}
}

func TestProcessProviderFailureDegrades(t *testing.T) {
	tp := newTestPipeline(t,
		staticProvider("good", "good fragment"),
		Provider{Name: "bad", Fetch: func(context.Context, Turn) (string, error) {
			panic("provider exploded")
		}},
	)

	res := tp.Process(context.Background(), Turn{RoomID: "!r", Text: "hello there friend"})
	tp.Drain()

	if res.Source != SourceModel {
		t.Errorf("provider failure must not stop the turn: %+v", res)
	}
	if !strings.Contains(tp.provider.lastReq.System, "good fragment") {
		t.Error("surviving fragment missing")
	}
	if strings.Contains(tp.provider.lastReq.System, "provider exploded") {
		t.Error("failed provider leaked into the prompt")
	}
}

func TestProcessFallbackCarriesNoCost(t *testing.T) {
	tp := newTestPipeline(t)
	tp.invoker = newTestInvoker(&fakeCreds{}, tp.provider) // no credential

	res := tp.Process(context.Background(), Turn{RoomID: "!r", Text: "hello"})
	tp.Drain()

	if res.Source != SourceFallback || res.Text != FallbackNoCredential {
		t.Errorf("result = %+v", res)
	}
	if res.CostUSD != 0 {
		t.Error("fallback must carry zero cost")
	}
	tot, _ := tp.ledger.Totals(time.Now())
	if tot.LifeUSD != 0 {
		t.Error("fallback must not touch the ledger")
	}

	// The fallback reply is still remembered and scored.
	turns, _ := tp.memory.RecentTurns("!r", 10)
	if len(turns) != 2 {
		t.Errorf("fallback exchange should be recorded, got %d turns", len(turns))
	}
}

func TestProcessModeAndStyle(t *testing.T) {
	tp := newTestPipeline(t)
	tp.Modes().Modes().Enable("winddown", false)

	tp.Process(context.Background(), Turn{
		RoomID: "!r",
		Text:   "ready to sleep soon",
		Styles: []string{"brief", "no-such-style"},
	})
	tp.Drain()

	sys := tp.provider.lastReq.System
	if !strings.Contains(sys, "wind-down conversation") {
		t.Error("active mode fragment missing from prompt")
	}
	if !strings.Contains(sys, "two or three sentences") {
		t.Error("style directive missing from prompt")
	}
}

func TestProcessNeverPanics(t *testing.T) {
	// Nil ledger and memory, hostile provider, empty text.
	catalog := registry.Default()
	provider := &fakeLLM{resp: &llm.Response{Content: "ok"}}
	p := New(
		NewCrisisGate(),
		NewAggregator(Provider{Name: "hostile", Fetch: func(context.Context, Turn) (string, error) {
			panic("nope")
		}}),
		catalog,
		NewModeLayer(catalog, NewModeSet()),
		newTestInvoker(&fakeCreds{key: "k"}, provider),
		nil,
		nil,
		DefaultPersonaSettings(),
	)

	res := p.Process(context.Background(), Turn{Text: ""})
	p.Drain()
	if res.Text == "" {
		t.Error("pipeline must always produce a response")
	}
}
