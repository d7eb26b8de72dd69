package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/solace-labs/solace/internal/pipeline"
	"github.com/solace-labs/solace/pkg/lifelog"
	"github.com/solace-labs/solace/pkg/session"
)

// RecallFunc finds journal entries relevant to the current message.
// The daemon wires either vector recall or FTS keyword search here.
type RecallFunc func(ctx context.Context, query string) ([]lifelog.JournalEntry, error)

// buildProviders assembles the pipeline's context providers. The order
// is fixed: durable and aggregate signals first, per-turn signals last.
func buildProviders(ll *lifelog.Store, mem *session.Memory, recall RecallFunc) []pipeline.Provider {
	now := func(t pipeline.Turn) time.Time {
		if t.Now.IsZero() {
			return time.Now()
		}
		return t.Now
	}

	return []pipeline.Provider{
		{Name: "memory", Fetch: func(ctx context.Context, t pipeline.Turn) (string, error) {
			return memoryFragment(ctx, mem, recall, t)
		}},
		{Name: "overview", Fetch: func(context.Context, pipeline.Turn) (string, error) {
			return ll.OverviewFragment()
		}},
		{Name: "psych", Fetch: func(context.Context, pipeline.Turn) (string, error) {
			return ll.PsychProfileFragment()
		}},
		{Name: "chronotype", Fetch: func(context.Context, pipeline.Turn) (string, error) {
			return ll.ChronotypeFragment()
		}},
		{Name: "calendar", Fetch: func(_ context.Context, t pipeline.Turn) (string, error) {
			return ll.CalendarFragment(now(t))
		}},
		{Name: "health", Fetch: func(context.Context, pipeline.Turn) (string, error) {
			return ll.HealthFragment()
		}},
		{Name: "correlations", Fetch: func(_ context.Context, t pipeline.Turn) (string, error) {
			return ll.CorrelationFragment(now(t))
		}},
		{Name: "logs", Fetch: func(context.Context, pipeline.Turn) (string, error) {
			return ll.LogsFragment()
		}},
		{Name: "lifestyle", Fetch: func(_ context.Context, t pipeline.Turn) (string, error) {
			return ll.LifestyleFragment(now(t))
		}},
		{Name: "exposure", Fetch: func(context.Context, pipeline.Turn) (string, error) {
			return ll.ExposureFragment()
		}},
		{Name: "journal", Fetch: func(context.Context, pipeline.Turn) (string, error) {
			return ll.JournalFragment()
		}},
		{Name: "preferences", Fetch: func(context.Context, pipeline.Turn) (string, error) {
			return ll.PreferencesFragment()
		}},
		pipeline.ImmediateProvider(),
	}
}

// memoryFragment combines the session summary with journal entries
// relevant to the current message.
func memoryFragment(ctx context.Context, mem *session.Memory, recall RecallFunc, t pipeline.Turn) (string, error) {
	summary, err := mem.SummaryFragment(t.RoomID)
	if err != nil {
		return "", err
	}

	var recalled string
	if recall != nil && t.Text != "" {
		entries, err := recall(ctx, t.Text)
		if err != nil {
			// Recall is an enrichment; the session summary still stands.
			return summary, nil
		}
		var lines []string
		for i, e := range entries {
			if i >= 3 {
				break
			}
			lines = append(lines, fmt.Sprintf("- (%s) %s", e.CreatedAt.Format("2006-01-02"), trimPreview(e.Content, 120)))
		}
		if len(lines) > 0 {
			recalled = "## Possibly Relevant Journal Entries\n" + strings.Join(lines, "\n")
		}
	}

	switch {
	case summary != "" && recalled != "":
		return summary + "\n\n" + recalled, nil
	case recalled != "":
		return recalled, nil
	default:
		return summary, nil
	}
}

// trimPreview caps s at max bytes, cutting on a rune boundary so the
// prompt never carries invalid UTF-8.
func trimPreview(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
