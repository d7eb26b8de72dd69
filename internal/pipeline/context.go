package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Provider is one optional context source. Fetch returns a text
// fragment for the prompt, or "" when there is nothing to say. A
// provider that errors or panics contributes nothing; it can never
// take the turn down with it.
type Provider struct {
	Name  string
	Fetch func(ctx context.Context, t Turn) (string, error)
}

// Aggregator fans out to all providers and joins their fragments in
// registration order. Registration order is load-bearing: durable
// signals (memory, profile) come before per-turn signals.
type Aggregator struct {
	providers []Provider
}

// NewAggregator creates an aggregator over the given providers.
func NewAggregator(providers ...Provider) *Aggregator {
	return &Aggregator{providers: providers}
}

// Collect runs every provider concurrently and returns the non-empty
// fragments joined with blank lines, in registration order. Worst case
// is an empty string; Collect itself cannot fail.
func (a *Aggregator) Collect(ctx context.Context, t Turn) string {
	fragments := make([]string, len(a.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range a.providers {
		g.Go(func() error {
			fragments[i] = fetchIsolated(gctx, p, t)
			return nil
		})
	}
	// Goroutines never return errors; Wait is purely the fan-in barrier.
	_ = g.Wait()

	var nonEmpty []string
	for _, f := range fragments {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, "\n\n")
}

// fetchIsolated absorbs both errors and panics from a single provider.
func fetchIsolated(ctx context.Context, p Provider, t Turn) (fragment string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("context provider panicked", "provider", p.Name, "panic", fmt.Sprint(r))
			fragment = ""
		}
	}()

	frag, err := p.Fetch(ctx, t)
	if err != nil {
		slog.Warn("context provider failed", "provider", p.Name, "error", err)
		return ""
	}
	return strings.TrimSpace(frag)
}

// ImmediateProvider renders the caller-supplied snapshot of the
// conversation's immediate situation. It is conventionally registered
// last so per-turn signals sit closest to the user's message.
func ImmediateProvider() Provider {
	return Provider{
		Name: "immediate",
		Fetch: func(_ context.Context, t Turn) (string, error) {
			return t.Snapshot.fragment(), nil
		},
	}
}

// Snapshot carries the immediate conversational context the caller
// already has on hand when the turn starts.
type Snapshot struct {
	Mood          string
	MoodIntensity int
	SleepHours    float64
	NextEvent     string
	Pattern       string
}

func (s Snapshot) fragment() string {
	var lines []string
	if s.Mood != "" {
		line := "- Current mood: " + s.Mood
		if s.MoodIntensity > 0 {
			line += fmt.Sprintf(" (%d/10)", s.MoodIntensity)
		}
		lines = append(lines, line)
	}
	if s.SleepHours > 0 {
		lines = append(lines, fmt.Sprintf("- Slept %.1fh last night", s.SleepHours))
	}
	if s.NextEvent != "" {
		lines = append(lines, "- Coming up: "+s.NextEvent)
	}
	if s.Pattern != "" {
		lines = append(lines, "- Notable pattern: "+s.Pattern)
	}
	if len(lines) == 0 {
		return ""
	}
	return "## Right Now\n" + strings.Join(lines, "\n")
}
