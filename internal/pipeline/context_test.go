package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func staticProvider(name, fragment string) Provider {
	return Provider{Name: name, Fetch: func(context.Context, Turn) (string, error) {
		return fragment, nil
	}}
}

func TestCollectOrdersAndFilters(t *testing.T) {
	agg := NewAggregator(
		staticProvider("first", "## A\nalpha"),
		staticProvider("empty", ""),
		staticProvider("second", "## B\nbeta"),
	)

	got := agg.Collect(context.Background(), Turn{})
	want := "## A\nalpha\n\n## B\nbeta"
	if got != want {
		t.Errorf("Collect = %q, want %q", got, want)
	}
}

func TestCollectIsolatesFailures(t *testing.T) {
	agg := NewAggregator(
		staticProvider("ok", "fine"),
		Provider{Name: "failing", Fetch: func(context.Context, Turn) (string, error) {
			return "", errors.New("backend down")
		}},
		Provider{Name: "panicking", Fetch: func(context.Context, Turn) (string, error) {
			panic("boom")
		}},
		staticProvider("also-ok", "still fine"),
	)

	got := agg.Collect(context.Background(), Turn{})
	if got != "fine\n\nstill fine" {
		t.Errorf("failures should only drop their own fragment, got %q", got)
	}
}

func TestCollectAllFail(t *testing.T) {
	agg := NewAggregator(
		Provider{Name: "a", Fetch: func(context.Context, Turn) (string, error) {
			return "", errors.New("nope")
		}},
		Provider{Name: "b", Fetch: func(context.Context, Turn) (string, error) {
			panic("nope")
		}},
	)
	if got := agg.Collect(context.Background(), Turn{}); got != "" {
		t.Errorf("all-failed Collect = %q, want empty", got)
	}
}

func TestImmediateProvider(t *testing.T) {
	p := ImmediateProvider()

	frag, err := p.Fetch(context.Background(), Turn{Snapshot: Snapshot{
		Mood:          "anxious",
		MoodIntensity: 6,
		SleepHours:    5.5,
		NextEvent:     "dentist at 15:00",
	}})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !strings.HasPrefix(frag, "## Right Now") {
		t.Errorf("missing header: %q", frag)
	}
	for _, want := range []string{"anxious (6/10)", "5.5h", "dentist"} {
		if !strings.Contains(frag, want) {
			t.Errorf("fragment missing %q: %q", want, frag)
		}
	}

	frag, err = p.Fetch(context.Background(), Turn{})
	if err != nil || frag != "" {
		t.Errorf("empty snapshot fragment = %q, %v", frag, err)
	}
}
