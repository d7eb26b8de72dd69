package lifelog

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMoodRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if m, err := s.LatestMood(); err != nil || m != nil {
		t.Fatalf("LatestMood on empty store = %v, %v", m, err)
	}

	if err := s.AddMood("anxious", 7, "before the meeting"); err != nil {
		t.Fatalf("AddMood: %v", err)
	}
	if err := s.AddMood("calm", 3, ""); err != nil {
		t.Fatalf("AddMood: %v", err)
	}

	m, err := s.LatestMood()
	if err != nil {
		t.Fatalf("LatestMood: %v", err)
	}
	if m == nil || m.Mood != "calm" || m.Intensity != 3 {
		t.Errorf("LatestMood = %+v, want calm/3", m)
	}
}

func TestSleepUpsert(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddSleep("2026-08-29", 5.5, 2); err != nil {
		t.Fatalf("AddSleep: %v", err)
	}
	// Same date again corrects the record instead of duplicating it.
	if err := s.AddSleep("2026-08-29", 7.5, 4); err != nil {
		t.Fatalf("AddSleep upsert: %v", err)
	}

	sl, err := s.LastSleep()
	if err != nil {
		t.Fatalf("LastSleep: %v", err)
	}
	if sl == nil || sl.Hours != 7.5 || sl.Quality != 4 {
		t.Errorf("LastSleep = %+v, want 7.5h quality 4", sl)
	}
}

func TestJournalSearch(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.AddJournal("long walk by the river, felt lighter afterwards"); err != nil {
		t.Fatalf("AddJournal: %v", err)
	}
	if _, err := s.AddJournal("work deadline is looming and I keep putting it off"); err != nil {
		t.Fatalf("AddJournal: %v", err)
	}

	hits, err := s.SearchJournal("river", 5)
	if err != nil {
		t.Fatalf("SearchJournal: %v", err)
	}
	if len(hits) != 1 || !strings.Contains(hits[0].Content, "river") {
		t.Errorf("SearchJournal(river) = %+v", hits)
	}

	recent, err := s.RecentJournal(10)
	if err != nil {
		t.Fatalf("RecentJournal: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("RecentJournal: got %d entries, want 2", len(recent))
	}
}

func TestUpcomingEvents(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	if err := s.AddEvent("dentist", now.Add(3*time.Hour), "clinic"); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	if err := s.AddEvent("next week", now.Add(120*time.Hour), ""); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	if err := s.AddEvent("already happened", now.Add(-2*time.Hour), ""); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}

	events, err := s.UpcomingEvents(now, 48*time.Hour)
	if err != nil {
		t.Fatalf("UpcomingEvents: %v", err)
	}
	if len(events) != 1 || events[0].Title != "dentist" {
		t.Errorf("UpcomingEvents = %+v, want only dentist", events)
	}

	next, err := s.NextEvent(now)
	if err != nil {
		t.Fatalf("NextEvent: %v", err)
	}
	if next == nil || next.Title != "dentist" {
		t.Errorf("NextEvent = %+v", next)
	}
}

func TestExposureLadder(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetExposureStep(1, "look at photos of elevators"); err != nil {
		t.Fatalf("SetExposureStep: %v", err)
	}
	if err := s.SetExposureStep(2, "stand near an elevator"); err != nil {
		t.Fatalf("SetExposureStep: %v", err)
	}
	if err := s.MarkExposure(1, "completed"); err != nil {
		t.Fatalf("MarkExposure: %v", err)
	}

	steps, err := s.ExposureSteps()
	if err != nil {
		t.Fatalf("ExposureSteps: %v", err)
	}
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Status != "completed" || steps[0].AttemptedAt == nil {
		t.Errorf("step 1 = %+v, want completed with timestamp", steps[0])
	}
	if steps[1].Status != "planned" {
		t.Errorf("step 2 = %+v, want planned", steps[1])
	}
}

func TestPreferencesAndProfile(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetPreference("length", "short replies"); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	if err := s.SetPreference("topics", "no work talk after 21:00"); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	if err := s.SetProfile("chronotype", "night owl"); err != nil {
		t.Fatalf("SetProfile: %v", err)
	}

	prefs, err := s.Preferences()
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if len(prefs) != 2 || prefs["length"] != "short replies" {
		t.Errorf("Preferences = %v", prefs)
	}

	chrono, err := s.Profile("chronotype")
	if err != nil || chrono != "night owl" {
		t.Errorf("Profile(chronotype) = %q, %v", chrono, err)
	}
	// Profile keys must not leak into preferences.
	if _, ok := prefs["chronotype"]; ok {
		t.Error("profile field leaked into Preferences()")
	}
}

func TestFragmentsEmptyStore(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	checks := []struct {
		name string
		fn   func() (string, error)
	}{
		{"overview", s.OverviewFragment},
		{"psych", s.PsychProfileFragment},
		{"chronotype", s.ChronotypeFragment},
		{"calendar", func() (string, error) { return s.CalendarFragment(now) }},
		{"health", s.HealthFragment},
		{"correlation", func() (string, error) { return s.CorrelationFragment(now) }},
		{"logs", s.LogsFragment},
		{"lifestyle", func() (string, error) { return s.LifestyleFragment(now) }},
		{"exposure", s.ExposureFragment},
		{"journal", s.JournalFragment},
		{"preferences", s.PreferencesFragment},
	}
	for _, c := range checks {
		got, err := c.fn()
		if err != nil {
			t.Errorf("%s fragment on empty store: %v", c.name, err)
		}
		if got != "" {
			t.Errorf("%s fragment on empty store = %q, want empty", c.name, got)
		}
	}
}

func TestJournalFragmentTruncatesOnRuneBoundary(t *testing.T) {
	s := openTestStore(t)

	// A long entry of multi-byte runes must not be cut mid-rune.
	long := strings.Repeat("日", 100)
	if _, err := s.AddJournal(long); err != nil {
		t.Fatal(err)
	}

	frag, err := s.JournalFragment()
	if err != nil {
		t.Fatalf("JournalFragment: %v", err)
	}
	if !utf8.ValidString(frag) {
		t.Errorf("fragment contains invalid UTF-8: %q", frag)
	}
	if !strings.Contains(frag, "...") {
		t.Errorf("long entry not truncated: %q", frag)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 160, "short"},
		{strings.Repeat("a", 10), 8, "aaaaa..."},
		// Cut point lands inside a 3-byte rune; walk back to its start.
		{"aaaa" + "日日", 8, "aaaa..."},
	}
	for _, c := range cases {
		got := truncate(c.in, c.max)
		if got != c.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", c.in, c.max)
		}
	}
}

func TestHealthFragment(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddSleep(time.Now().Format("2006-01-02"), 6.5, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.AddMood("tired", 4, ""); err != nil {
		t.Fatal(err)
	}

	frag, err := s.HealthFragment()
	if err != nil {
		t.Fatalf("HealthFragment: %v", err)
	}
	if !strings.HasPrefix(frag, "## Health Snapshot") {
		t.Errorf("missing header: %q", frag)
	}
	if !strings.Contains(frag, "6.5h") || !strings.Contains(frag, "tired") {
		t.Errorf("fragment missing data: %q", frag)
	}
}

func TestCorrelationFragmentThreshold(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	// Two short nights only: below the three-per-side minimum.
	for i := 0; i < 2; i++ {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		if err := s.AddSleep(date, 5, 2); err != nil {
			t.Fatal(err)
		}
		if err := s.AddMood("low", 3, ""); err != nil {
			t.Fatal(err)
		}
	}
	frag, err := s.CorrelationFragment(now)
	if err != nil {
		t.Fatalf("CorrelationFragment: %v", err)
	}
	if frag != "" {
		t.Errorf("expected no fragment below sample threshold, got %q", frag)
	}
}

func TestLifestyleFragment(t *testing.T) {
	s := openTestStore(t)

	if err := s.AddLog("water", 500, "ml", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.AddLog("water", 300, "ml", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.AddLog("caffeine", 80, "mg", "morning coffee"); err != nil {
		t.Fatal(err)
	}

	frag, err := s.LifestyleFragment(time.Now())
	if err != nil {
		t.Fatalf("LifestyleFragment: %v", err)
	}
	if !strings.Contains(frag, "water: 2 entries (total 800)") {
		t.Errorf("water aggregate missing: %q", frag)
	}
	if !strings.Contains(frag, "caffeine: 1 entries") {
		t.Errorf("caffeine aggregate missing: %q", frag)
	}
}
