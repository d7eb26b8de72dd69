package lifelog

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Fragment producers. Each returns a human-readable text block for one
// named concern, or "" when there is nothing worth saying. The turn
// pipeline treats both "" and an error as an absent fragment.

// OverviewFragment describes the user's life situation in broad strokes.
func (s *Store) OverviewFragment() (string, error) {
	text, err := s.Profile("overview")
	if err != nil || text == "" {
		return "", err
	}
	return "## Life Overview\n" + text, nil
}

// PsychProfileFragment surfaces the stored psychological profile.
func (s *Store) PsychProfileFragment() (string, error) {
	text, err := s.Profile("psych")
	if err != nil || text == "" {
		return "", err
	}
	return "## Psychological Profile\n" + text, nil
}

// ChronotypeFragment surfaces chronotype and current travel state.
func (s *Store) ChronotypeFragment() (string, error) {
	chrono, err := s.Profile("chronotype")
	if err != nil {
		return "", err
	}
	travel, err := s.Profile("travel")
	if err != nil {
		return "", err
	}
	if chrono == "" && travel == "" {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("## Chronotype & Travel\n")
	if chrono != "" {
		sb.WriteString("- Chronotype: " + chrono + "\n")
	}
	if travel != "" {
		sb.WriteString("- Travel: " + travel + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// CalendarFragment lists events in the next 48 hours.
func (s *Store) CalendarFragment(now time.Time) (string, error) {
	events, err := s.UpcomingEvents(now, 48*time.Hour)
	if err != nil {
		return "", err
	}
	if len(events) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("## Upcoming Calendar\n")
	for _, e := range events {
		line := fmt.Sprintf("- %s: %s", e.StartsAt.Format("Mon 15:04"), e.Title)
		if e.Location != "" {
			line += " (" + e.Location + ")"
		}
		sb.WriteString(line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// HealthFragment snapshots last night's sleep and the latest mood check-in.
func (s *Store) HealthFragment() (string, error) {
	sleep, err := s.LastSleep()
	if err != nil {
		return "", err
	}
	mood, err := s.LatestMood()
	if err != nil {
		return "", err
	}
	if sleep == nil && mood == nil {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("## Health Snapshot\n")
	if sleep != nil {
		line := fmt.Sprintf("- Sleep (%s): %.1fh", sleep.Date, sleep.Hours)
		if sleep.Quality > 0 {
			line += fmt.Sprintf(", quality %d/5", sleep.Quality)
		}
		sb.WriteString(line + "\n")
	}
	if mood != nil {
		sb.WriteString(fmt.Sprintf("- Latest mood: %s (%d/10, %s)\n",
			mood.Mood, mood.Intensity, formatTimeAgo(mood.CreatedAt)))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// CorrelationFragment reports how mood tracks sleep over the last 30 days.
// Needs at least three mood check-ins on each side of the 7-hour line to
// say anything.
func (s *Store) CorrelationFragment(now time.Time) (string, error) {
	since := now.AddDate(0, 0, -30).UTC().Format(timeFmt)
	rows, err := s.db.Query(`
		SELECT m.intensity, sl.hours
		FROM moods m JOIN sleep sl ON sl.date = substr(m.created_at, 1, 10)
		WHERE m.created_at >= ?
	`, since)
	if err != nil {
		return "", fmt.Errorf("correlation query: %w", err)
	}
	defer rows.Close()

	var restedSum, restedN, shortSum, shortN float64
	for rows.Next() {
		var intensity int
		var hours float64
		if err := rows.Scan(&intensity, &hours); err != nil {
			return "", fmt.Errorf("scan correlation: %w", err)
		}
		if hours >= 7 {
			restedSum += float64(intensity)
			restedN++
		} else {
			shortSum += float64(intensity)
			shortN++
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if restedN < 3 || shortN < 3 {
		return "", nil
	}

	rested := restedSum / restedN
	short := shortSum / shortN
	return fmt.Sprintf(
		"## Health–Mood Patterns\nOver the last 30 days, average mood intensity is %.1f/10 after 7+ hours of sleep vs %.1f/10 after shorter nights (%d and %d check-ins).",
		rested, short, int(restedN), int(shortN)), nil
}

// LogsFragment lists the most recent detailed tracking entries.
func (s *Store) LogsFragment() (string, error) {
	logs, err := s.RecentLogs(5)
	if err != nil {
		return "", err
	}
	if len(logs) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("## Recent Tracking\n")
	for _, l := range logs {
		line := fmt.Sprintf("- %s: %g", l.Kind, l.Value)
		if l.Unit != "" {
			line += " " + l.Unit
		}
		if l.Note != "" {
			line += " (" + l.Note + ")"
		}
		sb.WriteString(line + " — " + formatTimeAgo(l.CreatedAt) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// LifestyleFragment aggregates tracking entries by kind over the last week.
func (s *Store) LifestyleFragment(now time.Time) (string, error) {
	since := now.AddDate(0, 0, -7).UTC().Format(timeFmt)
	rows, err := s.db.Query(`
		SELECT kind, COUNT(*), SUM(value) FROM logs
		WHERE created_at >= ? GROUP BY kind
	`, since)
	if err != nil {
		return "", fmt.Errorf("lifestyle query: %w", err)
	}
	defer rows.Close()

	type agg struct {
		kind  string
		count int
		total float64
	}
	var aggs []agg
	for rows.Next() {
		var a agg
		if err := rows.Scan(&a.kind, &a.count, &a.total); err != nil {
			return "", fmt.Errorf("scan lifestyle: %w", err)
		}
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}
	sort.Slice(aggs, func(i, j int) bool { return aggs[i].kind < aggs[j].kind })

	var sb strings.Builder
	sb.WriteString("## Lifestyle (last 7 days)\n")
	for _, a := range aggs {
		sb.WriteString(fmt.Sprintf("- %s: %d entries (total %g)\n", a.kind, a.count, a.total))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// ExposureFragment summarizes exposure-ladder progress.
func (s *Store) ExposureFragment() (string, error) {
	steps, err := s.ExposureSteps()
	if err != nil {
		return "", err
	}
	if len(steps) == 0 {
		return "", nil
	}

	completed := 0
	var current *ExposureStep
	for i := range steps {
		switch steps[i].Status {
		case "completed":
			completed++
		default:
			if current == nil {
				current = &steps[i]
			}
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Exposure Ladder\n%d of %d steps completed.", completed, len(steps)))
	if current != nil {
		sb.WriteString(fmt.Sprintf(" Current step (rung %d): %s [%s].",
			current.Rung, current.Description, current.Status))
	}
	return sb.String(), nil
}

// JournalFragment surfaces the most recent journal entries, truncated.
func (s *Store) JournalFragment() (string, error) {
	entries, err := s.RecentJournal(3)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	var sb strings.Builder
	sb.WriteString("## Recent Journal\n")
	for _, e := range entries {
		content := truncate(e.Content, 160)
		sb.WriteString(fmt.Sprintf("- (%s) %s\n", e.CreatedAt.Format("2006-01-02"), content))
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// truncate shortens s to at most max bytes, cutting on a rune boundary
// so the result is always valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// PreferencesFragment lists stored conversational preferences.
func (s *Store) PreferencesFragment() (string, error) {
	prefs, err := s.Preferences()
	if err != nil {
		return "", err
	}
	if len(prefs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(prefs))
	for k := range prefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("## Preferences\n")
	for _, k := range keys {
		sb.WriteString("- " + k + ": " + prefs[k] + "\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// formatTimeAgo renders a timestamp as a coarse relative age.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
