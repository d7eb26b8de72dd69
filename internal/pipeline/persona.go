package pipeline

import (
	"strings"
	"time"
)

// PersonaSettings governs persona selection. Adaptive selection is
// opt-in per trigger; with everything off the selected persona is
// returned unchanged.
type PersonaSettings struct {
	Selected       string            `json:"selected"`
	Adaptive       bool              `json:"adaptive"`
	MoodTrigger    bool              `json:"mood_trigger"`
	TimeTrigger    bool              `json:"time_trigger"`
	ContentTrigger bool              `json:"content_trigger"`
	Base           string            `json:"base"`
	MoodMap        map[string]string `json:"mood_map,omitempty"`
	TimeMap        map[string]string `json:"time_map,omitempty"`
	ContentMap     map[string]string `json:"content_map,omitempty"`
}

// DefaultPersonaSettings enables full adaptive selection over the
// built-in catalog with sage as the base persona.
func DefaultPersonaSettings() PersonaSettings {
	return PersonaSettings{
		Selected:       "sage",
		Adaptive:       true,
		MoodTrigger:    true,
		TimeTrigger:    true,
		ContentTrigger: true,
		Base:           "sage",
		MoodMap: map[string]string{
			"anxious": "haven",
			"sad":     "ember",
			"angry":   "anchor",
			"happy":   "spark",
		},
		// Afternoon has no dedicated persona and falls through.
		TimeMap: map[string]string{
			"morning": "spark",
			"evening": "luna",
			"night":   "luna",
		},
		ContentMap: map[string]string{
			"goal":       "atlas",
			"anxiety":    "haven",
			"sadness":    "ember",
			"excitement": "spark",
		},
	}
}

// moodGroup pairs a mood label with its detection keywords. Somatic
// phrases count the same as verbal ones: "chest is tight" reads as
// anxious even when the word never appears.
type moodGroup struct {
	mood     string
	keywords []string
}

// moodGroups are scanned in order; the first group with any match wins.
var moodGroups = []moodGroup{
	{"anxious", []string{
		"anxious", "anxiety", "nervous", "worried", "worrying", "panic",
		"panicking", "on edge", "overwhelmed", "stressed", "stressing",
		"chest is tight", "chest feels tight", "can't breathe", "cant breathe",
		"heart racing", "heart is racing", "stomach in knots", "shaky",
	}},
	{"sad", []string{
		"sad", "depressed", "down", "miserable", "hopeless", "lonely",
		"crying", "cried", "grief", "grieving", "empty inside", "numb",
		"heavy", "drained", "no energy",
	}},
	{"angry", []string{
		"angry", "furious", "mad at", "so mad", "pissed", "frustrated",
		"frustrating", "irritated", "fed up", "sick of", "rage", "annoyed",
	}},
	{"happy", []string{
		"happy", "excited", "great news", "amazing", "wonderful",
		"thrilled", "proud of myself", "feeling good", "fantastic",
		"delighted", "grateful",
	}},
}

// contentGroup pairs a content label with its detection keywords.
type contentGroup struct {
	label    string
	keywords []string
}

var contentGroups = []contentGroup{
	{"goal", []string{
		"goal", "plan to", "planning", "want to start", "habit",
		"deadline", "productivity", "get done", "accomplish", "routine",
	}},
	{"anxiety", []string{
		"worry", "worried", "anxious", "scared", "afraid", "nervous",
	}},
	{"sadness", []string{
		"sad", "miss", "missing", "lost", "lonely", "down",
	}},
	{"excitement", []string{
		"excited", "can't wait", "cant wait", "looking forward", "stoked",
	}},
}

// ResolvePersona picks exactly one persona ID. Precedence is strict
// and first-match-wins: mood beats time of day, which beats content.
func ResolvePersona(s PersonaSettings, text string, now time.Time) string {
	if !s.Adaptive {
		return s.Selected
	}

	if s.MoodTrigger {
		if mood := detectMood(text); mood != "" {
			if id, ok := s.MoodMap[mood]; ok {
				return id
			}
		}
	}

	if s.TimeTrigger {
		if id, ok := s.TimeMap[timeBucket(now)]; ok {
			return id
		}
	}

	if s.ContentTrigger {
		if label := detectContent(text); label != "" {
			if id, ok := s.ContentMap[label]; ok {
				return id
			}
		}
	}

	return s.Base
}

// detectMood returns the first mood group with a keyword hit, or "".
func detectMood(text string) string {
	lower := strings.ToLower(text)
	for _, g := range moodGroups {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.mood
			}
		}
	}
	return ""
}

// detectContent returns the first content group with a keyword hit, or "".
func detectContent(text string) string {
	lower := strings.ToLower(text)
	for _, g := range contentGroups {
		for _, kw := range g.keywords {
			if strings.Contains(lower, kw) {
				return g.label
			}
		}
	}
	return ""
}

// timeBucket maps the local hour into morning, afternoon, evening, night.
func timeBucket(now time.Time) string {
	switch h := now.Hour(); {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 17:
		return "afternoon"
	case h >= 17 && h < 22:
		return "evening"
	default:
		return "night"
	}
}
