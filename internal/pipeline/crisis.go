package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// CrisisMessage is returned verbatim when the gate trips. It is never
// model-generated.
const CrisisMessage = `I'm really glad you told me, and I'm concerned about what you're going through. I'm not able to give you the support you deserve right now, but people who can are available right now:

- 988 Suicide & Crisis Lifeline: call or text 988 (US)
- Crisis Text Line: text HOME to 741741
- International helplines: https://findahelpline.com

If you are in immediate danger, please call your local emergency number. You matter, and you don't have to face this alone.`

// defaultCrisisPhrases is the built-in trigger list. Substring matching
// trades recall for certainty: this is deliberately not a classifier,
// and the list is expected to miss paraphrases.
var defaultCrisisPhrases = []string{
	"kill myself",
	"killing myself",
	"want to die",
	"wanna die",
	"end my life",
	"ending my life",
	"suicide",
	"suicidal",
	"hurt myself",
	"hurting myself",
	"harm myself",
	"self harm",
	"self-harm",
	"no reason to live",
	"better off dead",
	"end it all",
	"don't want to be here anymore",
	"dont want to be here anymore",
	"can't go on",
	"cant go on",
	"not worth living",
}

// CrisisGate is the deterministic safety short-circuit. When it trips,
// the turn terminates before any provider or model call.
type CrisisGate struct {
	phrases []string
}

// NewCrisisGate returns a gate with the built-in phrase list.
func NewCrisisGate() *CrisisGate {
	return &CrisisGate{phrases: defaultCrisisPhrases}
}

// LoadCrisisGate reads a JSON array of phrases from path. The file
// replaces the built-in list entirely so audits see exactly what is
// deployed. An empty path returns the defaults.
func LoadCrisisGate(path string) (*CrisisGate, error) {
	if path == "" {
		return NewCrisisGate(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read crisis phrases %s: %w", path, err)
	}
	var phrases []string
	if err := json.Unmarshal(data, &phrases); err != nil {
		return nil, fmt.Errorf("parse crisis phrases %s: %w", path, err)
	}
	if len(phrases) == 0 {
		return nil, fmt.Errorf("crisis phrase list %s is empty", path)
	}
	return &CrisisGate{phrases: phrases}, nil
}

// Check reports whether the text contains any crisis phrase,
// case-insensitive, at any position.
func (g *CrisisGate) Check(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range g.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
