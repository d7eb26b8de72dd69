package cost

import (
	"encoding/json"
	"fmt"
	"os"
)

// Rate is the USD price per 1000 tokens for one model.
type Rate struct {
	In  float64 `json:"in"`
	Out float64 `json:"out"`
}

// defaultRates covers the models the daemon ships configured for.
// Unknown models fall back to the "default" entry so a new model never
// records zero-cost usage.
var defaultRates = map[string]Rate{
	"claude-sonnet-4-5": {In: 0.003, Out: 0.015},
	"claude-haiku-4-5":  {In: 0.001, Out: 0.005},
	"default":           {In: 0.003, Out: 0.015},
}

// Rates maps model names to token prices.
type Rates map[string]Rate

// DefaultRates returns a copy of the built-in rate table.
func DefaultRates() Rates {
	r := make(Rates, len(defaultRates))
	for k, v := range defaultRates {
		r[k] = v
	}
	return r
}

// LoadRates returns the default table with entries from the given JSON
// file merged over it. An empty path returns the defaults.
func LoadRates(path string) (Rates, error) {
	r := DefaultRates()
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rates %s: %w", path, err)
	}
	var overrides map[string]Rate
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse rates %s: %w", path, err)
	}
	for k, v := range overrides {
		r[k] = v
	}
	return r, nil
}

// Compute returns the USD cost of one model call.
func (r Rates) Compute(model string, inputTokens, outputTokens int) float64 {
	rate, ok := r[model]
	if !ok {
		rate = r["default"]
	}
	return float64(inputTokens)/1000*rate.In + float64(outputTokens)/1000*rate.Out
}
