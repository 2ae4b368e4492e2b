// Package modelcatalog holds the runtime catalog of language models and
// their per-tier availability. The catalog loads from models.yml when
// present and falls back to compiled defaults, reloading on file change
// without a restart.
package modelcatalog

import "errors"

// ErrUnknownModel is returned when neither a model id nor any alias
// matches.
var ErrUnknownModel = errors.New("unknown_model")

// Pricing is the per-million-token cost in USD.
type Pricing struct {
	InputPerMTok  float64 `json:"input_per_mtok" mapstructure:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok" mapstructure:"output_per_mtok"`
}

// Model describes one servable model.
type Model struct {
	ID            string   `json:"id" mapstructure:"id"`
	Name          string   `json:"name" mapstructure:"name"`
	Aliases       []string `json:"aliases,omitempty" mapstructure:"aliases"`
	ContextWindow int      `json:"context_window" mapstructure:"context_window"`
	Pricing       Pricing  `json:"pricing" mapstructure:"pricing"`
	// Tiers lists the tier ids the model is available on. Empty means
	// available on every tier.
	Tiers   []string `json:"tiers,omitempty" mapstructure:"tiers"`
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
}

// AvailableOn reports whether the model is servable for the given tier.
func (m Model) AvailableOn(tierID string) bool {
	if !m.Enabled {
		return false
	}
	if len(m.Tiers) == 0 {
		return true
	}
	for _, id := range m.Tiers {
		if id == tierID {
			return true
		}
	}
	return false
}

// DefaultModels is the compiled-in catalog used when no models.yml is
// deployed.
func DefaultModels() []Model {
	return []Model{
		{
			ID:            "anthropic/claude-sonnet-4",
			Name:          "Claude Sonnet 4",
			Aliases:       []string{"claude-sonnet-4", "sonnet"},
			ContextWindow: 200_000,
			Pricing:       Pricing{InputPerMTok: 3, OutputPerMTok: 15},
			Enabled:       true,
		},
		{
			ID:            "anthropic/claude-haiku-3.5",
			Name:          "Claude Haiku 3.5",
			Aliases:       []string{"claude-haiku", "haiku"},
			ContextWindow: 200_000,
			Pricing:       Pricing{InputPerMTok: 0.8, OutputPerMTok: 4},
			Enabled:       true,
		},
		{
			ID:            "openai/gpt-4o",
			Name:          "GPT-4o",
			Aliases:       []string{"gpt-4o"},
			ContextWindow: 128_000,
			Pricing:       Pricing{InputPerMTok: 2.5, OutputPerMTok: 10},
			Tiers:         []string{"tier_12_100", "tier_25_200", "tier_50_400", "tier_125_800", "tier_200_1000"},
			Enabled:       true,
		},
		{
			ID:            "openai/gpt-4o-mini",
			Name:          "GPT-4o mini",
			Aliases:       []string{"gpt-4o-mini"},
			ContextWindow: 128_000,
			Pricing:       Pricing{InputPerMTok: 0.15, OutputPerMTok: 0.6},
			Enabled:       true,
		},
		{
			ID:            "google/gemini-2.5-pro",
			Name:          "Gemini 2.5 Pro",
			Aliases:       []string{"gemini-pro"},
			ContextWindow: 1_000_000,
			Pricing:       Pricing{InputPerMTok: 1.25, OutputPerMTok: 10},
			Tiers:         []string{"tier_25_200", "tier_50_400", "tier_125_800", "tier_200_1000"},
			Enabled:       true,
		},
	}
}
