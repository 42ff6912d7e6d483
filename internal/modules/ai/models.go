package ai

import (
	"strings"

	"github.com/vocalingo/core/internal/config"
)

// Ordered fallback lists, most preferred first.
var defaultModels = map[ProviderType][]string{
	ProviderOpenAI:     {"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini"},
	ProviderAnthropic:  {"claude-haiku-4-5-20251001", "claude-3-5-haiku-latest"},
	ProviderOpenRouter: {"openai/gpt-4o-mini", "google/gemini-2.0-flash-001", "anthropic/claude-3.5-haiku"},
	ProviderGroq:       {"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
}

var defaultAudioModels = map[ProviderType][]string{
	ProviderOpenAI:     {"gpt-4o-mini-transcribe", "whisper-1"},
	ProviderOpenRouter: {"google/gemini-2.0-flash-001", "openai/gpt-4o-audio-preview"},
	ProviderGroq:       {"whisper-large-v3-turbo", "whisper-large-v3"},
}

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	groqBaseURL       = "https://api.groq.com/openai/v1"
)

// ListModels returns the fallback list for a provider and capability,
// honoring overrides from the startup config.
func ListModels(cfg config.AIConfig, t ProviderType, capability Capability) []string {
	pc := cfg.Provider(string(t))
	override, defaults := pc.Models, defaultModels[t]
	if capability == CapabilityAudio {
		override, defaults = pc.AudioModels, defaultAudioModels[t]
	}
	if len(override) > 0 {
		return append([]string(nil), override...)
	}
	return append([]string(nil), defaults...)
}

// candidates puts the configured model first and appends the rest of the
// fallback list without duplicates.
func candidates(configured string, list []string) []string {
	out := make([]string, 0, len(list)+1)
	seen := make(map[string]struct{}, len(list)+1)
	add := func(m string) {
		m = strings.TrimSpace(m)
		if m == "" {
			return
		}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	add(configured)
	for _, m := range list {
		add(m)
	}
	return out
}

// ProviderInfo describes one supported provider for selection screens.
type ProviderInfo struct {
	Provider    ProviderType `json:"provider"`
	Configured  bool         `json:"configured"`
	Models      []string     `json:"models"`
	AudioModels []string     `json:"audioModels"`
}

// Providers lists every supported provider with its fallback model lists.
func (c *Client) Providers() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(ProviderTypes))
	for _, t := range ProviderTypes {
		out = append(out, ProviderInfo{
			Provider:    t,
			Configured:  strings.TrimSpace(c.cfg.Provider(string(t)).APIKey) != "",
			Models:      ListModels(c.cfg, t, CapabilityText),
			AudioModels: ListModels(c.cfg, t, CapabilityAudio),
		})
	}
	return out
}
