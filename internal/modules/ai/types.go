package ai

import (
	"fmt"
	"strings"
)

// ProviderType is the closed set of supported AI vendors.
type ProviderType string

const (
	ProviderOpenAI     ProviderType = "openai"
	ProviderAnthropic  ProviderType = "anthropic"
	ProviderOpenRouter ProviderType = "openrouter"
	ProviderGroq       ProviderType = "groq"
)

// ProviderTypes lists every supported provider in a stable order.
var ProviderTypes = []ProviderType{ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter, ProviderGroq}

// ParseProviderType normalizes a provider tag ("Open_AI", " groq ") and
// rejects anything outside the closed set.
func ParseProviderType(raw string) (ProviderType, error) {
	t := strings.ToLower(strings.TrimSpace(raw))
	t = strings.ReplaceAll(t, "_", "")
	t = strings.ReplaceAll(t, "-", "")
	t = strings.ReplaceAll(t, " ", "")
	for _, known := range ProviderTypes {
		if t == string(known) {
			return known, nil
		}
	}
	return "", &ConfigError{Reason: fmt.Sprintf("unknown AI provider %q", raw)}
}

func (t ProviderType) String() string { return string(t) }

// Capability distinguishes the two provider entry points.
type Capability string

const (
	CapabilityText  Capability = "text"
	CapabilityAudio Capability = "audio"
)

// GenerateOptions tunes a single text generation.
type GenerateOptions struct {
	SystemPrompt string
	MaxTokens    int
}

type GenerateOption func(*GenerateOptions)

func WithSystemPrompt(prompt string) GenerateOption {
	return func(o *GenerateOptions) { o.SystemPrompt = prompt }
}

func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		if n > 0 {
			o.MaxTokens = n
		}
	}
}

const defaultMaxTokens = 1024

func buildOptions(opts []GenerateOption) GenerateOptions {
	o := GenerateOptions{MaxTokens: defaultMaxTokens}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Selection is the provider/model pair resolved for one user at call time.
type Selection struct {
	Provider      ProviderType `json:"provider"`
	Model         string       `json:"model"`
	AudioProvider ProviderType `json:"audioProvider"`
	AudioModel    string       `json:"audioModel"`
}

// DialogueLine is one turn of the target dialogue.
type DialogueLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// EvaluationInput is what the evaluator grades a spoken translation against.
type EvaluationInput struct {
	TargetDialogue []DialogueLine `json:"targetDialogue"`
	Transcript     string         `json:"transcript"`
	SourceLanguage string         `json:"sourceLanguage"`
	TargetLanguage string         `json:"targetLanguage"`
	SourceWords    []string       `json:"sourceWords"`
	TargetStyle    string         `json:"targetStyle,omitempty"`
	TargetAudience string         `json:"targetAudience,omitempty"`
}

type Scores struct {
	Accuracy     float64 `json:"accuracy"`
	Fluency      float64 `json:"fluency"`
	Register     float64 `json:"register"`
	Completeness float64 `json:"completeness"`
}

type EvaluationError struct {
	Index       int    `json:"index"`
	Span        string `json:"span"`
	Type        string `json:"type"`
	Explanation string `json:"explanation"`
	Suggestion  string `json:"suggestion"`
}

// EvaluationReport is the structured grading of one spoken translation.
type EvaluationReport struct {
	OverallScore         float64           `json:"overallScore"`
	Scores               Scores            `json:"scores"`
	Errors               []EvaluationError `json:"errors"`
	CorrectedTranslation string            `json:"correctedTranslation"`
	MissingIdeas         []string          `json:"missingIdeas"`
	Advice               string            `json:"advice"`
}
