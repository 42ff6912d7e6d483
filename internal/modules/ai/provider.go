package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	"github.com/vocalingo/core/internal/config"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	jetopenai "go.jetify.com/ai/provider/openai"
)

// Provider is one configured AI backend. Implementations hold only their
// credentials and HTTP client, so a single instance is safe to share.
type Provider interface {
	Type() ProviderType
	GenerateContent(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error)
	TranscribeAudio(ctx context.Context, model string, audio []byte, mimeType, sourceLanguage string) (string, error)
}

var errEmptyResponse = errors.New("empty response from AI")

// newProvider builds a provider for t. A missing credential fails here,
// before any request is attempted.
func newProvider(t ProviderType, pc config.ProviderConfig, timeout time.Duration) (Provider, error) {
	apiKey := strings.TrimSpace(pc.APIKey)
	if apiKey == "" {
		return nil, &ConfigError{Provider: t, Reason: "api key is not configured"}
	}
	baseURL := strings.TrimSpace(pc.BaseURL)

	switch t {
	case ProviderOpenAI:
		return &openAIProvider{client: newOpenAIClient(apiKey, normalizeOpenAIBaseURL(baseURL), timeout)}, nil
	case ProviderAnthropic:
		opts := []anthropicoption.RequestOption{
			anthropicoption.WithAPIKey(apiKey),
			anthropicoption.WithMaxRetries(0),
		}
		if timeout > 0 {
			opts = append(opts, anthropicoption.WithRequestTimeout(timeout))
		}
		if baseURL != "" {
			opts = append(opts, anthropicoption.WithBaseURL(strings.TrimRight(baseURL, "/")))
		}
		return &anthropicProvider{client: anthropicclient.NewClient(opts...)}, nil
	case ProviderOpenRouter:
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		return &compatProvider{typ: t, client: newOpenAIClient(apiKey, normalizeOpenAIBaseURL(baseURL), timeout), chatAudio: true}, nil
	case ProviderGroq:
		if baseURL == "" {
			baseURL = groqBaseURL
		}
		return &compatProvider{typ: t, client: newOpenAIClient(apiKey, normalizeOpenAIBaseURL(baseURL), timeout)}, nil
	}
	return nil, &ConfigError{Provider: t, Reason: "unsupported provider"}
}

func newOpenAIClient(apiKey, baseURL string, timeout time.Duration) openaiclient.Client {
	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(apiKey),
		openaioption.WithMaxRetries(0),
	}
	if timeout > 0 {
		opts = append(opts, openaioption.WithRequestTimeout(timeout))
	}
	if baseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(baseURL))
	}
	return openaiclient.NewClient(opts...)
}

// openAIProvider generates text through jetify and transcribes through the
// OpenAI audio endpoint.
type openAIProvider struct {
	client openaiclient.Client
}

func (p *openAIProvider) Type() ProviderType { return ProviderOpenAI }

func (p *openAIProvider) GenerateContent(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	lm := jetopenai.NewLanguageModel(model, jetopenai.WithClient(p.client))
	return generateWithJetify(ctx, lm, prompt, opts)
}

func (p *openAIProvider) TranscribeAudio(ctx context.Context, model string, audio []byte, mimeType, sourceLanguage string) (string, error) {
	return transcribe(ctx, p.client, model, audio, mimeType, sourceLanguage)
}

type anthropicProvider struct {
	client anthropicclient.Client
}

func (p *anthropicProvider) Type() ProviderType { return ProviderAnthropic }

func (p *anthropicProvider) GenerateContent(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	lm := jetanthropic.NewLanguageModel(model, jetanthropic.WithClient(p.client))
	return generateWithJetify(ctx, lm, prompt, opts)
}

func (p *anthropicProvider) TranscribeAudio(context.Context, string, []byte, string, string) (string, error) {
	return "", &ConfigError{Provider: ProviderAnthropic, Reason: "audio transcription is not supported, choose another ai.audio.provider"}
}

// compatProvider talks to OpenAI-compatible gateways. OpenRouter has no
// transcription endpoint, so audio goes through chat with an input_audio part.
type compatProvider struct {
	typ       ProviderType
	client    openaiclient.Client
	chatAudio bool
}

func (p *compatProvider) Type() ProviderType { return p.typ }

func (p *compatProvider) GenerateContent(ctx context.Context, model, prompt string, opts GenerateOptions) (string, error) {
	messages := make([]openaiclient.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(opts.SystemPrompt) != "" {
		messages = append(messages, openaiclient.SystemMessage(opts.SystemPrompt))
	}
	messages = append(messages, openaiclient.UserMessage(prompt))
	return p.chat(ctx, model, messages, opts.MaxTokens)
}

func (p *compatProvider) TranscribeAudio(ctx context.Context, model string, audio []byte, mimeType, sourceLanguage string) (string, error) {
	if !p.chatAudio {
		return transcribe(ctx, p.client, model, audio, mimeType, sourceLanguage)
	}
	instruction := "Transcribe this audio verbatim. Reply with the transcript only."
	if sourceLanguage != "" {
		instruction = fmt.Sprintf("Transcribe this %s audio verbatim. Reply with the transcript only.", sourceLanguage)
	}
	parts := []openaiclient.ChatCompletionContentPartUnionParam{
		openaiclient.TextContentPart(instruction),
		openaiclient.InputAudioContentPart(openaiclient.ChatCompletionContentPartInputAudioInputAudioParam{
			Data:   base64.StdEncoding.EncodeToString(audio),
			Format: audioFormat(mimeType),
		}),
	}
	text, err := p.chat(ctx, model, []openaiclient.ChatCompletionMessageParamUnion{openaiclient.UserMessage(parts)}, 0)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (p *compatProvider) chat(ctx context.Context, model string, messages []openaiclient.ChatCompletionMessageParamUnion, maxTokens int) (string, error) {
	params := openaiclient.ChatCompletionNewParams{
		Model:    openaiclient.ChatModel(model),
		Messages: messages,
	}
	if maxTokens > 0 {
		params.MaxTokens = openaiclient.Int(int64(maxTokens))
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func transcribe(ctx context.Context, client openaiclient.Client, model string, audio []byte, mimeType, sourceLanguage string) (string, error) {
	params := openaiclient.AudioTranscriptionNewParams{
		File:  openaiclient.File(bytes.NewReader(audio), "audio."+audioFormat(mimeType), mimeType),
		Model: openaiclient.AudioModel(model),
	}
	if lang := languageHint(sourceLanguage); lang != "" {
		params.Language = openaiclient.String(lang)
	}
	resp, err := client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

func generateWithJetify(ctx context.Context, model jetapi.LanguageModel, prompt string, opts GenerateOptions) (string, error) {
	resp, err := jetai.GenerateText(
		ctx,
		buildPromptMessages(opts.SystemPrompt, prompt),
		jetai.WithModel(model),
		jetai.WithMaxOutputTokens(opts.MaxTokens),
	)
	if err != nil {
		return "", err
	}
	return extractText(resp)
}

func buildPromptMessages(systemPrompt, prompt string) []jetapi.Message {
	messages := make([]jetapi.Message, 0, 2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, &jetapi.SystemMessage{Content: systemPrompt})
	}
	messages = append(messages, &jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)})
	return messages
}

func extractText(resp *jetapi.Response) (string, error) {
	if resp == nil {
		return "", errEmptyResponse
	}
	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

// audioFormat maps a MIME type to the short format name vendors expect.
func audioFormat(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	switch mt {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "m4a"
	case "audio/ogg":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/flac":
		return "flac"
	}
	return "wav"
}

// languageHint reduces "en-US" to the ISO-639-1 code transcription accepts.
func languageHint(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if len(lang) != 2 {
		return ""
	}
	return lang
}

func normalizeOpenAIBaseURL(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return ""
	}
	parsed, err := neturl.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return strings.TrimRight(base, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	if !strings.HasSuffix(path, "/v1") {
		if path == "" {
			path = "/v1"
		} else {
			path += "/v1"
		}
	}
	parsed.Path = path
	return strings.TrimRight(parsed.String(), "/")
}
