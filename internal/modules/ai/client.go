package ai

import (
	"context"
	"errors"
	"time"

	"github.com/vocalingo/core/internal/config"
	"github.com/vocalingo/core/internal/modules/settings"
	"github.com/vocalingo/core/internal/pkg/metrics"
	"go.uber.org/zap"
)

// Client is the facade the rest of the application talks to. Provider and
// model are re-resolved on every call so settings changes apply at once.
type Client struct {
	registry *Registry
	settings settings.Reader
	cfg      config.AIConfig
	logger   *zap.Logger
}

func NewClient(registry *Registry, reader settings.Reader, cfg config.AIConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		registry: registry,
		settings: reader,
		cfg:      cfg,
		logger:   logger.Named("AIClient"),
	}
}

func parseProvider(raw string) (ProviderType, error) {
	s, err := settings.String(raw)
	if err != nil {
		return "", err
	}
	t, err := ParseProviderType(s)
	if err != nil {
		return "", settings.ErrInvalidValue
	}
	return t, nil
}

func (c *Client) defaultProvider() (ProviderType, error) {
	return ParseProviderType(c.cfg.DefaultProvider)
}

func (c *Client) textProvider(ctx context.Context, userID string) (ProviderType, error) {
	res, err := settings.Lookup(ctx, c.settings, userID, settings.KeyAIProvider, parseProvider)
	if err != nil {
		return "", err
	}
	if res.State == settings.Found {
		return res.Value, nil
	}
	if res.State == settings.Invalid {
		c.logger.Warn("ignoring invalid ai.provider setting", zap.String("user", userID))
	}
	return c.defaultProvider()
}

func (c *Client) audioProvider(ctx context.Context, userID string) (ProviderType, error) {
	res, err := settings.Lookup(ctx, c.settings, userID, settings.KeyAIAudioProvider, parseProvider)
	if err != nil {
		return "", err
	}
	if res.State == settings.Found {
		return res.Value, nil
	}
	return c.textProvider(ctx, userID)
}

func (c *Client) model(ctx context.Context, userID, key string, t ProviderType, capability Capability) (string, []string, error) {
	list := ListModels(c.cfg, t, capability)
	res, err := settings.Lookup(ctx, c.settings, userID, key, settings.String)
	if err != nil {
		return "", nil, err
	}
	if res.State == settings.Found {
		return res.Value, list, nil
	}
	if len(list) == 0 {
		return "", nil, &ConfigError{Provider: t, Reason: "no " + string(capability) + " model configured"}
	}
	return list[0], list, nil
}

// Resolve returns the current selection for userID without touching the network.
func (c *Client) Resolve(ctx context.Context, userID string) (Selection, error) {
	var sel Selection
	var err error
	if sel.Provider, err = c.textProvider(ctx, userID); err != nil {
		return sel, err
	}
	if sel.Model, _, err = c.model(ctx, userID, settings.KeyAIModel, sel.Provider, CapabilityText); err != nil {
		return sel, err
	}
	if sel.AudioProvider, err = c.audioProvider(ctx, userID); err != nil {
		return sel, err
	}
	// An audio provider without audio models is reported by Check; store
	// failures are not.
	if sel.AudioModel, _, err = c.model(ctx, userID, settings.KeyAIAudioModel, sel.AudioProvider, CapabilityAudio); err != nil {
		var ce *ConfigError
		if !errors.As(err, &ce) {
			return sel, err
		}
	}
	return sel, nil
}

func (c *Client) ModelName(ctx context.Context, userID string) (string, error) {
	t, err := c.textProvider(ctx, userID)
	if err != nil {
		return "", err
	}
	m, _, err := c.model(ctx, userID, settings.KeyAIModel, t, CapabilityText)
	return m, err
}

func (c *Client) AudioModelName(ctx context.Context, userID string) (string, error) {
	t, err := c.audioProvider(ctx, userID)
	if err != nil {
		return "", err
	}
	m, _, err := c.model(ctx, userID, settings.KeyAIAudioModel, t, CapabilityAudio)
	return m, err
}

// Check verifies that both capabilities resolve to a constructible provider
// able to serve them. It performs no network call.
func (c *Client) Check(ctx context.Context, userID string) error {
	sel, err := c.Resolve(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := c.registry.Get(sel.Provider, userID); err != nil {
		return err
	}
	if sel.AudioProvider == ProviderAnthropic {
		return &ConfigError{Provider: ProviderAnthropic, Reason: "audio transcription is not supported, choose another ai.audio.provider"}
	}
	if sel.AudioModel == "" {
		return &ConfigError{Provider: sel.AudioProvider, Reason: "no audio model configured"}
	}
	_, err = c.registry.Get(sel.AudioProvider, userID)
	return err
}

// GenerateContent runs prompt against the user's text provider, walking the
// model fallback list on failures a different model might avoid.
func (c *Client) GenerateContent(ctx context.Context, prompt, userID string, opts ...GenerateOption) (string, error) {
	t, err := c.textProvider(ctx, userID)
	if err != nil {
		return "", err
	}
	configured, list, err := c.model(ctx, userID, settings.KeyAIModel, t, CapabilityText)
	if err != nil {
		return "", err
	}
	provider, err := c.registry.Get(t, userID)
	if err != nil {
		return "", err
	}
	o := buildOptions(opts)
	return c.failover(ctx, t, CapabilityText, candidates(configured, list), func(model string) (string, error) {
		return provider.GenerateContent(ctx, model, prompt, o)
	})
}

// TranscribeAudio transcribes audio with the user's audio provider.
// sourceLanguage is passed through as a hint.
func (c *Client) TranscribeAudio(ctx context.Context, audio []byte, mimeType, sourceLanguage, userID string) (string, error) {
	t, err := c.audioProvider(ctx, userID)
	if err != nil {
		return "", err
	}
	configured, list, err := c.model(ctx, userID, settings.KeyAIAudioModel, t, CapabilityAudio)
	if err != nil {
		return "", err
	}
	provider, err := c.registry.Get(t, userID)
	if err != nil {
		return "", err
	}
	return c.failover(ctx, t, CapabilityAudio, candidates(configured, list), func(model string) (string, error) {
		return provider.TranscribeAudio(ctx, model, audio, mimeType, sourceLanguage)
	})
}

func (c *Client) failover(ctx context.Context, t ProviderType, capability Capability, models []string, call func(model string) (string, error)) (string, error) {
	var lastErr error
	for i, model := range models {
		start := time.Now()
		out, err := call(model)
		metrics.AIRequestDuration.WithLabelValues(string(t), string(capability)).Observe(time.Since(start).Seconds())
		if err == nil {
			metrics.AIRequests.WithLabelValues(string(t), string(capability), "ok").Inc()
			return out, nil
		}

		err = classify(t, model, err)
		lastErr = err
		kind, classified := KindOf(err)
		metrics.AIRequests.WithLabelValues(string(t), string(capability), outcomeLabel(err, kind, classified)).Inc()

		if !classified || !kind.failover() || ctx.Err() != nil {
			return "", err
		}
		if i < len(models)-1 {
			c.logger.Warn("AI model failed, trying next fallback",
				zap.String("provider", string(t)),
				zap.String("model", model),
				zap.String("next", models[i+1]),
				zap.String("kind", kind.String()),
				zap.Error(err),
			)
		}
	}
	if lastErr == nil {
		lastErr = &ConfigError{Provider: t, Reason: "no model candidates"}
	}
	return "", lastErr
}

func outcomeLabel(err error, kind Kind, classified bool) string {
	switch {
	case classified:
		return kind.String()
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	}
	return "canceled"
}
