package ai

import (
	"sync"

	"github.com/vocalingo/core/internal/config"
	"github.com/vocalingo/core/internal/models"
)

// Factory builds a provider instance; tests inject fakes through it.
type Factory func(t ProviderType, cfg config.AIConfig) (Provider, error)

// DefaultFactory builds real vendor clients from the startup config.
func DefaultFactory(t ProviderType, cfg config.AIConfig) (Provider, error) {
	return newProvider(t, cfg.Provider(string(t)), cfg.Timeout)
}

type registryKey struct {
	provider ProviderType
	scope    string
}

// Registry caches provider instances per (provider, user). Its lifetime is
// owned by whoever constructs it, usually the application container.
type Registry struct {
	mu      sync.Mutex
	entries map[registryKey]Provider
	cfg     config.AIConfig
	factory Factory
}

type RegistryOption func(*Registry)

func WithFactory(f Factory) RegistryOption {
	return func(r *Registry) {
		if f != nil {
			r.factory = f
		}
	}
}

func NewRegistry(cfg config.AIConfig, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[registryKey]Provider),
		cfg:     cfg,
		factory: DefaultFactory,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the cached instance for (t, userID), constructing it on first
// use. An empty userID resolves to the system scope. Construction errors are
// not cached.
func (r *Registry) Get(t ProviderType, userID string) (Provider, error) {
	key := registryKey{provider: t, scope: scopeOf(userID)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.entries[key]; ok {
		return p, nil
	}
	p, err := r.factory(t, r.cfg)
	if err != nil {
		return nil, err
	}
	r.entries[key] = p
	return p, nil
}

// Len reports how many instances are cached.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset drops every cached instance, e.g. after credentials rotate.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.entries = make(map[registryKey]Provider)
	r.mu.Unlock()
}

func scopeOf(userID string) string {
	if userID == "" {
		return models.SystemScope
	}
	return userID
}
