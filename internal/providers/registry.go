package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds references to text, speech and image providers.
// It supports config-driven instantiation, hot-reload, and provides thread-safe access.
type Registry struct {
	mu             sync.RWMutex
	llmClients     map[string]LLMClient
	ttsProviders   map[string]TTSProvider
	imageProviders map[string]ImageProvider
	configs        map[string]ProviderConfig
	defaultName    string
	logger         *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llmClients:     make(map[string]LLMClient),
		ttsProviders:   make(map[string]TTSProvider),
		imageProviders: make(map[string]ImageProvider),
		configs:        make(map[string]ProviderConfig),
		logger:         slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// SetDefault selects the provider name used by the Default* accessors.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultName = name
}

// DefaultName returns the configured default provider name.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = client
	if r.logger != nil {
		r.logger.Info("registered LLM client", "name", name)
	}
}

// RegisterTTS registers a speech provider by name.
func (r *Registry) RegisterTTS(name string, provider TTSProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ttsProviders[name] = provider
	if r.logger != nil {
		r.logger.Info("registered TTS provider", "name", name)
	}
}

// RegisterImage registers an image provider by name.
func (r *Registry) RegisterImage(name string, provider ImageProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.imageProviders[name] = provider
	if r.logger != nil {
		r.logger.Info("registered image provider", "name", name)
	}
}

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return client, nil
}

// GetTTS returns a speech provider by name.
func (r *Registry) GetTTS(name string) (TTSProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.ttsProviders[name]
	if !ok {
		return nil, fmt.Errorf("TTS provider not found: %s", name)
	}
	return provider, nil
}

// GetImage returns an image provider by name.
func (r *Registry) GetImage(name string) (ImageProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.imageProviders[name]
	if !ok {
		return nil, fmt.Errorf("image provider not found: %s", name)
	}
	return provider, nil
}

// DefaultLLM returns the default LLM client.
func (r *Registry) DefaultLLM() (LLMClient, error) {
	return r.GetLLM(r.DefaultName())
}

// DefaultTTS returns the default speech provider.
func (r *Registry) DefaultTTS() (TTSProvider, error) {
	return r.GetTTS(r.DefaultName())
}

// DefaultImage returns the default image provider.
func (r *Registry) DefaultImage() (ImageProvider, error) {
	return r.GetImage(r.DefaultName())
}

// ListLLM returns all registered LLM client names, sorted.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.llmClients)
}

// ListTTS returns all registered speech provider names, sorted.
func (r *Registry) ListTTS() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.ttsProviders)
}

// ListImage returns all registered image provider names, sorted.
func (r *Registry) ListImage() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.imageProviders)
}

// HasLLM checks if an LLM client is registered.
func (r *Registry) HasLLM(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llmClients[name]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	// Default is the provider name the Default* accessors resolve to
	Default string

	// Providers maps provider names to their config
	Providers map[string]ProviderConfig
}

// ProviderConfig matches config.ProviderCfg with resolved API key.
type ProviderConfig struct {
	Type        string // "openai"
	BaseURL     string
	APIKey      string // Resolved API key
	TextModel   string
	SpeechModel string
	ImageModel  string
	Voice       string
	MaxRetries  int
	Enabled     bool
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with valid API keys will be registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured will be unregistered.
// Providers with changed settings will be re-registered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.defaultName = cfg.Default
	want := make(map[string]bool)

	for name, provCfg := range cfg.Providers {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		want[name] = true

		existing, hasExisting := r.configs[name]
		if hasExisting && existing == provCfg {
			continue
		}

		client := createClient(name, provCfg)
		if client == nil {
			if r.logger != nil {
				r.logger.Warn("unknown provider type", "name", name, "type", provCfg.Type)
			}
			continue
		}
		r.llmClients[name] = client
		r.ttsProviders[name] = client
		r.imageProviders[name] = client
		r.configs[name] = provCfg
		if r.logger != nil {
			if hasExisting {
				r.logger.Info("updated provider", "name", name, "type", provCfg.Type)
			} else {
				r.logger.Info("registered provider", "name", name, "type", provCfg.Type)
			}
		}
	}

	// Remove config-managed providers that are no longer configured
	for name := range r.configs {
		if !want[name] {
			delete(r.configs, name)
			delete(r.llmClients, name)
			delete(r.ttsProviders, name)
			delete(r.imageProviders, name)
			if r.logger != nil {
				r.logger.Info("unregistered provider", "name", name)
			}
		}
	}
}

// createClient creates a provider based on type.
func createClient(name string, cfg ProviderConfig) *OpenAIClient {
	switch cfg.Type {
	case "", OpenAIType:
		return NewOpenAIClient(OpenAIConfig{
			Name:        name,
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			TextModel:   cfg.TextModel,
			SpeechModel: cfg.SpeechModel,
			ImageModel:  cfg.ImageModel,
			Voice:       cfg.Voice,
			MaxRetries:  cfg.MaxRetries,
		})
	default:
		return nil
	}
}
