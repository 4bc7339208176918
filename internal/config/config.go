package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/talespin/internal/providers"
)

// ErrMissingAPIKey is returned by Validate when the default provider has no usable key.
var ErrMissingAPIKey = errors.New("missing API key")

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	mu        sync.RWMutex
	v         *viper.Viper
	config    *Config
	callbacks []func(*Config)
}

// NewManager creates a new config manager and loads initial config.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	defaults := DefaultConfig()
	v.SetDefault("providers", defaults.Providers)
	v.SetDefault("defaults", defaults.Defaults)
	v.SetDefault("story", defaults.Story)
	v.SetDefault("tts", defaults.TTS)
	v.SetDefault("images", defaults.Images)
	v.SetDefault("storage", defaults.Storage)
	v.SetDefault("assets", defaults.Assets)
	v.SetDefault("language", defaults.Language)

	// Environment variables with TALESPIN_ prefix
	v.SetEnvPrefix("TALESPIN")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.talespin")
	}

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		cm.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// Validate checks settings that the server cannot start without.
func (c *Config) Validate() error {
	name := c.Defaults.Provider
	p, ok := c.Providers[name]
	if !ok {
		return fmt.Errorf("default provider %q is not configured", name)
	}
	if !p.Enabled {
		return fmt.Errorf("default provider %q is disabled", name)
	}
	if ResolveEnvVars(p.APIKey) == "" {
		return fmt.Errorf("%w for provider %q (api_key: %q)", ErrMissingAPIKey, name, p.APIKey)
	}

	switch c.Storage.Driver {
	case "", "file":
	case "mysql":
		if ResolveEnvVars(c.Storage.DSN) == "" {
			return errors.New("storage driver mysql requires a dsn")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}

	switch c.Assets.Driver {
	case "", "local":
	case "minio":
		if c.Assets.Endpoint == "" || c.Assets.Bucket == "" {
			return errors.New("assets driver minio requires endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown assets driver: %s", c.Assets.Driver)
	}

	return nil
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		Default:   c.Defaults.Provider,
		Providers: make(map[string]providers.ProviderConfig),
	}

	for name, p := range c.Providers {
		cfg.Providers[name] = providers.ProviderConfig{
			Type:        p.Type,
			BaseURL:     p.BaseURL,
			APIKey:      ResolveEnvVars(p.APIKey),
			TextModel:   p.TextModel,
			SpeechModel: p.SpeechModel,
			ImageModel:  p.ImageModel,
			Voice:       c.TTS.Voice,
			MaxRetries:  p.MaxRetries,
			Enabled:     p.Enabled,
		}
	}

	return cfg
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Talespin configuration
# API keys use ${ENV_VAR} syntax to reference environment variables
# Set these in your shell or a .env file: export GEMINI_API_KEY=xxx

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
