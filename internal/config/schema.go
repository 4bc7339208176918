package config

// Config holds talespin configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Providers map[string]ProviderCfg `mapstructure:"providers" yaml:"providers"`
	Defaults  DefaultsCfg            `mapstructure:"defaults" yaml:"defaults"`
	Story     StoryCfg               `mapstructure:"story" yaml:"story"`
	TTS       TTSCfg                 `mapstructure:"tts" yaml:"tts"`
	Images    ImagesCfg              `mapstructure:"images" yaml:"images"`
	Storage   StorageCfg             `mapstructure:"storage" yaml:"storage"`
	Assets    AssetsCfg              `mapstructure:"assets" yaml:"assets"`
	Language  string                 `mapstructure:"language" yaml:"language"` // "vi" or "en"
}

// ProviderCfg configures an OpenAI-compatible generative API.
type ProviderCfg struct {
	Type        string `mapstructure:"type" yaml:"type"`         // "openai"
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"` // Empty uses api.openai.com
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`   // API key (supports ${ENV_VAR} syntax)
	TextModel   string `mapstructure:"text_model" yaml:"text_model"`
	SpeechModel string `mapstructure:"speech_model" yaml:"speech_model"`
	ImageModel  string `mapstructure:"image_model" yaml:"image_model"`
	MaxRetries  int    `mapstructure:"max_retries" yaml:"max_retries"` // SDK transport retries
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections.
type DefaultsCfg struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
}

// StoryCfg tunes chapter generation.
type StoryCfg struct {
	WordCount         int `mapstructure:"word_count" yaml:"word_count"`
	RetryAttempts     int `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" yaml:"retry_delay_seconds"`
}

// TTSCfg tunes the speech quota queue.
type TTSCfg struct {
	Quota             int    `mapstructure:"quota" yaml:"quota"`                   // Requests per window
	WindowSeconds     int    `mapstructure:"window_seconds" yaml:"window_seconds"` // Trailing window
	QueueDelaySeconds int    `mapstructure:"queue_delay_seconds" yaml:"queue_delay_seconds"`
	ChunkWords        int    `mapstructure:"chunk_words" yaml:"chunk_words"`
	Voice             string `mapstructure:"voice" yaml:"voice"`
}

// ImagesCfg tunes the illustration pipeline.
type ImagesCfg struct {
	SegmentWords int    `mapstructure:"segment_words" yaml:"segment_words"`
	DelaySeconds int    `mapstructure:"delay_seconds" yaml:"delay_seconds"` // Pause between segments
	Count        int    `mapstructure:"count" yaml:"count"`                 // Images per prompt
	Size         string `mapstructure:"size" yaml:"size"`
}

// StorageCfg selects where stories are persisted.
type StorageCfg struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "file" or "mysql"
	DSN    string `mapstructure:"dsn" yaml:"dsn"`       // MySQL DSN (supports ${ENV_VAR} syntax)
}

// AssetsCfg selects where generated audio and images are written.
type AssetsCfg struct {
	Driver    string `mapstructure:"driver" yaml:"driver"` // "local" or "minio"
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl" yaml:"use_ssl"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderCfg{
			"gemini": {
				Type:        "openai",
				BaseURL:     "https://generativelanguage.googleapis.com/v1beta/openai/",
				APIKey:      "${GEMINI_API_KEY}",
				TextModel:   "gemini-2.5-flash",
				SpeechModel: "gemini-2.5-flash-preview-tts",
				ImageModel:  "imagen-3.0-generate-002",
				MaxRetries:  2,
				Enabled:     true,
			},
			"openai": {
				Type:        "openai",
				APIKey:      "${OPENAI_API_KEY}",
				TextModel:   "gpt-4o-mini",
				SpeechModel: "gpt-4o-mini-tts",
				ImageModel:  "dall-e-3",
				MaxRetries:  2,
				Enabled:     false,
			},
		},
		Defaults: DefaultsCfg{
			Provider: "gemini",
		},
		Story: StoryCfg{
			WordCount:         8000,
			RetryAttempts:     3,
			RetryDelaySeconds: 1,
		},
		TTS: TTSCfg{
			Quota:             10,
			WindowSeconds:     60,
			QueueDelaySeconds: 115,
			ChunkWords:        1500,
			Voice:             "Kore",
		},
		Images: ImagesCfg{
			SegmentWords: 1000,
			DelaySeconds: 5,
			Count:        4,
			Size:         "1792x1024",
		},
		Storage: StorageCfg{
			Driver: "file",
			DSN:    "${TALESPIN_MYSQL_DSN}",
		},
		Assets: AssetsCfg{
			Driver:    "local",
			AccessKey: "${MINIO_ACCESS_KEY}",
			SecretKey: "${MINIO_SECRET_KEY}",
			Bucket:    "talespin",
		},
		Language: "vi",
	}
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.Providers[name]
	return cfg, ok
}

// EnabledProviders returns all enabled providers.
func (c *Config) EnabledProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.Providers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
