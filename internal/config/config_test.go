package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	gemini, ok := cfg.GetProvider("gemini")
	if !ok {
		t.Fatal("expected default gemini provider")
	}
	if gemini.APIKey != "${GEMINI_API_KEY}" {
		t.Errorf("expected gemini API key placeholder, got %s", gemini.APIKey)
	}
	if cfg.TTS.Quota != 10 || cfg.TTS.WindowSeconds != 60 || cfg.TTS.QueueDelaySeconds != 115 {
		t.Errorf("unexpected tts defaults: %+v", cfg.TTS)
	}
	if cfg.TTS.ChunkWords != 1500 {
		t.Errorf("expected 1500 chunk words, got %d", cfg.TTS.ChunkWords)
	}
	if cfg.Images.SegmentWords != 1000 || cfg.Images.DelaySeconds != 5 {
		t.Errorf("unexpected image defaults: %+v", cfg.Images)
	}
	if cfg.Story.WordCount != 8000 || cfg.Story.RetryAttempts != 3 {
		t.Errorf("unexpected story defaults: %+v", cfg.Story)
	}
}

func TestEnabledProviders(t *testing.T) {
	enabled := DefaultConfig().EnabledProviders()
	if _, ok := enabled["gemini"]; !ok {
		t.Error("expected gemini to be enabled")
	}
	if _, ok := enabled["openai"]; ok {
		t.Error("expected openai to be disabled by default")
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("missing api key is fatal", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers["gemini"] = ProviderCfg{Type: "openai", APIKey: "${DEFINITELY_NOT_SET_12345}", Enabled: true}

		err := cfg.Validate()
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Fatalf("expected ErrMissingAPIKey, got %v", err)
		}
	})

	t.Run("resolved key passes", func(t *testing.T) {
		t.Setenv("TEST_GEMINI_KEY", "abc")
		cfg := DefaultConfig()
		cfg.Providers["gemini"] = ProviderCfg{Type: "openai", APIKey: "${TEST_GEMINI_KEY}", Enabled: true}

		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
	})

	t.Run("unknown default provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Defaults.Provider = "nope"
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for unknown provider")
		}
	})

	t.Run("mysql requires dsn", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers["gemini"] = ProviderCfg{Type: "openai", APIKey: "literal", Enabled: true}
		cfg.Storage = StorageCfg{Driver: "mysql", DSN: "${DEFINITELY_NOT_SET_12345}"}
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for empty dsn")
		}
	})

	t.Run("unknown assets driver", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Providers["gemini"] = ProviderCfg{Type: "openai", APIKey: "literal", Enabled: true}
		cfg.Assets.Driver = "s3"
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error for unknown assets driver")
		}
	})
}

func TestConfig_ToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "gm-key-123")

	cfg := &Config{
		Providers: map[string]ProviderCfg{
			"gemini": {
				Type:      "openai",
				APIKey:    "${TEST_GEMINI_KEY}",
				TextModel: "gemini-2.5-flash",
				Enabled:   true,
			},
			"literal": {
				Type:   "openai",
				APIKey: "direct-key",
			},
		},
	}

	rc := cfg.ToProviderRegistryConfig()
	if got := rc.Providers["gemini"].APIKey; got != "gm-key-123" {
		t.Errorf("expected gm-key-123, got %s", got)
	}
	if got := rc.Providers["literal"].APIKey; got != "direct-key" {
		t.Errorf("expected direct-key, got %s", got)
	}
	if got := rc.Providers["gemini"].TextModel; got != "gemini-2.5-flash" {
		t.Errorf("expected text model to carry over, got %s", got)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
language: en
tts:
  quota: 5
  window_seconds: 30
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Language != "en" {
			t.Errorf("expected en, got %s", cfg.Language)
		}
		if cfg.TTS.Quota != 5 || cfg.TTS.WindowSeconds != 30 {
			t.Errorf("unexpected tts config: %+v", cfg.TTS)
		}
		if _, ok := cfg.Providers["gemini"]; !ok {
			t.Error("expected default providers when file omits them")
		}
	})

	t.Run("invalid file is an error", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")
		if err := os.WriteFile(configFile, []byte("language: [unclosed"), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		if _, err := NewManager(configFile); err == nil {
			t.Fatal("expected error for malformed yaml")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("language: vi\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("language: vi\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Language
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("language: vi\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Language)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("language: en\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Language; got != "en" {
		t.Errorf("config not updated: expected en, got %s", got)
	}
	if v := lastValue.Load(); v != "en" {
		t.Errorf("callback received wrong value: expected en, got %v", v)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# Talespin configuration") {
		t.Error("expected header comment")
	}
	if !strings.Contains(content, "${GEMINI_API_KEY}") {
		t.Error("expected env placeholder to be written verbatim")
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("written default should load: %v", err)
	}
	if mgr.Get().TTS.QueueDelaySeconds != 115 {
		t.Errorf("expected round-tripped queue delay 115, got %d", mgr.Get().TTS.QueueDelaySeconds)
	}
}
