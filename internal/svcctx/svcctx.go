// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with endpoints.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/talespin/internal/assets"
	"github.com/jackzampolin/talespin/internal/config"
	"github.com/jackzampolin/talespin/internal/home"
	"github.com/jackzampolin/talespin/internal/prompts"
	"github.com/jackzampolin/talespin/internal/providers"
	"github.com/jackzampolin/talespin/internal/storage"
	"github.com/jackzampolin/talespin/internal/templates"
	"github.com/jackzampolin/talespin/internal/tts"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Registry       *providers.Registry
	Templates      *templates.Registry
	PromptResolver *prompts.Resolver
	Store          storage.Store
	Assets         assets.Sink
	TTSQueue       *tts.Queue
	ConfigManager  *config.Manager
	Logger         *slog.Logger
	Home           *home.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// TemplatesFrom extracts the template registry from context.
func TemplatesFrom(ctx context.Context) *templates.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Templates
	}
	return nil
}

// PromptResolverFrom extracts the prompt resolver from context.
func PromptResolverFrom(ctx context.Context) *prompts.Resolver {
	if s := ServicesFrom(ctx); s != nil {
		return s.PromptResolver
	}
	return nil
}

// StoreFrom extracts the story store from context.
func StoreFrom(ctx context.Context) storage.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Store
	}
	return nil
}

// AssetsFrom extracts the asset sink from context.
func AssetsFrom(ctx context.Context) assets.Sink {
	if s := ServicesFrom(ctx); s != nil {
		return s.Assets
	}
	return nil
}

// TTSQueueFrom extracts the speech queue from context.
func TTSQueueFrom(ctx context.Context) *tts.Queue {
	if s := ServicesFrom(ctx); s != nil {
		return s.TTSQueue
	}
	return nil
}

// ConfigFrom returns the current configuration, or the defaults when no
// config manager is attached.
func ConfigFrom(ctx context.Context) *config.Config {
	if s := ServicesFrom(ctx); s != nil && s.ConfigManager != nil {
		return s.ConfigManager.Get()
	}
	return config.DefaultConfig()
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}
