package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/assets"
	"github.com/jackzampolin/talespin/internal/config"
	"github.com/jackzampolin/talespin/internal/home"
	"github.com/jackzampolin/talespin/internal/prompts"
	"github.com/jackzampolin/talespin/internal/prompts/chapter"
	"github.com/jackzampolin/talespin/internal/prompts/imagery"
	"github.com/jackzampolin/talespin/internal/prompts/narration"
	"github.com/jackzampolin/talespin/internal/providers"
	"github.com/jackzampolin/talespin/internal/server/endpoints"
	"github.com/jackzampolin/talespin/internal/storage"
	"github.com/jackzampolin/talespin/internal/svcctx"
	"github.com/jackzampolin/talespin/internal/templates"
	"github.com/jackzampolin/talespin/internal/tts"
)

// Server is the main Talespin HTTP server.
// It opens the story store, asset sink, and speech queue on start and
// closes them on shutdown.
type Server struct {
	httpServer *http.Server
	registry   *providers.Registry
	templates  *templates.Registry
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	store    storage.Store
	sink     assets.Sink
	resolver *prompts.Resolver
	ttsQueue *tts.Queue

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu          sync.RWMutex
	running     bool
	initialized bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the talespin home directory (default: ~/.talespin)
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support.
	// When nil, config.DefaultConfig() is used.
	ConfigManager *config.Manager
	// Registry overrides the providers built from config.
	Registry *providers.Registry
	// SwaggerSpecPath is the path to swagger.json
	SwaggerSpecPath string
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}

	tmpls, err := templates.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load story templates: %w", err)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = providers.NewRegistry()
		registry.SetLogger(cfg.Logger)

		// If config manager provided, set up providers and hot reload
		if cfg.ConfigManager != nil {
			registry.Reload(cfg.ConfigManager.Get().ToProviderRegistryConfig())

			cfg.ConfigManager.OnChange(func(c *config.Config) {
				registry.Reload(c.ToProviderRegistryConfig())
				cfg.Logger.Info("provider registry reloaded from config")
			})
		} else {
			registry.Reload(config.DefaultConfig().ToProviderRegistryConfig())
		}
	}

	s := &Server{
		registry:  registry,
		templates: tmpls,
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{SwaggerSpecPath: cfg.SwaggerSpecPath}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		// Generation, narration, and illustration stream for minutes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// config returns the live configuration.
func (s *Server) config() *config.Config {
	if s.configMgr != nil {
		return s.configMgr.Get()
	}
	return config.DefaultConfig()
}

// Init opens the story store, asset sink, prompt resolver, and speech queue.
// Start calls it; tests call it directly to serve Handler without listening.
func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	cfg := s.config()
	if err := s.home.EnsureExists(); err != nil {
		return err
	}

	s.logger.Info("opening story store", "driver", cfg.Storage.Driver)
	store, err := storage.Open(ctx, storage.Config{
		Driver:          cfg.Storage.Driver,
		Dir:             s.home.DataPath(),
		DSN:             config.ResolveEnvVars(cfg.Storage.DSN),
		DefaultLanguage: cfg.Language,
		Logger:          s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open story store: %w", err)
	}

	sink, err := s.openSink(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	resolver := prompts.NewResolver(store, s.logger)
	chapter.RegisterPrompts(resolver)
	imagery.RegisterPrompts(resolver)
	narration.RegisterPrompts(resolver)

	queue := tts.NewQueue(registrySynth{registry: s.registry},
		tts.WithQuota(cfg.TTS.Quota),
		tts.WithWindow(time.Duration(cfg.TTS.WindowSeconds)*time.Second),
		tts.WithQueueDelay(time.Duration(cfg.TTS.QueueDelaySeconds)*time.Second),
		tts.WithLogger(s.logger),
	)

	s.store = store
	s.sink = sink
	s.resolver = resolver
	s.ttsQueue = queue
	s.services = &svcctx.Services{
		Registry:       s.registry,
		Templates:      s.templates,
		PromptResolver: resolver,
		Store:          store,
		Assets:         sink,
		TTSQueue:       queue,
		ConfigManager:  s.configMgr,
		Logger:         s.logger,
		Home:           s.home,
	}
	s.initialized = true
	return nil
}

func (s *Server) openSink(ctx context.Context, cfg *config.Config) (assets.Sink, error) {
	switch cfg.Assets.Driver {
	case "", "local":
		sink, err := assets.NewLocalSink(s.home.AssetsPath(), "/api/assets/")
		if err != nil {
			return nil, err
		}
		return sink, nil
	case "minio":
		s.logger.Info("connecting to object storage", "endpoint", cfg.Assets.Endpoint, "bucket", cfg.Assets.Bucket)
		sink, err := assets.NewMinioSink(ctx, assets.MinioConfig{
			Endpoint:  cfg.Assets.Endpoint,
			AccessKey: config.ResolveEnvVars(cfg.Assets.AccessKey),
			SecretKey: config.ResolveEnvVars(cfg.Assets.SecretKey),
			Bucket:    cfg.Assets.Bucket,
			UseSSL:    cfg.Assets.UseSSL,
		}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open object storage: %w", err)
		}
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown assets driver: %s", cfg.Assets.Driver)
	}
}

// Start initializes services and serves HTTP.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.Init(ctx); err != nil {
		s.setNotRunning()
		return err
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops the HTTP server, then the speech queue and story store.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.Close()
	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

// Close releases the services opened by Init.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return
	}
	s.ttsQueue.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Error("story store close error", "error", err)
	}
	s.initialized = false
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Store returns the story store.
// Returns nil if the server hasn't been initialized yet.
func (s *Server) Store() storage.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the HTTP handler with services attached.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s.mu.RLock()
		services := s.services
		s.mu.RUnlock()
		if services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the story store or default text
// provider aren't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svcctx.StoreFrom(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		if _, err := s.registry.DefaultLLM(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"no text provider available"}`))
			return
		}
		next(w, r)
	}
}

// registrySynth sends speech requests to the registry's current default
// provider, so a config reload takes effect for queued chunks.
type registrySynth struct {
	registry *providers.Registry
}

func (s registrySynth) Generate(ctx context.Context, req *providers.TTSRequest) (*providers.TTSResult, error) {
	p, err := s.registry.DefaultTTS()
	if err != nil {
		return nil, err
	}
	return p.Generate(ctx, req)
}
