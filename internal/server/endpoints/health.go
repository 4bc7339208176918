package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/storage"
	"github.com/jackzampolin/talespin/internal/svcctx"
	"github.com/jackzampolin/talespin/internal/tts"
)

// HealthResponse is the response for health check endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
	LLM     string `json:"llm,omitempty"`
}

// HealthEndpoint handles GET /health.
type HealthEndpoint struct{}

func (e *HealthEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/health", e.handler
}

func (e *HealthEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Health check
//	@Description	Returns ok while the HTTP server is responding
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Router			/health [get]
func (e *HealthEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (e *HealthEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/health", &resp); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", resp.Status)
			return nil
		},
	}
}

// ReadyEndpoint handles GET /ready.
type ReadyEndpoint struct{}

func (e *ReadyEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/ready", e.handler
}

func (e *ReadyEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Readiness check
//	@Description	Returns ok when the story store and default text provider are available
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/ready [get]
func (e *ReadyEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Storage: "ok", LLM: "ok"}

	if svcctx.StoreFrom(r.Context()) == nil {
		resp.Status = "degraded"
		resp.Storage = "not_initialized"
	}

	registry := svcctx.RegistryFrom(r.Context())
	if registry == nil {
		resp.Status = "degraded"
		resp.LLM = "not_initialized"
	} else if _, err := registry.DefaultLLM(); err != nil {
		resp.Status = "degraded"
		resp.LLM = "unavailable"
	}

	if resp.Status != "ok" {
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ReadyEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ready",
		Short: "Check server readiness (storage and text provider)",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp HealthResponse
			if err := client.Get(cmd.Context(), "/ready", &resp); err != nil {
				return err
			}
			fmt.Printf("Status:  %s\n", resp.Status)
			fmt.Printf("Storage: %s\n", resp.Storage)
			fmt.Printf("LLM:     %s\n", resp.LLM)
			return nil
		},
	}
}

// StatusResponse is the detailed status response.
type StatusResponse struct {
	Server    string          `json:"server"`
	Providers ProvidersStatus `json:"providers"`
	Storage   string          `json:"storage"`
	Assets    string          `json:"assets"`
	Language  string          `json:"language"`
	TTSQueue  *tts.Status     `json:"tts_queue,omitempty"`
}

// ProvidersStatus shows registered providers per capability.
type ProvidersStatus struct {
	Default string   `json:"default"`
	LLM     []string `json:"llm"`
	TTS     []string `json:"tts"`
	Image   []string `json:"image"`
}

// StatusEndpoint handles GET /status.
type StatusEndpoint struct{}

func (e *StatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/status", e.handler
}

func (e *StatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Server status
//	@Description	Providers, storage driver, asset sink, and speech queue status
//	@Tags			health
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Router			/status [get]
func (e *StatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := StatusResponse{
		Server:  "running",
		Storage: "not_initialized",
		Assets:  "not_initialized",
	}

	if registry := svcctx.RegistryFrom(ctx); registry != nil {
		resp.Providers = ProvidersStatus{
			Default: registry.DefaultName(),
			LLM:     registry.ListLLM(),
			TTS:     registry.ListTTS(),
			Image:   registry.ListImage(),
		}
	}
	if store := svcctx.StoreFrom(ctx); store != nil {
		resp.Storage = store.Driver()
		resp.Language = store.Language(ctx)
	}
	if sink := svcctx.AssetsFrom(ctx); sink != nil {
		resp.Assets = sink.Name()
	}
	if q := svcctx.TTSQueueFrom(ctx); q != nil {
		status := q.Status()
		resp.TTSQueue = &status
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *StatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Get detailed server status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StatusResponse
			if err := client.Get(cmd.Context(), "/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// storeOrUnavailable returns the story store, or answers 503 and returns nil.
func storeOrUnavailable(w http.ResponseWriter, r *http.Request) storage.Store {
	store := svcctx.StoreFrom(r.Context())
	if store == nil {
		writeError(w, http.StatusServiceUnavailable, "story store not available")
	}
	return store
}

// findStory loads the story with id, answering 503 or 404 and returning nil
// when it cannot.
func findStory(w http.ResponseWriter, r *http.Request, id string) *storage.Story {
	store := storeOrUnavailable(w, r)
	if store == nil {
		return nil
	}
	s := store.Get(r.Context(), id)
	if s == nil {
		writeError(w, http.StatusNotFound, "story not found")
	}
	return s
}
