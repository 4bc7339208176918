package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/prompts"
	"github.com/jackzampolin/talespin/internal/svcctx"
)

// PromptsListResponse contains all prompts with overrides applied.
type PromptsListResponse struct {
	Prompts []prompts.ResolvedPrompt `json:"prompts"`
}

// PromptResponse is a resolved prompt plus its embedded default.
type PromptResponse struct {
	prompts.ResolvedPrompt
	DefaultText string `json:"default_text"`
}

// SetPromptRequest is the request body for overriding a prompt.
type SetPromptRequest struct {
	Text string `json:"text"`
	Note string `json:"note,omitempty"`
}

// ListPromptsEndpoint handles GET /api/prompts.
type ListPromptsEndpoint struct{}

func (e *ListPromptsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts", e.handler
}

func (e *ListPromptsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List all prompts
//	@Description	Get all registered prompts with stored overrides applied
//	@Tags			prompts
//	@Produce		json
//	@Success		200	{object}	PromptsListResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/prompts [get]
func (e *ListPromptsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resolver := svcctx.PromptResolverFrom(r.Context())
	if resolver == nil {
		writeError(w, http.StatusInternalServerError, "prompt resolver not available")
		return
	}
	writeJSON(w, http.StatusOK, PromptsListResponse{Prompts: resolver.List(r.Context())})
}

func (e *ListPromptsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PromptsListResponse
			if err := client.Get(cmd.Context(), "/api/prompts", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetPromptEndpoint handles GET /api/prompts/{key}.
type GetPromptEndpoint struct{}

func (e *GetPromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/prompts/{key}", e.handler
}

func (e *GetPromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a prompt
//	@Description	Get a specific prompt by key, with any override applied
//	@Tags			prompts
//	@Produce		json
//	@Param			key	path		string	true	"Prompt key (e.g., story.chapter)"
//	@Success		200	{object}	PromptResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/prompts/{key} [get]
func (e *GetPromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resolver := svcctx.PromptResolverFrom(r.Context())
	if resolver == nil {
		writeError(w, http.StatusInternalServerError, "prompt resolver not available")
		return
	}

	key := r.PathValue("key")
	embedded, ok := resolver.GetEmbedded(key)
	if !ok {
		writeError(w, http.StatusNotFound, "prompt not found: "+key)
		return
	}
	resolved, err := resolver.Resolve(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, PromptResponse{ResolvedPrompt: *resolved, DefaultText: embedded.Text})
}

func (e *GetPromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a prompt by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PromptResponse
			if err := client.Get(cmd.Context(), "/api/prompts/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// SetPromptEndpoint handles PUT /api/prompts/{key}.
type SetPromptEndpoint struct{}

func (e *SetPromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/prompts/{key}", e.handler
}

func (e *SetPromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Override a prompt
//	@Description	Store a replacement for an embedded prompt. The text must parse as a Go template.
//	@Tags			prompts
//	@Accept			json
//	@Produce		json
//	@Param			key		path		string				true	"Prompt key"
//	@Param			request	body		SetPromptRequest	true	"Override text"
//	@Success		200		{object}	prompts.ResolvedPrompt
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/prompts/{key} [put]
func (e *SetPromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resolver := svcctx.PromptResolverFrom(r.Context())
	if resolver == nil {
		writeError(w, http.StatusInternalServerError, "prompt resolver not available")
		return
	}

	var req SetPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	key := r.PathValue("key")
	if err := resolver.SetOverride(r.Context(), key, req.Text, req.Note); err != nil {
		writePromptError(w, err)
		return
	}
	resolved, err := resolver.Resolve(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (e *SetPromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		text     string
		textFile string
		note     string
	)
	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Override a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return err
				}
				text = string(data)
			}
			client := api.NewClient(getServerURL())
			var resp prompts.ResolvedPrompt
			if err := client.Put(cmd.Context(), "/api/prompts/"+url.PathEscape(args[0]), SetPromptRequest{Text: text, Note: note}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Override text")
	cmd.Flags().StringVar(&textFile, "text-file", "", "Read override text from a file")
	cmd.Flags().StringVar(&note, "note", "", "Note describing the change")
	return cmd
}

// ClearPromptEndpoint handles DELETE /api/prompts/{key}.
type ClearPromptEndpoint struct{}

func (e *ClearPromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/prompts/{key}", e.handler
}

func (e *ClearPromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Clear a prompt override
//	@Description	Remove a stored override, restoring the embedded default
//	@Tags			prompts
//	@Produce		json
//	@Param			key	path		string	true	"Prompt key"
//	@Success		200	{object}	prompts.ResolvedPrompt
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/prompts/{key} [delete]
func (e *ClearPromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	resolver := svcctx.PromptResolverFrom(r.Context())
	if resolver == nil {
		writeError(w, http.StatusInternalServerError, "prompt resolver not available")
		return
	}

	key := r.PathValue("key")
	if err := resolver.ClearOverride(r.Context(), key); err != nil {
		writePromptError(w, err)
		return
	}
	resolved, err := resolver.Resolve(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (e *ClearPromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <key>",
		Short: "Clear a prompt override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/api/prompts/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			var resp PromptResponse
			if err := client.Get(cmd.Context(), "/api/prompts/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

func writePromptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, prompts.ErrUnknownPrompt):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, prompts.ErrInvalidTemplate):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
