package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/svcctx"
)

// LanguageResponse carries the persisted UI language.
type LanguageResponse struct {
	Language  string   `json:"language"`
	Available []string `json:"available,omitempty"`
}

// SetLanguageRequest is the request body for changing the language.
type SetLanguageRequest struct {
	Language string `json:"language"`
}

// GetLanguageEndpoint handles GET /api/settings/language.
type GetLanguageEndpoint struct{}

func (e *GetLanguageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/settings/language", e.handler
}

func (e *GetLanguageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get the language
//	@Description	Get the persisted UI and story language
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	LanguageResponse
//	@Router			/api/settings/language [get]
func (e *GetLanguageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := storeOrUnavailable(w, r)
	if store == nil {
		return
	}
	resp := LanguageResponse{Language: store.Language(r.Context())}
	if reg := svcctx.TemplatesFrom(r.Context()); reg != nil {
		resp.Available = reg.Languages()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *GetLanguageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "language",
		Short: "Show the persisted language",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp LanguageResponse
			if err := client.Get(cmd.Context(), "/api/settings/language", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// SetLanguageEndpoint handles PUT /api/settings/language.
type SetLanguageEndpoint struct{}

func (e *SetLanguageEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PUT", "/api/settings/language", e.handler
}

func (e *SetLanguageEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Set the language
//	@Description	Persist the UI and story language. Only languages with a template catalog are accepted.
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SetLanguageRequest	true	"Language"
//	@Success		200		{object}	LanguageResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/settings/language [put]
func (e *SetLanguageEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SetLanguageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if reg := svcctx.TemplatesFrom(r.Context()); reg != nil {
		if !contains(reg.Languages(), req.Language) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported language %q", req.Language))
			return
		}
	}

	store := storeOrUnavailable(w, r)
	if store == nil {
		return
	}
	if !store.SetLanguage(r.Context(), req.Language) {
		writeError(w, http.StatusInternalServerError, "failed to save language")
		return
	}
	writeJSON(w, http.StatusOK, LanguageResponse{Language: store.Language(r.Context())})
}

func (e *SetLanguageEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "set-language <vi|en>",
		Short: "Persist the language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp LanguageResponse
			if err := client.Put(cmd.Context(), "/api/settings/language", SetLanguageRequest{Language: args[0]}, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
