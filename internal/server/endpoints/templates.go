package endpoints

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/svcctx"
	"github.com/jackzampolin/talespin/internal/templates"
)

// TemplateSummary is a template without its field definitions.
type TemplateSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Gradient    string `json:"gradient"`
	Chapters    int    `json:"chapters"`
}

// TemplatesListResponse lists the templates of one language.
type TemplatesListResponse struct {
	Language  string            `json:"language"`
	Templates []TemplateSummary `json:"templates"`
}

// TemplateResponse is a full template with pre-filled chapter data.
type TemplateResponse struct {
	Language           string              `json:"language"`
	Template           *templates.Template `json:"template"`
	DefaultChapterData map[string]string   `json:"default_chapter_data"`
}

// requestLanguage returns ?lang= or the persisted UI language.
func requestLanguage(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return lang
	}
	if store := svcctx.StoreFrom(r.Context()); store != nil {
		return store.Language(r.Context())
	}
	return svcctx.ConfigFrom(r.Context()).Language
}

// ListTemplatesEndpoint handles GET /api/templates.
type ListTemplatesEndpoint struct{}

func (e *ListTemplatesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/templates", e.handler
}

func (e *ListTemplatesEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		List story templates
//	@Description	List the story templates of a language
//	@Tags			templates
//	@Produce		json
//	@Param			lang	query		string	false	"Language (vi or en)"
//	@Success		200		{object}	TemplatesListResponse
//	@Failure		500		{object}	ErrorResponse
//	@Router			/api/templates [get]
func (e *ListTemplatesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	reg := svcctx.TemplatesFrom(r.Context())
	if reg == nil {
		writeError(w, http.StatusInternalServerError, "template registry not available")
		return
	}

	lang := reg.Resolve(requestLanguage(r))
	list := reg.List(lang)
	resp := TemplatesListResponse{
		Language:  lang,
		Templates: make([]TemplateSummary, 0, len(list)),
	}
	for _, t := range list {
		resp.Templates = append(resp.Templates, TemplateSummary{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			Gradient:    t.Gradient,
			Chapters:    len(t.Chapters),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ListTemplatesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List story templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/templates"
			if lang != "" {
				path += "?lang=" + url.QueryEscape(lang)
			}
			var resp TemplatesListResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Template language (vi or en)")
	return cmd
}

// GetTemplateEndpoint handles GET /api/templates/{id}.
type GetTemplateEndpoint struct{}

func (e *GetTemplateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/templates/{id}", e.handler
}

func (e *GetTemplateEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Get a story template
//	@Description	Get a template with its fields and default chapter data
//	@Tags			templates
//	@Produce		json
//	@Param			id		path		string	true	"Template ID"
//	@Param			lang	query		string	false	"Language (vi or en)"
//	@Success		200		{object}	TemplateResponse
//	@Failure		404		{object}	ErrorResponse
//	@Router			/api/templates/{id} [get]
func (e *GetTemplateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	reg := svcctx.TemplatesFrom(r.Context())
	if reg == nil {
		writeError(w, http.StatusInternalServerError, "template registry not available")
		return
	}

	lang := reg.Resolve(requestLanguage(r))
	t, err := reg.Get(lang, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, TemplateResponse{
		Language:           lang,
		Template:           t,
		DefaultChapterData: t.DefaultChapterData(),
	})
}

func (e *GetTemplateEndpoint) Command(getServerURL func() string) *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a story template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := fmt.Sprintf("/api/templates/%s", url.PathEscape(args[0]))
			if lang != "" {
				path += "?lang=" + url.QueryEscape(lang)
			}
			var resp TemplateResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "", "Template language (vi or en)")
	return cmd
}
