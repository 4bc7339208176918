package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/render"
	"github.com/jackzampolin/talespin/internal/storage"
)

// StorySummary is a saved story without its content.
type StorySummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	TemplateName string `json:"templateName,omitempty"`
	Timestamp    string `json:"timestamp"`
	Words        int    `json:"words"`
}

// StoriesListResponse lists saved stories, newest first.
type StoriesListResponse struct {
	Stories []StorySummary `json:"stories"`
	Total   int            `json:"total"`
}

// DeleteStoryResponse reports a deletion.
type DeleteStoryResponse struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// ListStoriesEndpoint handles GET /api/stories.
type ListStoriesEndpoint struct{}

func (e *ListStoriesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/stories", e.handler
}

func (e *ListStoriesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List stories
//	@Description	List saved stories, newest first
//	@Tags			stories
//	@Produce		json
//	@Success		200	{object}	StoriesListResponse
//	@Router			/api/stories [get]
func (e *ListStoriesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store := storeOrUnavailable(w, r)
	if store == nil {
		return
	}
	stories := store.List(r.Context())

	resp := StoriesListResponse{
		Stories: make([]StorySummary, 0, len(stories)),
		Total:   len(stories),
	}
	for _, s := range stories {
		resp.Stories = append(resp.Stories, StorySummary{
			ID:           s.ID,
			Title:        s.Title,
			TemplateName: s.TemplateName,
			Timestamp:    s.Timestamp,
			Words:        storage.WordCount(s.Content),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (e *ListStoriesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved stories",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp StoriesListResponse
			if err := client.Get(cmd.Context(), "/api/stories", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetStoryEndpoint handles GET /api/stories/{id}.
type GetStoryEndpoint struct{}

func (e *GetStoryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/stories/{id}", e.handler
}

func (e *GetStoryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get a story
//	@Description	Get a saved story with its content
//	@Tags			stories
//	@Produce		json
//	@Param			id	path		string	true	"Story ID"
//	@Success		200	{object}	storage.Story
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/stories/{id} [get]
func (e *GetStoryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	s := findStory(w, r, r.PathValue("id"))
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (e *GetStoryEndpoint) Command(getServerURL func() string) *cobra.Command {
	var contentOnly bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a saved story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var s storage.Story
			if err := client.Get(cmd.Context(), "/api/stories/"+url.PathEscape(args[0]), &s); err != nil {
				return err
			}
			if contentOnly {
				fmt.Println(s.Content)
				return nil
			}
			return api.Output(s)
		},
	}
	cmd.Flags().BoolVar(&contentOnly, "content", false, "Print only the story text")
	return cmd
}

// DeleteStoryEndpoint handles DELETE /api/stories/{id}.
type DeleteStoryEndpoint struct{}

func (e *DeleteStoryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "DELETE", "/api/stories/{id}", e.handler
}

func (e *DeleteStoryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Delete a story
//	@Description	Delete a saved story. Unknown ids succeed.
//	@Tags			stories
//	@Produce		json
//	@Param			id	path		string	true	"Story ID"
//	@Success		200	{object}	DeleteStoryResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/stories/{id} [delete]
func (e *DeleteStoryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	store := storeOrUnavailable(w, r)
	if store == nil {
		return
	}
	if !store.Delete(r.Context(), id) {
		writeError(w, http.StatusInternalServerError, "failed to delete story")
		return
	}
	writeJSON(w, http.StatusOK, DeleteStoryResponse{Deleted: true, ID: id})
}

func (e *DeleteStoryEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			if err := client.Delete(cmd.Context(), "/api/stories/"+url.PathEscape(args[0])); err != nil {
				return err
			}
			return api.Output(DeleteStoryResponse{Deleted: true, ID: args[0]})
		},
	}
}

// StoryHTMLEndpoint handles GET /api/stories/{id}/html.
type StoryHTMLEndpoint struct{}

func (e *StoryHTMLEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/stories/{id}/html", e.handler
}

func (e *StoryHTMLEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Render a story as HTML
//	@Description	Render the saved markdown story as a standalone HTML page
//	@Tags			stories
//	@Produce		html
//	@Param			id	path		string	true	"Story ID"
//	@Success		200	{string}	string	"HTML page"
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/stories/{id}/html [get]
func (e *StoryHTMLEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	s := findStory(w, r, r.PathValue("id"))
	if s == nil {
		return
	}
	page, err := render.Page(s.Title, s.Content)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(page))
}

func (e *StoryHTMLEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "html <id>",
		Short: "Render a saved story as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			data, _, err := client.GetRaw(cmd.Context(), "/api/stories/"+url.PathEscape(args[0])+"/html")
			if err != nil {
				return err
			}
			if outputPath == "" {
				_, err := os.Stdout.Write(data)
				return err
			}
			if err := api.WriteFile(outputPath, data); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s\n", outputPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "file", "f", "", "Write HTML to this file instead of stdout")
	return cmd
}
