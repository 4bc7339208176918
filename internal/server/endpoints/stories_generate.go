package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/story"
	"github.com/jackzampolin/talespin/internal/svcctx"
	"github.com/jackzampolin/talespin/internal/templates"
)

// GenerateRequest is the request body for story generation.
type GenerateRequest struct {
	story.FormData
	Template string `json:"template"`
	Language string `json:"language,omitempty"`
	Title    string `json:"title,omitempty"`
	Model    string `json:"model,omitempty"`
	Retry    bool   `json:"retry,omitempty"`
}

// GenerateDone is the final line of a generation stream.
type GenerateDone struct {
	Type    string `json:"type"` // always "done"
	StoryID string `json:"story_id,omitempty"`
	Title   string `json:"title,omitempty"`
	Error   string `json:"error,omitempty"`
}

// generation holds everything resolved for one generate request.
type generation struct {
	req  GenerateRequest
	tmpl *templates.Template
	gen  *story.Generator
}

type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// prepareGeneration resolves the template, language, and text provider for req.
func prepareGeneration(ctx context.Context, req GenerateRequest) (*generation, error) {
	if strings.TrimSpace(req.Template) == "" {
		return nil, &requestError{http.StatusBadRequest, "template is required"}
	}

	reg := svcctx.TemplatesFrom(ctx)
	if reg == nil {
		return nil, &requestError{http.StatusInternalServerError, "template registry not available"}
	}
	lang := req.Language
	if lang == "" {
		if store := svcctx.StoreFrom(ctx); store != nil {
			lang = store.Language(ctx)
		}
	}
	lang = reg.Resolve(lang)

	tmpl, err := reg.Get(lang, req.Template)
	if err != nil {
		if errors.Is(err, templates.ErrNotFound) {
			return nil, &requestError{http.StatusNotFound, err.Error()}
		}
		return nil, &requestError{http.StatusInternalServerError, err.Error()}
	}

	registry := svcctx.RegistryFrom(ctx)
	if registry == nil {
		return nil, &requestError{http.StatusServiceUnavailable, "provider registry not available"}
	}
	llm, err := registry.DefaultLLM()
	if err != nil {
		return nil, &requestError{http.StatusServiceUnavailable, err.Error()}
	}

	cfg := svcctx.ConfigFrom(ctx)
	if req.WordCount <= 0 {
		req.WordCount = cfg.Story.WordCount
	}
	attempts := cfg.Story.RetryAttempts
	if attempts <= 0 {
		attempts = story.DefaultAttempts
	}
	delay := time.Duration(cfg.Story.RetryDelaySeconds) * time.Second
	if delay <= 0 {
		delay = story.DefaultRetryDelay
	}

	gen := story.NewGenerator(llm,
		story.WithResolver(svcctx.PromptResolverFrom(ctx)),
		story.WithLanguage(lang),
		story.WithLogger(svcctx.LoggerFrom(ctx)),
		story.WithRetry(uint(attempts), delay),
	)
	return &generation{req: req, tmpl: tmpl, gen: gen}, nil
}

// run emits fragments through send and persists the story when generation
// produced content and the caller is still connected.
func (g *generation) run(ctx context.Context, send func(any) error) GenerateDone {
	logger := svcctx.LoggerFrom(ctx)
	done := GenerateDone{Type: "done"}

	var content string
	if g.req.Retry {
		text, err := g.gen.GenerateWithRetry(ctx, g.req.FormData, g.tmpl, g.req.Model)
		if err != nil {
			done.Error = err.Error()
		} else {
			content = text
			_ = send(story.Fragment{Kind: story.KindText, Text: text})
		}
	} else {
		s := g.gen.Stream(ctx, g.req.FormData, g.tmpl, g.req.Model)
		defer s.Close()
		for {
			frag, ok := s.Next()
			if !ok {
				break
			}
			if err := send(frag); err != nil {
				logger.Warn("client went away during generation", "error", err)
				return done
			}
		}
		if err := s.Err(); err != nil {
			done.Error = err.Error()
		}
		content = s.Content()
	}

	if ctx.Err() != nil || strings.TrimSpace(content) == "" {
		return done
	}
	store := svcctx.StoreFrom(ctx)
	if store == nil {
		return done
	}
	if id := store.Save(ctx, content, g.tmpl.Name, g.req.Title); id != "" {
		done.StoryID = id
		if saved := store.Get(ctx, id); saved != nil {
			done.Title = saved.Title
		}
	}
	return done
}

// GenerateStoryEndpoint handles POST /api/stories/generate.
type GenerateStoryEndpoint struct{}

func (e *GenerateStoryEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/stories/generate", e.handler
}

func (e *GenerateStoryEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Generate a story
//	@Description	Streams chapter headings, text deltas, and error notices as NDJSON, then a done line with the saved story id
//	@Tags			stories
//	@Accept			json
//	@Produce		application/x-ndjson
//	@Param			request	body		GenerateRequest	true	"Story form"
//	@Success		200		{object}	story.Fragment
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/stories/generate [post]
func (e *GenerateStoryEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	g, err := prepareGeneration(r.Context(), req)
	if err != nil {
		var re *requestError
		if errors.As(err, &re) {
			writeError(w, re.status, re.msg)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := newNDJSONWriter(w)
	done := g.run(r.Context(), out.Send)
	_ = out.Send(done)
}

func (e *GenerateStoryEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		req      GenerateRequest
		chapters []string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a story and print it as it streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Chapters = make(map[string]string, len(chapters))
			for _, kv := range chapters {
				k, v, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("invalid --field %q, want id=value", kv)
				}
				req.Chapters[k] = v
			}

			client := api.NewClient(getServerURL())
			var done GenerateDone
			err := client.PostStream(cmd.Context(), "/api/stories/generate", req, func(line json.RawMessage) error {
				var frag story.Fragment
				if err := json.Unmarshal(line, &frag); err != nil {
					return err
				}
				switch frag.Kind {
				case "done":
					return json.Unmarshal(line, &done)
				case story.KindError:
					fmt.Fprint(os.Stderr, frag.Text)
				default:
					fmt.Print(frag.Text)
				}
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Println()
			if done.Error != "" {
				fmt.Fprintf(os.Stderr, "generation error: %s\n", done.Error)
			}
			if done.StoryID != "" {
				fmt.Fprintf(os.Stderr, "saved story %s (%s)\n", done.StoryID, done.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Template, "template", "", "Template ID (required)")
	cmd.Flags().StringVar(&req.Language, "lang", "", "Story language (vi or en)")
	cmd.Flags().StringVar(&req.Title, "title", "", "Story title (auto-numbered if empty)")
	cmd.Flags().StringVar(&req.Model, "model", "", "Text model override")
	cmd.Flags().BoolVar(&req.Retry, "retry", false, "Generate without streaming, retrying on failure")
	cmd.Flags().StringVar(&req.Topic, "topic", "", "Story topic")
	cmd.Flags().StringVar(&req.NarrativeStyle, "style", "", "Narrative style")
	cmd.Flags().StringVar(&req.MainCharacterName, "character", "", "Main character name")
	cmd.Flags().StringVar(&req.MainCharacterDesc, "character-desc", "", "Main character description")
	cmd.Flags().StringVar(&req.Setting, "setting", "", "Setting")
	cmd.Flags().StringVar(&req.SettingDesc, "setting-desc", "", "Setting description")
	cmd.Flags().IntVar(&req.WordCount, "words", 0, "Total word count (server default if 0)")
	cmd.Flags().StringArrayVar(&chapters, "field", nil, "Chapter field as id=value (repeatable)")
	cmd.MarkFlagRequired("template")
	return cmd
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GenerateStoryWSEndpoint handles GET /api/stories/generate/ws.
// The client sends one GenerateRequest message and receives fragments
// followed by a done message.
type GenerateStoryWSEndpoint struct{}

func (e *GenerateStoryWSEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/stories/generate/ws", e.handler
}

func (e *GenerateStoryWSEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Generate a story over a websocket
//	@Description	Send a GenerateRequest message; receive fragments and a final done message
//	@Tags			stories
//	@Router			/api/stories/generate/ws [get]
func (e *GenerateStoryWSEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	logger := svcctx.LoggerFrom(r.Context())
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var req GenerateRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}

	// Any further read error means the peer closed; stop generating.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	g, err := prepareGeneration(ctx, req)
	if err != nil {
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}

	done := g.run(ctx, conn.WriteJSON)
	_ = conn.WriteJSON(done)
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (e *GenerateStoryWSEndpoint) Command(_ func() string) *cobra.Command {
	return nil // Use "stories generate" from the CLI
}
