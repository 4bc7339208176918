package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/assets"
	"github.com/jackzampolin/talespin/internal/prompts/narration"
	"github.com/jackzampolin/talespin/internal/svcctx"
	"github.com/jackzampolin/talespin/internal/tts"
)

// VoiceRequest is the request body for narrating a story.
type VoiceRequest struct {
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
}

// VoiceProgress is one progress line of a narration stream.
type VoiceProgress struct {
	Type string `json:"type"` // always "progress"
	tts.Progress
}

// AssetRef points at a stored asset.
type AssetRef struct {
	Name string `json:"name"`
	Key  string `json:"key"`
	URL  string `json:"url"`
}

// VoiceDone is the final line of a narration stream.
type VoiceDone struct {
	Type  string     `json:"type"` // always "done"
	Files []AssetRef `json:"files"`
	Error string     `json:"error,omitempty"`
}

// AssetsListResponse lists stored assets of a story.
type AssetsListResponse struct {
	StoryID string     `json:"story_id"`
	Files   []AssetRef `json:"files"`
}

// GenerateVoiceEndpoint handles POST /api/stories/{id}/voice.
type GenerateVoiceEndpoint struct{}

func (e *GenerateVoiceEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/stories/{id}/voice", e.handler
}

func (e *GenerateVoiceEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Narrate a story
//	@Description	Converts a saved story to speech chunk by chunk through the quota queue, streaming NDJSON progress. WAV chunks are stored as assets.
//	@Tags			voice
//	@Accept			json
//	@Produce		application/x-ndjson
//	@Param			id		path		string			true	"Story ID"
//	@Param			request	body		VoiceRequest	false	"Voice options"
//	@Success		200		{object}	VoiceProgress
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/stories/{id}/voice [post]
func (e *GenerateVoiceEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := svcctx.LoggerFrom(ctx)
	storyID := r.PathValue("id")

	var req VoiceRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	s := findStory(w, r, storyID)
	if s == nil {
		return
	}
	queue := svcctx.TTSQueueFrom(ctx)
	if queue == nil {
		writeError(w, http.StatusServiceUnavailable, "speech queue not available")
		return
	}
	sink := svcctx.AssetsFrom(ctx)
	if sink == nil {
		writeError(w, http.StatusServiceUnavailable, "asset storage not available")
		return
	}

	cfg := svcctx.ConfigFrom(ctx)
	voice := req.Voice
	if voice == "" {
		voice = cfg.TTS.Voice
	}
	lang := req.Language
	if lang == "" {
		if store := svcctx.StoreFrom(ctx); store != nil {
			lang = store.Language(ctx)
		} else {
			lang = cfg.Language
		}
	}

	instructions := narration.SpeechInstruction(lang)
	if resolver := svcctx.PromptResolverFrom(ctx); resolver != nil {
		if text, err := resolver.Render(ctx, narration.SpeechPromptKey, narration.SpeechData{Language: lang}); err == nil {
			instructions = strings.TrimSpace(text)
		}
	}

	conv := tts.NewConverter(tts.ConverterConfig{
		Queue:        queue,
		ChunkWords:   cfg.TTS.ChunkWords,
		Instructions: instructions,
		Logger:       logger,
	})

	out := newNDJSONWriter(w)
	files, err := conv.Convert(ctx, s.Content, voice, func(p tts.Progress) {
		_ = out.Send(VoiceProgress{Type: "progress", Progress: p})
	})

	done := VoiceDone{Type: "done", Files: []AssetRef{}}
	if err != nil {
		done.Error = err.Error()
	}
	for _, f := range files {
		key := assets.AudioKey(storyID, f.Index)
		if err := sink.Put(ctx, key, f.Data, "audio/wav"); err != nil {
			logger.Error("failed to store audio chunk", "story_id", storyID, "key", key, "error", err)
			done.Error = err.Error()
			continue
		}
		done.Files = append(done.Files, assetRef(r, sink, key))
	}
	_ = out.Send(done)
}

func (e *GenerateVoiceEndpoint) Command(getServerURL func() string) *cobra.Command {
	var req VoiceRequest
	cmd := &cobra.Command{
		Use:   "voice <story-id>",
		Short: "Narrate a saved story to WAV chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var done VoiceDone
			err := client.PostStream(cmd.Context(), "/api/stories/"+url.PathEscape(args[0])+"/voice", req, func(line json.RawMessage) error {
				var p VoiceProgress
				if err := json.Unmarshal(line, &p); err != nil {
					return err
				}
				if p.Type == "done" {
					return json.Unmarshal(line, &done)
				}
				fmt.Fprintf(os.Stderr, "[%d/%d] %s: %s\n", p.Current, p.Total, p.Status, p.CurrentChunk)
				return nil
			})
			if err != nil {
				return err
			}
			if done.Error != "" {
				fmt.Fprintf(os.Stderr, "narration error: %s\n", done.Error)
			}
			return api.Output(done.Files)
		},
	}
	cmd.Flags().StringVar(&req.Voice, "voice", "", "Voice name (server default if empty)")
	cmd.Flags().StringVar(&req.Language, "lang", "", "Narration language (vi or en)")
	return cmd
}

// ListVoiceEndpoint handles GET /api/stories/{id}/voice.
type ListVoiceEndpoint struct{}

func (e *ListVoiceEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/stories/{id}/voice", e.handler
}

func (e *ListVoiceEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List narration chunks
//	@Description	List the stored WAV chunks of a story
//	@Tags			voice
//	@Produce		json
//	@Param			id	path		string	true	"Story ID"
//	@Success		200	{object}	AssetsListResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/stories/{id}/voice [get]
func (e *ListVoiceEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	listAssets(w, r, assets.AudioPrefix(r.PathValue("id")))
}

func (e *ListVoiceEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "audio <story-id>",
		Short: "List stored narration chunks of a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp AssetsListResponse
			if err := client.Get(cmd.Context(), "/api/stories/"+url.PathEscape(args[0])+"/voice", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// listAssets writes every asset under prefix for the story in the path.
func listAssets(w http.ResponseWriter, r *http.Request, prefix string) {
	ctx := r.Context()
	sink := svcctx.AssetsFrom(ctx)
	if sink == nil {
		writeError(w, http.StatusServiceUnavailable, "asset storage not available")
		return
	}
	keys, err := sink.List(ctx, prefix)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sort.Strings(keys)

	resp := AssetsListResponse{StoryID: r.PathValue("id"), Files: make([]AssetRef, 0, len(keys))}
	for _, key := range keys {
		resp.Files = append(resp.Files, assetRef(r, sink, key))
	}
	writeJSON(w, http.StatusOK, resp)
}

func assetRef(r *http.Request, sink assets.Sink, key string) AssetRef {
	ref := AssetRef{Name: path.Base(key), Key: key}
	if u, err := sink.URL(r.Context(), key); err == nil {
		ref.URL = u
	} else {
		svcctx.LoggerFrom(r.Context()).Warn("failed to build asset url", "key", key, "error", err)
	}
	return ref
}

// TTSStatusEndpoint handles GET /api/tts/status.
type TTSStatusEndpoint struct{}

func (e *TTSStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/tts/status", e.handler
}

func (e *TTSStatusEndpoint) RequiresInit() bool { return false }

// handler godoc
//
//	@Summary		Speech queue status
//	@Description	Requests used in the current window, queue size, and time until the next free slot
//	@Tags			voice
//	@Produce		json
//	@Success		200	{object}	tts.Status
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/tts/status [get]
func (e *TTSStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	q := svcctx.TTSQueueFrom(r.Context())
	if q == nil {
		writeError(w, http.StatusServiceUnavailable, "speech queue not available")
		return
	}
	writeJSON(w, http.StatusOK, q.Status())
}

func (e *TTSStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "tts-status",
		Short: "Show speech queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp tts.Status
			if err := client.Get(cmd.Context(), "/api/tts/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
