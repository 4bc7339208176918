package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/talespin/internal/api"
	"github.com/jackzampolin/talespin/internal/assets"
	"github.com/jackzampolin/talespin/internal/images"
	"github.com/jackzampolin/talespin/internal/svcctx"
)

// MasterPromptResponse carries the story-wide visual style prompt.
type MasterPromptResponse struct {
	StoryID string `json:"story_id"`
	Master  string `json:"master"`
}

// AutoImagesRequest tunes an auto-generate run. Zero values use the config.
type AutoImagesRequest struct {
	Master       string `json:"master,omitempty"`
	SegmentWords int    `json:"segment_words,omitempty"`
	DelaySeconds *int   `json:"delay_seconds,omitempty"`
}

// ImagesProgress is one progress line of an auto-generate stream.
type ImagesProgress struct {
	Type string `json:"type"` // always "progress"
	images.Progress
}

// ImagesDone is the final line of an auto-generate stream.
type ImagesDone struct {
	Type   string         `json:"type"` // always "done"
	Report *images.Report `json:"report,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// newPipeline builds an illustration pipeline from the default providers.
func newPipeline(ctx context.Context) (*images.Pipeline, error) {
	registry := svcctx.RegistryFrom(ctx)
	if registry == nil {
		return nil, fmt.Errorf("provider registry not available")
	}
	llm, err := registry.DefaultLLM()
	if err != nil {
		return nil, err
	}
	img, err := registry.DefaultImage()
	if err != nil {
		return nil, err
	}

	cfg := svcctx.ConfigFrom(ctx)
	opts := []images.Option{
		images.WithResolver(svcctx.PromptResolverFrom(ctx)),
		images.WithCount(cfg.Images.Count),
		images.WithSize(cfg.Images.Size),
		images.WithLogger(svcctx.LoggerFrom(ctx)),
	}
	if sink := svcctx.AssetsFrom(ctx); sink != nil {
		opts = append(opts, images.WithSink(sink))
	}
	return images.NewPipeline(llm, img, opts...), nil
}

// MasterPromptEndpoint handles POST /api/stories/{id}/images/master.
type MasterPromptEndpoint struct{}

func (e *MasterPromptEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/stories/{id}/images/master", e.handler
}

func (e *MasterPromptEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Generate a master image prompt
//	@Description	Derive the visual style prompt shared by every illustration of a story
//	@Tags			images
//	@Produce		json
//	@Param			id	path		string	true	"Story ID"
//	@Success		200	{object}	MasterPromptResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		502	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/stories/{id}/images/master [post]
func (e *MasterPromptEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storyID := r.PathValue("id")

	s := findStory(w, r, storyID)
	if s == nil {
		return
	}
	p, err := newPipeline(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	master, err := p.MasterPrompt(ctx, s.Content)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, MasterPromptResponse{StoryID: storyID, Master: master})
}

func (e *MasterPromptEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "master-prompt <story-id>",
		Short: "Generate the master image prompt of a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp MasterPromptResponse
			if err := client.Post(cmd.Context(), "/api/stories/"+url.PathEscape(args[0])+"/images/master", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// AutoImagesEndpoint handles POST /api/stories/{id}/images.
type AutoImagesEndpoint struct{}

func (e *AutoImagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/stories/{id}/images", e.handler
}

func (e *AutoImagesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Illustrate a story
//	@Description	Generates images for every story segment without one, streaming NDJSON progress and ending with a report
//	@Tags			images
//	@Accept			json
//	@Produce		application/x-ndjson
//	@Param			id		path		string				true	"Story ID"
//	@Param			request	body		AutoImagesRequest	false	"Run options"
//	@Success		200		{object}	ImagesProgress
//	@Failure		404		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/stories/{id}/images [post]
func (e *AutoImagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	storyID := r.PathValue("id")

	var req AutoImagesRequest
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
	if svcctx.AssetsFrom(ctx) == nil {
		writeError(w, http.StatusServiceUnavailable, "asset storage not available")
		return
	}
	p, err := newPipeline(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	cfg := svcctx.ConfigFrom(ctx)
	opts := images.AutoOptions{
		Master:       req.Master,
		SegmentWords: req.SegmentWords,
		Delay:        secondsOrNone(cfg.Images.DelaySeconds),
	}
	if opts.SegmentWords <= 0 {
		opts.SegmentWords = cfg.Images.SegmentWords
	}
	if req.DelaySeconds != nil {
		opts.Delay = secondsOrNone(*req.DelaySeconds)
	}

	out := newNDJSONWriter(w)
	report, err := p.AutoGenerate(ctx, storyID, s.Content, opts, func(pr images.Progress) {
		_ = out.Send(ImagesProgress{Type: "progress", Progress: pr})
	})
	done := ImagesDone{Type: "done", Report: report}
	if err != nil {
		done.Error = err.Error()
	}
	_ = out.Send(done)
}

// secondsOrNone converts a configured delay; zero or less disables waiting.
func secondsOrNone(n int) time.Duration {
	if n <= 0 {
		return -1
	}
	return time.Duration(n) * time.Second
}

func (e *AutoImagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		req   AutoImagesRequest
		delay int
	)
	cmd := &cobra.Command{
		Use:   "illustrate <story-id>",
		Short: "Generate images for every segment of a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("delay") {
				req.DelaySeconds = &delay
			}
			client := api.NewClient(getServerURL())
			var done ImagesDone
			err := client.PostStream(cmd.Context(), "/api/stories/"+url.PathEscape(args[0])+"/images", req, func(line json.RawMessage) error {
				var p ImagesProgress
				if err := json.Unmarshal(line, &p); err != nil {
					return err
				}
				if p.Type == "done" {
					return json.Unmarshal(line, &done)
				}
				fmt.Fprintf(os.Stderr, "[%d/%d] segment %d: %s\n", p.Current, p.Total, p.Segment, p.Status)
				return nil
			})
			if err != nil {
				return err
			}
			if done.Error != "" {
				fmt.Fprintf(os.Stderr, "illustration error: %s\n", done.Error)
			}
			return api.Output(done.Report)
		},
	}
	cmd.Flags().StringVar(&req.Master, "master", "", "Master prompt (generated if empty)")
	cmd.Flags().IntVar(&req.SegmentWords, "segment-words", 0, "Words per illustrated segment")
	cmd.Flags().IntVar(&delay, "delay", 0, "Seconds between segments (0 disables)")
	return cmd
}

// ListImagesEndpoint handles GET /api/stories/{id}/images.
type ListImagesEndpoint struct{}

func (e *ListImagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/stories/{id}/images", e.handler
}

func (e *ListImagesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List story images
//	@Description	List the stored illustrations of a story
//	@Tags			images
//	@Produce		json
//	@Param			id	path		string	true	"Story ID"
//	@Success		200	{object}	AssetsListResponse
//	@Failure		500	{object}	ErrorResponse
//	@Router			/api/stories/{id}/images [get]
func (e *ListImagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	listAssets(w, r, assets.ImagePrefix(r.PathValue("id")))
}

func (e *ListImagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "images <story-id>",
		Short: "List stored images of a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp AssetsListResponse
			if err := client.Get(cmd.Context(), "/api/stories/"+url.PathEscape(args[0])+"/images", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetAssetEndpoint handles GET /api/assets/{key...}.
type GetAssetEndpoint struct{}

func (e *GetAssetEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/assets/{key...}", e.handler
}

func (e *GetAssetEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Download an asset
//	@Description	Serve a stored audio chunk or image by key
//	@Tags			assets
//	@Produce		octet-stream
//	@Param			key	path		string	true	"Asset key (e.g., stories/{id}/audio/story_chunk_1.wav)"
//	@Success		200	{file}		binary
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Router			/api/assets/{key} [get]
func (e *GetAssetEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := assets.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sink := svcctx.AssetsFrom(r.Context())
	if sink == nil {
		writeError(w, http.StatusServiceUnavailable, "asset storage not available")
		return
	}

	data, contentType, err := sink.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			writeError(w, http.StatusNotFound, "asset not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if contentType == "" {
		contentType = assets.ContentTypeFor(key)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(data)
}

func (e *GetAssetEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputPath string
	cmd := &cobra.Command{
		Use:   "download <key>",
		Short: "Download a stored asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			data, _, err := client.GetRaw(cmd.Context(), "/api/assets/"+args[0])
			if err != nil {
				return err
			}
			if outputPath == "" {
				outputPath = path.Base(args[0])
			}
			if err := api.WriteFile(outputPath, data); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", outputPath, len(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputPath, "file", "f", "", "Output file path (default: key base name)")
	return cmd
}
