// Package images turns stories into illustration prompts and images.
//
// A master prompt distilled from the whole story keeps characters and world
// consistent; each segment gets its own scene prompt with the master appended.
// Prompts the image model refuses are sanitized once and retried once.
package images

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/talespin/internal/assets"
	"github.com/jackzampolin/talespin/internal/prompts"
	"github.com/jackzampolin/talespin/internal/prompts/imagery"
	"github.com/jackzampolin/talespin/internal/providers"
)

// Defaults
const (
	DefaultCount        = 4
	DefaultSize         = "1792x1024" // 16:9
	DefaultSegmentWords = 1000
)

// Sampling parameters per call.
const (
	masterTemperature   = 1.0
	segmentTemperature  = 1.0
	segmentTopP         = 1.0
	sanitizeTemperature = 0.6
)

// Pipeline runs the master/segment/sanitize prompt chain against an LLM
// and an image provider.
type Pipeline struct {
	llm        providers.LLMClient
	img        providers.ImageProvider
	resolver   *prompts.Resolver
	sink       assets.Sink
	textModel  string
	imageModel string
	count      int
	size       string
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver renders system instructions through r so overrides apply.
func WithResolver(r *prompts.Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithSink stores generated images and lets AutoGenerate skip finished segments.
func WithSink(s assets.Sink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithModels overrides the provider's default text and image models.
func WithModels(text, image string) Option {
	return func(p *Pipeline) {
		p.textModel = text
		p.imageModel = image
	}
}

// WithCount sets the number of images requested per prompt.
func WithCount(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.count = n
		}
	}
}

// WithSize sets the requested image size.
func WithSize(size string) Option {
	return func(p *Pipeline) {
		if size != "" {
			p.size = size
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a Pipeline.
func NewPipeline(llm providers.LLMClient, img providers.ImageProvider, opts ...Option) *Pipeline {
	p := &Pipeline{
		llm:    llm,
		img:    img,
		count:  DefaultCount,
		size:   DefaultSize,
		logger: slog.Default(),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MasterPrompt distills the whole story into a consistency prompt.
func (p *Pipeline) MasterPrompt(ctx context.Context, story string) (string, error) {
	text, err := p.complete(ctx, p.system(ctx, imagery.MasterPromptKey, imagery.MasterPrompt()), story,
		providers.Float(masterTemperature), nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate master prompt: %w", err)
	}
	return text, nil
}

// SegmentPrompt writes a scene prompt for one segment and appends master.
func (p *Pipeline) SegmentPrompt(ctx context.Context, segment, master string) (string, error) {
	base, err := p.complete(ctx, p.system(ctx, imagery.SegmentPromptKey, imagery.SegmentPrompt()), segment,
		providers.Float(segmentTemperature), providers.Float(segmentTopP))
	if err != nil {
		return "", fmt.Errorf("failed to generate image prompt: %w", err)
	}
	if strings.TrimSpace(master) != "" {
		return base + ". " + master, nil
	}
	return base, nil
}

// Sanitize rewrites a rejected prompt so it passes the image model's safety filter.
func (p *Pipeline) Sanitize(ctx context.Context, prompt string) (string, error) {
	user := imagery.SanitizeUserPrompt(prompt)
	if p.resolver != nil {
		if text, err := p.resolver.Render(ctx, imagery.SanitizeUserPromptKey, imagery.SanitizeData{Prompt: prompt}); err == nil {
			user = text
		}
	}
	text, err := p.complete(ctx, p.system(ctx, imagery.SanitizePromptKey, imagery.SanitizePrompt()), user,
		providers.Float(sanitizeTemperature), nil)
	if err != nil {
		return "", fmt.Errorf("failed to sanitize prompt: %w", err)
	}
	return text, nil
}

// Generate requests images for prompt. A blocked prompt is sanitized and
// retried exactly once; if that is blocked too, providers.ErrBlocked is returned.
func (p *Pipeline) Generate(ctx context.Context, prompt string) ([][]byte, error) {
	res, err := p.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return res.Images, nil
}

// Generation is the outcome of Generate with the prompt that produced it.
type Generation struct {
	Images    [][]byte
	Prompt    string
	Sanitized bool
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (*Generation, error) {
	images, err := p.generateOnce(ctx, prompt)
	if err == nil {
		return &Generation{Images: images, Prompt: prompt}, nil
	}
	if !errors.Is(err, providers.ErrBlocked) {
		return nil, err
	}

	p.logger.Warn("image prompt blocked, sanitizing", "prompt", truncate(prompt, 120))
	safe, serr := p.Sanitize(ctx, prompt)
	if serr != nil {
		return nil, serr
	}
	images, err = p.generateOnce(ctx, safe)
	if err != nil {
		return nil, err
	}
	return &Generation{Images: images, Prompt: safe, Sanitized: true}, nil
}

func (p *Pipeline) generateOnce(ctx context.Context, prompt string) ([][]byte, error) {
	res, err := p.img.GenerateImages(ctx, &providers.ImageRequest{
		Prompt: prompt,
		Model:  p.imageModel,
		Count:  p.count,
		Size:   p.size,
	})
	if err != nil {
		if providers.IsBlocked(err) {
			return nil, providers.ErrBlocked
		}
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(res.Images) == 0 {
		return nil, providers.ErrBlocked
	}
	return res.Images, nil
}

func (p *Pipeline) system(ctx context.Context, key, fallback string) string {
	if p.resolver == nil {
		return fallback
	}
	text, err := p.resolver.Render(ctx, key, nil)
	if err != nil {
		return fallback
	}
	return text
}

func (p *Pipeline) complete(ctx context.Context, system, user string, temperature, topP *float64) (string, error) {
	res, err := p.llm.Chat(ctx, &providers.ChatRequest{
		Model: p.textModel,
		Messages: []providers.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
		TopP:        topP,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Content), nil
}

// Segment splits text into segments of at most words words.
func Segment(text string, words int) []string {
	if words <= 0 {
		words = DefaultSegmentWords
	}
	fields := strings.Fields(text)
	var segments []string
	for i := 0; i < len(fields); i += words {
		segments = append(segments, strings.Join(fields[i:min(i+words, len(fields))], " "))
	}
	return segments
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
