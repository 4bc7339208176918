package story

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/jackzampolin/talespin/internal/prompts"
	"github.com/jackzampolin/talespin/internal/prompts/chapter"
	"github.com/jackzampolin/talespin/internal/providers"
	"github.com/jackzampolin/talespin/internal/templates"
)

// Retry defaults for GenerateWithRetry.
const (
	DefaultAttempts   = 3
	DefaultRetryDelay = time.Second
)

// Generator writes stories with an LLM client.
type Generator struct {
	llm        providers.LLMClient
	resolver   *prompts.Resolver
	language   string
	logger     *slog.Logger
	attempts   uint
	retryDelay time.Duration
}

// Option configures a Generator.
type Option func(*Generator)

// WithResolver renders prompts through r so stored overrides apply.
func WithResolver(r *prompts.Resolver) Option {
	return func(g *Generator) { g.resolver = r }
}

// WithLanguage sets the phrase catalog used for prompts and notices.
func WithLanguage(lang string) Option {
	return func(g *Generator) { g.language = lang }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// WithRetry sets the attempt count and initial backoff for GenerateWithRetry.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(g *Generator) {
		g.attempts = attempts
		g.retryDelay = delay
	}
}

// NewGenerator creates a Generator backed by llm.
func NewGenerator(llm providers.LLMClient, opts ...Option) *Generator {
	g := &Generator{
		llm:        llm,
		language:   prompts.DefaultLanguage,
		logger:     slog.Default(),
		attempts:   DefaultAttempts,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ForLanguage returns a copy of g that writes in lang.
func (g *Generator) ForLanguage(lang string) *Generator {
	cp := *g
	cp.language = lang
	return &cp
}

// Stream starts generating a story for form using tmpl. Nothing is requested
// from the model until the first call to Next.
func (g *Generator) Stream(ctx context.Context, form FormData, tmpl *templates.Template, model string) *Stream {
	phrases := prompts.PhrasesFor(g.language)
	total := form.WordCount
	if total <= 0 {
		total = DefaultWordCount
	}
	chapters := tmpl.ChapterNumbers()
	perChapter := 0
	if len(chapters) > 0 {
		perChapter = total / len(chapters)
	}
	return &Stream{
		g:          g,
		ctx:        ctx,
		form:       form,
		tmpl:       tmpl,
		model:      model,
		phrases:    phrases,
		chapters:   chapters,
		total:      total,
		perChapter: perChapter,
		summary:    phrases.NothingHappened,
	}
}

// GenerateWithRetry drains a full generation into a string. An attempt that
// ends in an error fragment or with no content is retried with exponential
// backoff; after the last attempt its error is returned.
func (g *Generator) GenerateWithRetry(ctx context.Context, form FormData, tmpl *templates.Template, model string) (string, error) {
	var content string
	err := retry.Do(
		func() error {
			s := g.Stream(ctx, form, tmpl, model)
			text, err := s.Collect()
			if err != nil {
				return err
			}
			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("story generation returned no content")
			}
			content = text
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(g.attempts),
		retry.Delay(g.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Warn("story generation attempt failed", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return "", err
	}
	return content, nil
}

func (g *Generator) chapterPrompt(ctx context.Context, d chapter.Data) string {
	if g.resolver != nil {
		if text, err := g.resolver.Render(ctx, chapter.ChapterPromptKey, d); err == nil {
			return text
		}
	}
	return chapter.ChapterPrompt(d)
}

func (g *Generator) summaryPrompt(ctx context.Context, content string) string {
	if g.resolver != nil {
		if text, err := g.resolver.Render(ctx, chapter.SummaryPromptKey, chapter.SummaryData{Content: content}); err == nil {
			return text
		}
	}
	return chapter.SummaryPrompt(content)
}
