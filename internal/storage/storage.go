// Package storage persists generated stories and user settings.
//
// Stores are best-effort: a failure is logged and reported as a zero value
// ("" from Save, nil from Get, false from Delete) rather than returned, so a
// broken disk or database never interrupts a generation that already
// finished.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackzampolin/talespin/internal/prompts"
)

// Drivers
const (
	DriverFile  = "file"
	DriverMySQL = "mysql"
)

// Defaults
const (
	DefaultTitlePrefix = "Truyện"
	UnknownTemplate    = "Unknown"
	// TimestampFormat is RFC 3339 with millisecond precision.
	TimestampFormat = "2006-01-02T15:04:05.000Z07:00"
)

// ErrNotFound is returned internally when a story id has no record.
var ErrNotFound = errors.New("story not found")

// Story is a persisted story.
type Story struct {
	Content      string `json:"content"`
	Timestamp    string `json:"timestamp"`
	ID           string `json:"id"`
	Title        string `json:"title,omitempty"`
	TemplateName string `json:"templateName,omitempty"`
}

// Store persists stories, the UI language and prompt overrides.
type Store interface {
	// Save stores a new story and returns its id, or "" on failure.
	// An empty title is replaced with the next auto title for the template.
	Save(ctx context.Context, content, templateName, title string) string
	// List returns every story, newest first.
	List(ctx context.Context) []Story
	// Get returns the story or nil.
	Get(ctx context.Context, id string) *Story
	// Delete removes a story. Unknown ids succeed; false means the write failed.
	Delete(ctx context.Context, id string) bool

	Language(ctx context.Context) string
	SetLanguage(ctx context.Context, lang string) bool

	prompts.OverrideStore

	// Driver names the backend.
	Driver() string
	Close() error
}

// Config selects and configures a Store.
type Config struct {
	Driver string
	// Dir holds the file driver's JSON documents.
	Dir string
	// DSN is the MySQL data source name.
	DSN             string
	TitlePrefix     string
	DefaultLanguage string
	Logger          *slog.Logger
}

// Open creates the Store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverFile:
		return NewFileStore(cfg)
	case DriverMySQL:
		return NewSQLStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

func (c Config) withDefaults() Config {
	if c.TitlePrefix == "" {
		c.TitlePrefix = DefaultTitlePrefix
	}
	if c.DefaultLanguage == "" {
		c.DefaultLanguage = prompts.DefaultLanguage
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// normalizeTemplate maps an empty template name to UnknownTemplate.
func normalizeTemplate(name string) string {
	if strings.TrimSpace(name) == "" {
		return UnknownTemplate
	}
	return name
}

// autoTitleBase is the title without its number. Untemplated stories
// (stored as UnknownTemplate) omit the template part.
func autoTitleBase(prefix, templateName string) string {
	if templateName == "" || templateName == UnknownTemplate {
		return prefix + " - "
	}
	return prefix + " - " + templateName + " - "
}

// nextAutoTitle numbers a new story one past the highest auto title already
// used for the template, so numbers never repeat after deletions.
func nextAutoTitle(prefix, templateName string, titles []string) string {
	base := autoTitleBase(prefix, templateName)
	highest := 0
	for _, t := range titles {
		rest, ok := strings.CutPrefix(t, base)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > highest {
			highest = n
		}
	}
	return base + strconv.Itoa(highest+1)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

func overrideKey(key string) string {
	return "prompt:" + key
}

const languageKey = "language"

// WordCount counts whitespace-separated words in a story body.
func WordCount(content string) int {
	return len(strings.Fields(content))
}
