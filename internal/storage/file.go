package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/talespin/internal/prompts"
)

// File names under the data directory.
const (
	StoriesFile  = "stories.json"
	SettingsFile = "settings.json"
)

// storiesDoc is the on-disk story document.
type storiesDoc struct {
	Stories []Story `json:"generated_stories"`
}

type settingsDoc struct {
	Language  string                      `json:"language,omitempty"`
	Overrides map[string]prompts.Override `json:"prompt_overrides,omitempty"`
}

// FileStore keeps stories and settings in two JSON documents. Every call
// reads the current file, so concurrent processes see each other's writes;
// the last writer wins.
type FileStore struct {
	mu     sync.Mutex
	dir    string
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewFileStore creates cfg.Dir if needed.
func NewFileStore(cfg Config) (*FileStore, error) {
	cfg = cfg.withDefaults()
	if cfg.Dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{
		dir:    cfg.Dir,
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
	}, nil
}

// Driver returns "file".
func (s *FileStore) Driver() string { return DriverFile }

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// Dir returns the data directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Save(ctx context.Context, content, templateName, title string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadStories()
	if err != nil {
		s.logger.Error("failed to load stories", "error", err)
		return ""
	}

	templateName = normalizeTemplate(templateName)
	if strings.TrimSpace(title) == "" {
		var titles []string
		for _, st := range doc.Stories {
			if st.TemplateName == templateName {
				titles = append(titles, st.Title)
			}
		}
		title = nextAutoTitle(s.cfg.TitlePrefix, templateName, titles)
	}

	story := Story{
		Content:      content,
		Timestamp:    formatTimestamp(s.now()),
		ID:           uuid.NewString(),
		Title:        title,
		TemplateName: templateName,
	}
	doc.Stories = append([]Story{story}, doc.Stories...)

	if err := s.writeJSON(StoriesFile, doc); err != nil {
		s.logger.Error("failed to save story", "error", err)
		return ""
	}
	s.logger.Info("saved story", "id", story.ID, "title", story.Title)
	return story.ID
}

func (s *FileStore) List(ctx context.Context) []Story {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadStories()
	if err != nil {
		s.logger.Error("failed to load stories", "error", err)
		return []Story{}
	}
	return doc.Stories
}

func (s *FileStore) Get(ctx context.Context, id string) *Story {
	for _, st := range s.List(ctx) {
		if st.ID == id {
			return &st
		}
	}
	return nil
}

func (s *FileStore) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadStories()
	if err != nil {
		s.logger.Error("failed to load stories", "error", err)
		return false
	}
	kept := doc.Stories[:0]
	for _, st := range doc.Stories {
		if st.ID != id {
			kept = append(kept, st)
		}
	}
	doc.Stories = kept
	if err := s.writeJSON(StoriesFile, doc); err != nil {
		s.logger.Error("failed to delete story", "id", id, "error", err)
		return false
	}
	return true
}

func (s *FileStore) Language(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadSettings()
	if err != nil {
		s.logger.Error("failed to load settings", "error", err)
	}
	if doc.Language == "" {
		return s.cfg.DefaultLanguage
	}
	return doc.Language
}

func (s *FileStore) SetLanguage(ctx context.Context, lang string) bool {
	return s.updateSettings(func(doc *settingsDoc) { doc.Language = lang })
}

func (s *FileStore) PromptOverride(ctx context.Context, key string) *prompts.Override {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadSettings()
	if err != nil {
		s.logger.Error("failed to load settings", "error", err)
		return nil
	}
	o, ok := doc.Overrides[key]
	if !ok {
		return nil
	}
	return &o
}

func (s *FileStore) SetPromptOverride(ctx context.Context, key, text, note string) bool {
	now := s.now().UTC()
	return s.updateSettings(func(doc *settingsDoc) {
		if doc.Overrides == nil {
			doc.Overrides = make(map[string]prompts.Override)
		}
		doc.Overrides[key] = prompts.Override{Key: key, Text: text, Note: note, UpdatedAt: now}
	})
}

func (s *FileStore) ClearPromptOverride(ctx context.Context, key string) bool {
	return s.updateSettings(func(doc *settingsDoc) { delete(doc.Overrides, key) })
}

func (s *FileStore) updateSettings(fn func(*settingsDoc)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.loadSettings()
	if err != nil {
		s.logger.Error("failed to load settings", "error", err)
		return false
	}
	fn(&doc)
	if err := s.writeJSON(SettingsFile, doc); err != nil {
		s.logger.Error("failed to save settings", "error", err)
		return false
	}
	return true
}

func (s *FileStore) loadStories() (storiesDoc, error) {
	var doc storiesDoc
	err := s.readJSON(StoriesFile, &doc)
	if doc.Stories == nil {
		doc.Stories = []Story{}
	}
	return doc, err
}

func (s *FileStore) loadSettings() (settingsDoc, error) {
	var doc settingsDoc
	err := s.readJSON(SettingsFile, &doc)
	return doc, err
}

// readJSON decodes name into v. A missing file leaves v untouched.
func (s *FileStore) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}

// writeJSON replaces name atomically via a temp file and rename.
func (s *FileStore) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
