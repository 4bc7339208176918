package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

func newFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return s
}

func TestNextAutoTitle(t *testing.T) {
	tests := []struct {
		name     string
		template string
		titles   []string
		want     string
	}{
		{"first", "Horror", nil, "Truyện - Horror - 1"},
		{"after gap", "Horror", []string{"Truyện - Horror - 1", "Truyện - Horror - 4"}, "Truyện - Horror - 5"},
		{"ignores custom titles", "Horror", []string{"My story", "Truyện - Horror - x"}, "Truyện - Horror - 1"},
		{"untemplated", UnknownTemplate, []string{"Truyện - 2"}, "Truyện - 3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nextAutoTitle(DefaultTitlePrefix, tt.template, tt.titles); got != tt.want {
				t.Errorf("nextAutoTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileStoreSaveAndList(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	base := time.Date(2025, 1, 2, 3, 4, 5, 6e6, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	if got := s.List(ctx); len(got) != 0 {
		t.Fatalf("expected empty list, got %d", len(got))
	}

	id1 := s.Save(ctx, "one", "Horror", "")
	id2 := s.Save(ctx, "two", "Horror", "")
	id3 := s.Save(ctx, "three", "", "")
	id4 := s.Save(ctx, "four", "Horror", "Custom")
	if id1 == "" || id2 == "" || id3 == "" || id4 == "" {
		t.Fatal("Save() returned an empty id")
	}

	list := s.List(ctx)
	if len(list) != 4 || list[0].ID != id4 || list[3].ID != id1 {
		t.Fatalf("List() should be newest first, got %+v", list)
	}
	if list[3].Title != "Truyện - Horror - 1" || list[2].Title != "Truyện - Horror - 2" {
		t.Errorf("unexpected titles %q, %q", list[3].Title, list[2].Title)
	}
	if list[1].Title != "Truyện - 1" || list[1].TemplateName != UnknownTemplate {
		t.Errorf("untemplated story = %+v", list[1])
	}
	if list[0].Title != "Custom" {
		t.Errorf("explicit title should be kept, got %q", list[0].Title)
	}
	if list[3].Timestamp != "2025-01-02T03:04:06.006Z" {
		t.Errorf("Timestamp = %q", list[3].Timestamp)
	}

	got := s.Get(ctx, id2)
	if got == nil || got.Content != "two" {
		t.Fatalf("Get() = %+v", got)
	}
	if s.Get(ctx, "missing") != nil {
		t.Error("Get() of unknown id should be nil")
	}
}

func TestFileStoreNumberingAfterDelete(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)

	s.Save(ctx, "a", "Horror", "")
	id2 := s.Save(ctx, "b", "Horror", "")
	if !s.Delete(ctx, id2) {
		t.Fatal("Delete() failed")
	}
	id3 := s.Save(ctx, "c", "Horror", "")
	if got := s.Get(ctx, id3).Title; got != "Truyện - Horror - 2" {
		t.Errorf("title after delete = %q", got)
	}

	s.Save(ctx, "d", "Horror", "")
	first := s.List(ctx)[len(s.List(ctx))-1]
	if !s.Delete(ctx, first.ID) {
		t.Fatal("Delete() failed")
	}
	id5 := s.Save(ctx, "e", "Horror", "")
	if got := s.Get(ctx, id5).Title; got != "Truyện - Horror - 4" {
		t.Errorf("numbers should keep increasing, got %q", got)
	}
}

func TestFileStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	id := s.Save(ctx, "a", "T", "")

	if !s.Delete(ctx, "unknown") {
		t.Error("deleting an unknown id should succeed")
	}
	if len(s.List(ctx)) != 1 {
		t.Error("unknown delete should not remove anything")
	}
	if !s.Delete(ctx, id) || s.Get(ctx, id) != nil {
		t.Error("story should be gone")
	}
}

func TestFileStoreDocument(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	s.Save(ctx, "body", "T", "")

	raw, err := os.ReadFile(filepath.Join(s.Dir(), StoriesFile))
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{`"generated_stories"`, `"content"`, `"timestamp"`, `"id"`, `"title"`, `"templateName"`} {
		if !strings.Contains(string(raw), field) {
			t.Errorf("document missing %s", field)
		}
	}
}

func TestFileStoreCorruptDocument(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)
	if err := os.WriteFile(filepath.Join(s.Dir(), StoriesFile), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := s.List(ctx); got == nil || len(got) != 0 {
		t.Errorf("List() = %v, want empty slice", got)
	}
	if id := s.Save(ctx, "x", "", ""); id != "" {
		t.Error("Save() over a corrupt document should fail")
	}
	if s.Delete(ctx, "x") {
		t.Error("Delete() over a corrupt document should fail")
	}
}

func TestFileStoreSettings(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)

	if got := s.Language(ctx); got != "vi" {
		t.Errorf("default language = %q", got)
	}
	if !s.SetLanguage(ctx, "en") || s.Language(ctx) != "en" {
		t.Error("SetLanguage() did not persist")
	}

	if s.PromptOverride(ctx, "story.chapter") != nil {
		t.Error("expected no override")
	}
	if !s.SetPromptOverride(ctx, "story.chapter", "custom", "note") {
		t.Fatal("SetPromptOverride() failed")
	}
	o := s.PromptOverride(ctx, "story.chapter")
	if o == nil || o.Text != "custom" || o.Note != "note" || o.UpdatedAt.IsZero() {
		t.Fatalf("PromptOverride() = %+v", o)
	}
	if s.Language(ctx) != "en" {
		t.Error("override write should keep the language")
	}
	if !s.ClearPromptOverride(ctx, "story.chapter") || s.PromptOverride(ctx, "story.chapter") != nil {
		t.Error("override should be cleared")
	}
}

func TestFileStoreConcurrentSaves(t *testing.T) {
	ctx := context.Background()
	s := newFileStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Save(ctx, "x", "T", "")
		}()
	}
	wg.Wait()

	list := s.List(ctx)
	if len(list) != 20 {
		t.Fatalf("expected 20 stories, got %d", len(list))
	}
	seen := map[string]bool{}
	for _, st := range list {
		if seen[st.Title] {
			t.Errorf("duplicate title %q", st.Title)
		}
		seen[st.Title] = true
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), Config{Dir: t.TempDir()})
	if err != nil || s.Driver() != DriverFile {
		t.Fatalf("Open() = %v, %v", s, err)
	}
	if _, err := Open(context.Background(), Config{Driver: "bogus"}); err == nil {
		t.Error("expected error for unknown driver")
	}
	if _, err := Open(context.Background(), Config{Driver: DriverMySQL, DSN: ""}); err == nil {
		t.Error("expected error for empty dsn")
	}
}

func TestSQLStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TALESPIN_TEST_MYSQL_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("TALESPIN_TEST_MYSQL_DSN not set")
	}
	ctx := context.Background()
	s, err := NewSQLStore(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewSQLStore() error = %v", err)
	}
	defer s.Close()

	tmpl := "integration-" + time.Now().Format("150405.000")
	id1 := s.Save(ctx, "one", tmpl, "")
	id2 := s.Save(ctx, "two", tmpl, "")
	if id1 == "" || id2 == "" {
		t.Fatal("Save() failed")
	}
	if got := s.Get(ctx, id2); got == nil || got.Title != "Truyện - "+tmpl+" - 2" {
		t.Errorf("Get() = %+v", got)
	}
	if !s.Delete(ctx, id1) || !s.Delete(ctx, id2) || s.Get(ctx, id1) != nil {
		t.Error("Delete() failed")
	}

	if !s.SetPromptOverride(ctx, "story.summary", "x", "") || s.PromptOverride(ctx, "story.summary").Text != "x" {
		t.Error("override round trip failed")
	}
	if !s.SetPromptOverride(ctx, "story.summary", "y", "") || s.PromptOverride(ctx, "story.summary").Text != "y" {
		t.Error("override upsert failed")
	}
	s.ClearPromptOverride(ctx, "story.summary")
}

func TestIsLockConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadlock", &mysqldriver.MySQLError{Number: 1213}, true},
		{"lock wait timeout", fmt.Errorf("insert: %w", &mysqldriver.MySQLError{Number: 1205}), true},
		{"duplicate key", &mysqldriver.MySQLError{Number: 1062}, false},
		{"other", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isLockConflict(tt.err); got != tt.want {
				t.Errorf("isLockConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSQLStoreConcurrentSaves(t *testing.T) {
	dsn := os.Getenv("TALESPIN_TEST_MYSQL_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("TALESPIN_TEST_MYSQL_DSN not set")
	}
	ctx := context.Background()
	s, err := NewSQLStore(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewSQLStore() error = %v", err)
	}
	defer s.Close()

	tmpl := "concurrent-" + time.Now().Format("150405.000")
	ids := make([]string, 10)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = s.Save(ctx, "x", tmpl, "")
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		st := s.Get(ctx, id)
		if st == nil {
			t.Fatalf("Save() failed for one of the concurrent saves")
		}
		if seen[st.Title] {
			t.Errorf("duplicate title %q", st.Title)
		}
		seen[st.Title] = true
		s.Delete(ctx, id)
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount("## Chương 1\n\nMột  ngày\tđẹp trời."); got != 6 {
		t.Errorf("WordCount() = %d, want 6", got)
	}
	if got := WordCount("   "); got != 0 {
		t.Errorf("WordCount(blank) = %d, want 0", got)
	}
}
