package story

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/talespin/internal/prompts"
	"github.com/jackzampolin/talespin/internal/providers"
	"github.com/jackzampolin/talespin/internal/templates"
)

const summaryMarker = "Summarize the following story chapter"

func testTemplate() *templates.Template {
	return &templates.Template{
		ID:       "test",
		Name:     "Test",
		Chapters: map[int]string{2: "Second", 1: "First", 3: "Third"},
		Fields: []templates.Field{
			{ID: "clue", Label: "Clue", Type: templates.FieldText, Chapter: 2},
		},
	}
}

func isSummary(req *providers.ChatRequest) bool {
	return strings.HasPrefix(req.Messages[0].Content, summaryMarker)
}

// scripted answers chapter prompts with "chapter N text" and summaries with "sN".
func scripted() *providers.MockClient {
	m := providers.NewMockClient()
	var chapters, summaries atomic.Int32
	m.Respond = func(req *providers.ChatRequest) (string, error) {
		if isSummary(req) {
			return "s" + string(rune('0'+summaries.Add(1))), nil
		}
		return "chapter " + string(rune('0'+chapters.Add(1))) + " text", nil
	}
	return m
}

func drain(s *Stream) []Fragment {
	var out []Fragment
	for {
		f, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

func TestStreamOrderAndSummaries(t *testing.T) {
	m := scripted()
	g := NewGenerator(m, WithLanguage("en"))
	form := FormData{Topic: "ghosts", WordCount: 3000, Chapters: map[string]string{"clue": "a red glove"}}

	s := g.Stream(context.Background(), form, testTemplate(), "test-model")
	frags := drain(s)
	if err := s.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}

	var titles []string
	for _, f := range frags {
		if f.Kind == KindChapter {
			titles = append(titles, f.Title)
		}
		if f.Kind == KindError {
			t.Fatalf("unexpected error fragment %q", f.Text)
		}
	}
	if strings.Join(titles, ",") != "First,Second,Third" {
		t.Errorf("chapters out of order: %v", titles)
	}

	want := "## First\n\nchapter 1 text\n\n## Second\n\nchapter 2 text\n\n## Third\n\nchapter 3 text"
	if got := s.Content(); got != want {
		t.Errorf("Content() = %q, want %q", got, want)
	}

	reqs := m.ChatRequests()
	if len(reqs) != 6 {
		t.Fatalf("expected 6 requests (3 chapters + 3 summaries), got %d", len(reqs))
	}
	nothing := prompts.PhrasesFor("en").NothingHappened

	ch1, ch2, ch3 := reqs[0].Messages[0].Content, reqs[2].Messages[0].Content, reqs[4].Messages[0].Content
	if !strings.Contains(ch1, "**Summary of Previous Chapters:**\n"+nothing+"\n") {
		t.Error("first chapter should start from the empty summary")
	}
	if !strings.Contains(ch2, nothing+" s1\n") || strings.Contains(ch2, "s2") {
		t.Error("second chapter should carry only the first summary")
	}
	if !strings.Contains(ch3, nothing+" s1 s2\n") {
		t.Error("third chapter should carry both earlier summaries")
	}
	if !strings.Contains(ch1, "approximately 1000 words") {
		t.Error("words per chapter should be total / chapters")
	}
	if !strings.Contains(ch2, "- **Clue:** a red glove") {
		t.Error("chapter structure should include form values")
	}
	if reqs[0].Model != "test-model" {
		t.Errorf("model = %q", reqs[0].Model)
	}
	if !strings.HasSuffix(reqs[1].Messages[0].Content, "chapter 1 text") {
		t.Error("summary prompt should contain the chapter text")
	}
}

func TestStreamDefaults(t *testing.T) {
	m := scripted()
	g := NewGenerator(m, WithLanguage("en"))
	s := g.Stream(context.Background(), FormData{}, testTemplate(), "")
	drain(s)

	prompt := m.ChatRequests()[0].Messages[0].Content
	if !strings.Contains(prompt, "8000 words for the entire story") {
		t.Error("expected default total length")
	}
	if !strings.Contains(prompt, "approximately 2666 words") {
		t.Error("expected floored words per chapter")
	}
	if !strings.Contains(prompt, prompts.PhrasesFor("en").DefaultStyle) {
		t.Error("expected default narrative style")
	}
}

func TestStreamChapterFailure(t *testing.T) {
	m := providers.NewMockClient()
	var calls atomic.Int32
	m.Respond = func(req *providers.ChatRequest) (string, error) {
		if isSummary(req) {
			return "sum", nil
		}
		if calls.Add(1) == 2 {
			return "", errors.New("upstream exploded")
		}
		return "ok", nil
	}

	s := NewGenerator(m, WithLanguage("en")).Stream(context.Background(), FormData{}, testTemplate(), "")
	frags := drain(s)

	last := frags[len(frags)-1]
	if last.Kind != KindError {
		t.Fatalf("last fragment kind = %q, want error", last.Kind)
	}
	if last.Text != "\n\nError generating Second. Please try again.\n\n" {
		t.Errorf("error text = %q", last.Text)
	}
	if s.Err() == nil || !strings.Contains(s.Err().Error(), "upstream exploded") {
		t.Errorf("Err() = %v", s.Err())
	}
	for _, f := range frags {
		if f.Title == "Third" {
			t.Error("generation should stop after a failed chapter")
		}
	}
	if _, ok := s.Next(); ok {
		t.Error("stream should stay finished")
	}
}

func TestStreamSummaryFailure(t *testing.T) {
	m := providers.NewMockClient()
	m.Respond = func(req *providers.ChatRequest) (string, error) {
		if isSummary(req) {
			return "", errors.New("summary down")
		}
		return "body", nil
	}
	s := NewGenerator(m, WithLanguage("vi")).Stream(context.Background(), FormData{}, testTemplate(), "")
	frags := drain(s)

	last := frags[len(frags)-1]
	if last.Kind != KindError || last.Title != "First" {
		t.Fatalf("expected error on first chapter, got %+v", last)
	}
	if len(m.ChatRequests()) != 2 {
		t.Errorf("expected 2 requests, got %d", len(m.ChatRequests()))
	}
}

func TestStreamMidStreamError(t *testing.T) {
	m := providers.NewMockClient()
	m.ResponseText = "partial words"
	m.StreamErr = errors.New("connection reset")

	s := NewGenerator(m, WithLanguage("en")).Stream(context.Background(), FormData{}, testTemplate(), "")
	frags := drain(s)
	if frags[len(frags)-1].Kind != KindError {
		t.Fatal("expected trailing error fragment")
	}
	if !strings.Contains(s.Content(), "partial words") {
		t.Error("text streamed before the failure should be kept")
	}
}

func TestStreamCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := providers.NewMockClient()
	m.Respond = func(req *providers.ChatRequest) (string, error) {
		if isSummary(req) {
			cancel()
			return "sum", nil
		}
		return "text", nil
	}

	s := NewGenerator(m).Stream(ctx, FormData{}, testTemplate(), "")
	frags := drain(s)
	if !errors.Is(s.Err(), context.Canceled) {
		t.Fatalf("Err() = %v, want context.Canceled", s.Err())
	}
	for _, f := range frags {
		if f.Kind == KindError {
			t.Error("cancellation should not yield an error notice")
		}
	}
}

func TestGenerateWithRetry(t *testing.T) {
	t.Run("succeeds after failure", func(t *testing.T) {
		m := providers.NewMockClient()
		var attempts atomic.Int32
		m.Respond = func(req *providers.ChatRequest) (string, error) {
			if isSummary(req) {
				return "sum", nil
			}
			if attempts.Add(1) == 1 {
				return "", errors.New("flaky")
			}
			return "fine", nil
		}
		g := NewGenerator(m, WithRetry(3, time.Millisecond))
		out, err := g.GenerateWithRetry(context.Background(), FormData{}, testTemplate(), "")
		if err != nil {
			t.Fatalf("GenerateWithRetry() error = %v", err)
		}
		if strings.Contains(out, "flaky") || !strings.Contains(out, "fine") {
			t.Errorf("unexpected content %q", out)
		}
	})

	t.Run("returns last error", func(t *testing.T) {
		m := providers.NewMockClient()
		m.ShouldFail = true
		m.FailErr = errors.New("always down")
		g := NewGenerator(m, WithRetry(3, time.Millisecond))
		_, err := g.GenerateWithRetry(context.Background(), FormData{}, testTemplate(), "")
		if err == nil || !strings.Contains(err.Error(), "always down") {
			t.Fatalf("expected last error, got %v", err)
		}
		if got := len(m.ChatRequests()); got != 3 {
			t.Errorf("expected 3 attempts, got %d", got)
		}
	})

	t.Run("empty content fails", func(t *testing.T) {
		m := providers.NewMockClient()
		g := NewGenerator(m, WithRetry(2, time.Millisecond))
		_, err := g.GenerateWithRetry(context.Background(), FormData{}, &templates.Template{ID: "empty"}, "")
		if err == nil {
			t.Fatal("expected error for a story with no content")
		}
	})
}
