package story

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackzampolin/talespin/internal/prompts"
	"github.com/jackzampolin/talespin/internal/prompts/chapter"
	"github.com/jackzampolin/talespin/internal/providers"
	"github.com/jackzampolin/talespin/internal/templates"
)

// Stream is a pull-based story generation.
//
//	for {
//		f, ok := s.Next()
//		if !ok {
//			break
//		}
//		fmt.Print(f.Text)
//	}
//	if err := s.Err(); err != nil { ... }
//
// A Stream is not safe for concurrent use.
type Stream struct {
	g       *Generator
	ctx     context.Context
	form    FormData
	tmpl    *templates.Template
	model   string
	phrases prompts.Phrases

	chapters   []int
	idx        int
	total      int
	perChapter int
	summary    string

	cur     providers.TextStream
	chapter strings.Builder
	content strings.Builder
	pending []Fragment
	err     error
	done    bool
}

// Next returns the next fragment, or false once the story is finished or has
// failed.
func (s *Stream) Next() (Fragment, bool) {
	for {
		if len(s.pending) > 0 {
			f := s.pending[0]
			s.pending = s.pending[1:]
			s.content.WriteString(f.Text)
			return f, true
		}
		if s.done {
			return Fragment{}, false
		}

		if s.cur != nil {
			if s.cur.Next() {
				text := s.cur.Current()
				if text == "" {
					continue
				}
				s.chapter.WriteString(text)
				s.content.WriteString(text)
				return Fragment{Kind: KindText, Chapter: s.chapters[s.idx], Text: text}, true
			}
			err := s.cur.Err()
			_ = s.cur.Close()
			s.cur = nil
			if err != nil {
				s.fail(err)
				continue
			}
			if err := s.summarize(); err != nil {
				s.fail(err)
				continue
			}
			s.idx++
			continue
		}

		if s.idx >= len(s.chapters) {
			s.done = true
			continue
		}
		s.startChapter()
	}
}

// Err returns the cause of a failed or cancelled generation.
func (s *Stream) Err() error {
	return s.err
}

// Content returns everything yielded so far.
func (s *Stream) Content() string {
	return s.content.String()
}

// Collect drains the stream and returns the full text. An error fragment
// makes Collect fail with the underlying cause.
func (s *Stream) Collect() (string, error) {
	for {
		if _, ok := s.Next(); !ok {
			break
		}
	}
	return s.Content(), s.Err()
}

// Close releases an in-flight model stream and ends the generation.
func (s *Stream) Close() error {
	s.done = true
	s.pending = nil
	if s.cur != nil {
		err := s.cur.Close()
		s.cur = nil
		return err
	}
	return nil
}

func (s *Stream) startChapter() {
	if err := s.ctx.Err(); err != nil {
		s.fail(err)
		return
	}

	num := s.chapters[s.idx]
	title := s.tmpl.Chapters[num]
	s.chapter.Reset()

	heading := "## " + title + "\n\n"
	if s.idx > 0 {
		heading = "\n\n" + heading
	}
	s.pending = append(s.pending, Fragment{Kind: KindChapter, Chapter: num, Title: title, Text: heading})

	style := s.form.NarrativeStyle
	if strings.TrimSpace(style) == "" {
		style = s.phrases.DefaultStyle
	}
	prompt := s.g.chapterPrompt(s.ctx, chapter.Data{
		Phrases:           s.phrases,
		Topic:             s.form.Topic,
		Style:             style,
		TotalWords:        s.total,
		WordsPerChapter:   s.perChapter,
		MainCharacterName: s.form.MainCharacterName,
		MainCharacterDesc: s.form.MainCharacterDesc,
		SettingName:       s.form.Setting,
		SettingDesc:       s.form.SettingDesc,
		Summary:           s.summary,
		ChapterTitle:      title,
		Structure:         chapter.BuildChapterStructure(num, s.tmpl, s.form.Chapters, s.phrases),
	})

	stream, err := s.g.llm.ChatStream(s.ctx, &providers.ChatRequest{
		Model:    s.model,
		Messages: []providers.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		s.fail(err)
		return
	}
	s.cur = stream
	s.g.logger.Debug("generating chapter", "chapter", num, "title", title, "words", s.perChapter)
}

func (s *Stream) summarize() error {
	result, err := s.g.llm.Chat(s.ctx, &providers.ChatRequest{
		Model:    s.model,
		Messages: []providers.Message{{Role: "user", Content: s.g.summaryPrompt(s.ctx, s.chapter.String())}},
	})
	if err != nil {
		return fmt.Errorf("failed to summarize chapter %d: %w", s.chapters[s.idx], err)
	}
	s.summary += " " + result.Content
	return nil
}

// fail ends the stream. A cancelled context ends it silently; any other
// failure queues the localized notice for the current chapter.
func (s *Stream) fail(err error) {
	s.done = true
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		s.err = ctxErr
		s.pending = nil
		return
	}

	num := s.chapters[s.idx]
	title := s.tmpl.Chapters[num]
	s.err = fmt.Errorf("chapter %d (%s): %w", num, title, err)
	s.g.logger.Error("story generation failed", "chapter", num, "error", err)
	s.pending = append(s.pending, Fragment{
		Kind:    KindError,
		Chapter: num,
		Title:   title,
		Text:    fmt.Sprintf("\n\n%s %s. %s\n\n", s.phrases.ErrorGenerating, title, s.phrases.PleaseRetry),
	})
}
