// Package chapter builds the per-chapter story prompts.
package chapter

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"github.com/jackzampolin/talespin/internal/prompts"
	"github.com/jackzampolin/talespin/internal/templates"
)

//go:embed chapter.tmpl
var chapterPromptTmpl string

//go:embed summary.tmpl
var summaryPromptTmpl string

var (
	chapterTemplate = template.Must(template.New("chapter").Parse(chapterPromptTmpl))
	summaryTemplate = template.Must(template.New("summary").Parse(summaryPromptTmpl))
)

// Prompt keys
const (
	ChapterPromptKey = "story.chapter"
	SummaryPromptKey = "story.summary"
)

// Data fills the chapter prompt. The embedded Phrases supply the localized
// headings; Setting is taken by the phrase, so the setting value is SettingName.
type Data struct {
	prompts.Phrases

	Topic             string
	Style             string
	TotalWords        int
	WordsPerChapter   int
	MainCharacterName string
	MainCharacterDesc string
	SettingName       string
	SettingDesc       string
	Summary           string
	ChapterTitle      string
	Structure         string
}

// SummaryData fills the summary prompt.
type SummaryData struct {
	Content string
}

// ChapterPrompt renders the embedded chapter prompt.
func ChapterPrompt(d Data) string {
	var buf bytes.Buffer
	if err := chapterTemplate.Execute(&buf, d); err != nil {
		// Fallback to raw template on error
		return chapterPromptTmpl
	}
	return buf.String()
}

// SummaryPrompt renders the embedded summary prompt for a finished chapter.
func SummaryPrompt(content string) string {
	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, SummaryData{Content: content}); err != nil {
		return summaryPromptTmpl
	}
	return buf.String()
}

// BuildChapterStructure lists the field values that steer chapter n.
// A field without a value falls back to its placeholder, then to the
// localized "nothing happened" phrase.
func BuildChapterStructure(n int, t *templates.Template, values map[string]string, p prompts.Phrases) string {
	fields := t.FieldsForChapter(n)
	if len(fields) == 0 {
		return p.NoSpecificDetails
	}

	var sb strings.Builder
	sb.WriteString(p.DetailsToFollow)
	sb.WriteString("\n")
	for _, f := range fields {
		value := values[f.ID]
		if value == "" {
			value = f.Placeholder
		}
		if value == "" {
			value = p.NothingHappened
		}
		sb.WriteString("\n- **")
		sb.WriteString(f.Label)
		sb.WriteString(":** ")
		sb.WriteString(value)
		if f.Description != "" {
			sb.WriteString("\n  (")
			sb.WriteString(f.Description)
			sb.WriteString(")")
		}
	}
	return sb.String()
}

// RegisterPrompts registers the chapter prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         ChapterPromptKey,
		Text:        chapterPromptTmpl,
		Description: "Chapter writing prompt - theme, style, running summary and chapter structure",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         SummaryPromptKey,
		Text:        summaryPromptTmpl,
		Description: "Chapter summary prompt - condenses a finished chapter for the next one",
	})
}
