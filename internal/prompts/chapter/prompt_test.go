package chapter

import (
	"context"
	"strings"
	"testing"

	"github.com/jackzampolin/talespin/internal/prompts"
	"github.com/jackzampolin/talespin/internal/templates"
)

func testTemplate() *templates.Template {
	return &templates.Template{
		ID:       "t",
		Chapters: map[int]string{1: "One", 2: "Two"},
		Fields: []templates.Field{
			{ID: "place", Label: "Place", Type: templates.FieldSelect, Options: []string{"Village"}, Chapter: 1, Description: "Where it happens"},
			{ID: "hero", Label: "Hero", Type: templates.FieldText, Placeholder: "Minh", Chapter: 1},
			{ID: "mood", Label: "Mood", Type: templates.FieldText, Chapter: 1},
		},
	}
}

func TestBuildChapterStructure(t *testing.T) {
	p := prompts.PhrasesFor("en")
	tmpl := testTemplate()

	t.Run("no fields", func(t *testing.T) {
		if got := BuildChapterStructure(2, tmpl, nil, p); got != p.NoSpecificDetails {
			t.Errorf("expected no-details phrase, got %q", got)
		}
	})

	t.Run("values and fallbacks", func(t *testing.T) {
		got := BuildChapterStructure(1, tmpl, map[string]string{"place": "Temple"}, p)
		want := p.DetailsToFollow + "\n" +
			"\n- **Place:** Temple\n  (Where it happens)" +
			"\n- **Hero:** Minh" +
			"\n- **Mood:** " + p.NothingHappened
		if got != want {
			t.Errorf("BuildChapterStructure() =\n%q\nwant\n%q", got, want)
		}
	})
}

func TestChapterPrompt(t *testing.T) {
	d := Data{
		Phrases:           prompts.PhrasesFor("en"),
		Topic:             "A haunted temple",
		Style:             "noir",
		TotalWords:        3000,
		WordsPerChapter:   500,
		MainCharacterName: "Lan",
		MainCharacterDesc: "a detective",
		SettingName:       "Hue",
		SettingDesc:       "rainy",
		Summary:           "Nothing has happened yet.",
		ChapterTitle:      "Chapter 1: Start",
		Structure:         "STRUCTURE",
	}
	out := ChapterPrompt(d)

	for _, want := range []string{
		"You are a master novelist",
		"- **Theme:** A haunted temple",
		"- **Narrative Style:** noir",
		"- **Desired Total Length:** 3000 words for the entire story.",
		"- **Main Character:** Lan, a detective.",
		"- **Setting:** Hue, rainy.",
		"**Summary of Previous Chapters:**\nNothing has happened yet.",
		"**Requirements for Current Chapter (Chapter 1: Start):**",
		"approximately 500 words. Don't just summarize.",
		"---\nSTRUCTURE\n---",
		"Begin writing content for Chapter 1: Start:",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("chapter prompt missing %q", want)
		}
	}
}

func TestSummaryPrompt(t *testing.T) {
	got := SummaryPrompt("the chapter")
	want := "Summarize the following story chapter content in 20-30 concise sentences for use in writing the next chapter. Only provide the summary, don't add any introductory words:\n\nthe chapter"
	if got != want {
		t.Errorf("SummaryPrompt() = %q", got)
	}
}

func TestRegisterPrompts(t *testing.T) {
	r := prompts.NewResolver(nil, nil)
	RegisterPrompts(r)

	out, err := r.Render(context.Background(), SummaryPromptKey, SummaryData{Content: "x"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != SummaryPrompt("x") {
		t.Error("resolver rendering should match the embedded helper")
	}

	p, ok := r.GetEmbedded(ChapterPromptKey)
	if !ok {
		t.Fatal("chapter prompt not registered")
	}
	if !contains(p.Variables, "WordsPerChapter") || !contains(p.Variables, "MasterNovelist") {
		t.Errorf("unexpected variables %v", p.Variables)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
