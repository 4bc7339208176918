package prompts

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a language has no phrase catalog.
const DefaultLanguage = "vi"

//go:embed phrases/*.yaml
var phraseFS embed.FS

// Phrases is the localized vocabulary prompts are assembled from.
type Phrases struct {
	Language                   string `yaml:"language"`
	MasterNovelist             string `yaml:"master_novelist"`
	MissionDescription         string `yaml:"mission_description"`
	StoryOverview              string `yaml:"story_overview"`
	Theme                      string `yaml:"theme"`
	NarrativeStyle             string `yaml:"narrative_style"`
	TotalLength                string `yaml:"total_length"`
	MainCharacter              string `yaml:"main_character"`
	Setting                    string `yaml:"setting"`
	PreviousChaptersSummary    string `yaml:"previous_chapters_summary"`
	CurrentChapterRequirements string `yaml:"current_chapter_requirements"`
	WriteFullContent           string `yaml:"write_full_content"`
	WritingGuidelines          string `yaml:"writing_guidelines"`
	BeginWriting               string `yaml:"begin_writing"`
	DetailsToFollow            string `yaml:"details_to_follow"`
	NoSpecificDetails          string `yaml:"no_specific_details"`
	NothingHappened            string `yaml:"nothing_happened"`
	OnlyResult                 string `yaml:"only_result"`
	ErrorGenerating            string `yaml:"error_generating"`
	PleaseRetry                string `yaml:"please_retry"`
	DefaultStyle               string `yaml:"default_style"`
}

var (
	phrasesOnce sync.Once
	phraseSets  map[string]Phrases
	phrasesErr  error
)

func loadPhrases() {
	phraseSets = make(map[string]Phrases)
	entries, err := phraseFS.ReadDir("phrases")
	if err != nil {
		phrasesErr = fmt.Errorf("failed to list phrase catalogs: %w", err)
		return
	}
	for _, e := range entries {
		raw, err := phraseFS.ReadFile("phrases/" + e.Name())
		if err != nil {
			phrasesErr = fmt.Errorf("failed to read %s: %w", e.Name(), err)
			return
		}
		var p Phrases
		if err := yaml.Unmarshal(raw, &p); err != nil {
			phrasesErr = fmt.Errorf("failed to decode %s: %w", e.Name(), err)
			return
		}
		phraseSets[p.Language] = p
	}
	if _, ok := phraseSets[DefaultLanguage]; !ok {
		phrasesErr = fmt.Errorf("missing phrase catalog for %q", DefaultLanguage)
	}
}

// PhrasesFor returns the phrase catalog for lang, falling back to DefaultLanguage.
// It panics if the embedded catalogs are malformed.
func PhrasesFor(lang string) Phrases {
	phrasesOnce.Do(loadPhrases)
	if phrasesErr != nil {
		panic(phrasesErr)
	}
	if p, ok := phraseSets[strings.ToLower(strings.TrimSpace(lang))]; ok {
		return p
	}
	return phraseSets[DefaultLanguage]
}
