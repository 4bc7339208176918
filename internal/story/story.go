// Package story streams AI-written stories chapter by chapter.
//
// A Generator walks a template's chapters in ascending order. Each chapter
// prompt carries the running summary of the chapters before it; after a
// chapter finishes, a non-streamed summary call extends that summary for the
// next one. Output is pulled from a Stream as Fragments.
package story

// DefaultWordCount is the target story length when the form leaves it unset.
const DefaultWordCount = 8000

// Fragment kinds.
const (
	KindChapter = "chapter"
	KindText    = "text"
	KindError   = "error"
)

// FormData is the user's input for one generation. Chapters maps template
// field ids to the values typed or picked for them.
type FormData struct {
	Topic             string            `json:"topic"`
	NarrativeStyle    string            `json:"narrativeStyle"`
	MainCharacterName string            `json:"mainCharacterName"`
	MainCharacterDesc string            `json:"mainCharacterDesc"`
	Setting           string            `json:"setting"`
	SettingDesc       string            `json:"settingDesc"`
	Chapters          map[string]string `json:"chapters"`
	WordCount         int               `json:"wordCount"`
}

// Fragment is one piece of streamed output.
//
// A chapter fragment marks the start of a chapter and carries its heading
// as Text. An error fragment carries the inline notice shown to the reader.
type Fragment struct {
	Kind    string `json:"type"`
	Chapter int    `json:"chapter,omitempty"`
	Title   string `json:"title,omitempty"`
	Text    string `json:"text"`
}
