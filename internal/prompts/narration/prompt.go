// Package narration holds the delivery instruction sent with speech requests.
package narration

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"

	"github.com/jackzampolin/talespin/internal/prompts"
)

//go:embed speech.tmpl
var speechPromptTmpl string

var speechTemplate = template.Must(template.New("speech").Parse(speechPromptTmpl))

// SpeechPromptKey identifies the narration instruction.
const SpeechPromptKey = "tts.speech"

// SpeechData selects the instruction language.
type SpeechData struct {
	Language string
}

// SpeechInstruction renders the embedded instruction for lang.
func SpeechInstruction(lang string) string {
	var buf bytes.Buffer
	if err := speechTemplate.Execute(&buf, SpeechData{Language: lang}); err != nil {
		return speechPromptTmpl
	}
	return strings.TrimSpace(buf.String())
}

// RegisterPrompts registers the narration prompt with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         SpeechPromptKey,
		Text:        speechPromptTmpl,
		Description: "Narration delivery instruction sent with every speech chunk",
	})
}
