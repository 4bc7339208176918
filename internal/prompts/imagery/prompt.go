// Package imagery holds the system instructions for the image prompt pipeline.
package imagery

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/jackzampolin/talespin/internal/prompts"
)

//go:embed master.tmpl
var masterPrompt string

//go:embed segment.tmpl
var segmentPrompt string

//go:embed sanitize.tmpl
var sanitizePrompt string

//go:embed sanitize_user.tmpl
var sanitizeUserTmpl string

var sanitizeUserTemplate = template.Must(template.New("sanitize_user").Parse(sanitizeUserTmpl))

// Prompt keys
const (
	MasterPromptKey       = "images.master.system"
	SegmentPromptKey      = "images.segment.system"
	SanitizePromptKey     = "images.sanitize.system"
	SanitizeUserPromptKey = "images.sanitize.user"
)

// MasterPrompt returns the system instruction that distills a whole story
// into a consistency prompt.
func MasterPrompt() string {
	return masterPrompt
}

// SegmentPrompt returns the system instruction for one segment's scene prompt.
func SegmentPrompt() string {
	return segmentPrompt
}

// SanitizePrompt returns the system instruction for rewriting a rejected prompt.
func SanitizePrompt() string {
	return sanitizePrompt
}

// SanitizeData fills the sanitize user message.
type SanitizeData struct {
	Prompt string
}

// SanitizeUserPrompt wraps a rejected prompt for the sanitize call.
func SanitizeUserPrompt(rejected string) string {
	var buf bytes.Buffer
	if err := sanitizeUserTemplate.Execute(&buf, SanitizeData{Prompt: rejected}); err != nil {
		return sanitizeUserTmpl
	}
	return buf.String()
}

// RegisterPrompts registers the imagery prompts with the resolver.
func RegisterPrompts(r *prompts.Resolver) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         MasterPromptKey,
		Text:        masterPrompt,
		Description: "Master prompt system instruction - characters and world for visual consistency",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         SegmentPromptKey,
		Text:        segmentPrompt,
		Description: "Segment prompt system instruction - one scene per story segment",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         SanitizePromptKey,
		Text:        sanitizePrompt,
		Description: "Sanitize system instruction - rewrites prompts rejected by the image model",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         SanitizeUserPromptKey,
		Text:        sanitizeUserTmpl,
		Description: "Sanitize user message template",
	})
}
