// Package prompts provides prompt management with embedded defaults and global overrides.
//
// The package supports a hybrid model where:
//   - Embedded .tmpl files in code are the source of truth for defaults
//   - An Override, persisted by the storage layer, replaces a default by key
//
// Resolution order:
//  1. Override (if one exists for the key)
//  2. Embedded default (from .tmpl files in code)
//
// Subpackages own the prompts for one concern each (chapter, imagery,
// narration) and register them with a Resolver at startup.
package prompts

import (
	"time"
)

// Override represents a user customization of an embedded prompt.
type Override struct {
	Key       string    `json:"key"`
	Text      string    `json:"text"`
	Note      string    `json:"note,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResolvedPrompt is the result of resolving a prompt key.
type ResolvedPrompt struct {
	Key          string    `json:"key"`
	Text         string    `json:"text"`
	Description  string    `json:"description,omitempty"`
	Variables    []string  `json:"variables,omitempty"`
	IsOverride   bool      `json:"is_override"`
	EmbeddedHash string    `json:"embedded_hash"`
	Note         string    `json:"note,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

// EmbeddedPrompt represents a prompt loaded from an embedded .tmpl file.
type EmbeddedPrompt struct {
	Key         string   // Hierarchical key: story.chapter
	Text        string   // The prompt text (Go template)
	Description string   // Human-readable description
	Variables   []string // Extracted template variables
	Hash        string   // SHA256 hash of the text for change detection
}
