package prompts

import (
	"context"
	"fmt"
	"regexp"
)

// validKeyPattern matches valid prompt keys (alphanumeric with dots, underscores).
var validKeyPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._]*$`)

// ValidateKey rejects malformed prompt keys before they reach storage.
func ValidateKey(key string) error {
	if !validKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid prompt key: %s", key)
	}
	return nil
}

// OverrideStore persists prompt overrides.
// Implementations are best-effort: failures are logged and reported as
// nil or false rather than returned.
type OverrideStore interface {
	PromptOverride(ctx context.Context, key string) *Override
	SetPromptOverride(ctx context.Context, key, text, note string) bool
	ClearPromptOverride(ctx context.Context, key string) bool
}
