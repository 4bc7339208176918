package prompts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnknownPrompt is returned for keys with no embedded default.
var ErrUnknownPrompt = errors.New("prompt not found")

// Resolver resolves prompts with global overrides.
// Resolution order: Override > Embedded default
type Resolver struct {
	store    OverrideStore
	embedded map[string]EmbeddedPrompt
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewResolver creates a new prompt resolver. A nil store disables overrides.
func NewResolver(store OverrideStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:    store,
		embedded: make(map[string]EmbeddedPrompt),
		logger:   logger,
	}
}

// Register registers an embedded prompt.
// This should be called during initialization by each prompt package.
func (r *Resolver) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Compute hash if not provided
	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}

	// Extract variables if not provided
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}

	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// Resolve returns the override for key if one exists, otherwise the embedded default.
func (r *Resolver) Resolve(ctx context.Context, key string) (*ResolvedPrompt, error) {
	r.mu.RLock()
	embedded, ok := r.embedded[key]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrompt, key)
	}

	resolved := &ResolvedPrompt{
		Key:          key,
		Text:         embedded.Text,
		Description:  embedded.Description,
		Variables:    embedded.Variables,
		EmbeddedHash: embedded.Hash,
	}

	if r.store != nil {
		if override := r.store.PromptOverride(ctx, key); override != nil {
			resolved.Text = override.Text
			resolved.Variables = ExtractVariables(override.Text)
			resolved.IsOverride = true
			resolved.Note = override.Note
			resolved.UpdatedAt = override.UpdatedAt
		}
	}
	return resolved, nil
}

// Render resolves key and executes it with data. An override that fails to
// render is logged and the embedded default is used instead.
func (r *Resolver) Render(ctx context.Context, key string, data any) (string, error) {
	resolved, err := r.Resolve(ctx, key)
	if err != nil {
		return "", err
	}

	out, err := Execute(key, resolved.Text, data)
	if err == nil || !resolved.IsOverride {
		return out, err
	}

	r.logger.Warn("prompt override failed to render, using embedded default", "key", key, "error", err)
	embedded, _ := r.GetEmbedded(key)
	return Execute(key, embedded.Text, data)
}

// SetOverride stores an override after checking that it parses.
func (r *Resolver) SetOverride(ctx context.Context, key, text, note string) error {
	if _, ok := r.GetEmbedded(key); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPrompt, key)
	}
	if r.store == nil {
		return errors.New("override store not configured")
	}
	if _, err := parseOnly(key, text); err != nil {
		return err
	}
	if !r.store.SetPromptOverride(ctx, key, text, note) {
		return fmt.Errorf("failed to save override for %s", key)
	}
	r.logger.Info("prompt override saved", "key", key)
	return nil
}

// ClearOverride removes the override for key, restoring the embedded default.
func (r *Resolver) ClearOverride(ctx context.Context, key string) error {
	if _, ok := r.GetEmbedded(key); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPrompt, key)
	}
	if r.store == nil {
		return errors.New("override store not configured")
	}
	if !r.store.ClearPromptOverride(ctx, key) {
		return fmt.Errorf("failed to clear override for %s", key)
	}
	r.logger.Info("prompt override cleared", "key", key)
	return nil
}

// GetEmbedded returns the embedded default for a key.
func (r *Resolver) GetEmbedded(key string) (*EmbeddedPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	return &p, ok
}

// AllEmbedded returns all registered embedded prompts, sorted by key.
func (r *Resolver) AllEmbedded() []EmbeddedPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EmbeddedPrompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// List resolves every registered prompt.
func (r *Resolver) List(ctx context.Context) []ResolvedPrompt {
	all := r.AllEmbedded()
	out := make([]ResolvedPrompt, 0, len(all))
	for _, p := range all {
		resolved, err := r.Resolve(ctx, p.Key)
		if err != nil {
			continue
		}
		out = append(out, *resolved)
	}
	return out
}
