package prompts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type memoryOverrides struct {
	mu        sync.Mutex
	overrides map[string]*Override
	failWrite bool
}

func newMemoryOverrides() *memoryOverrides {
	return &memoryOverrides{overrides: make(map[string]*Override)}
}

func (m *memoryOverrides) PromptOverride(ctx context.Context, key string) *Override {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overrides[key]
}

func (m *memoryOverrides) SetPromptOverride(ctx context.Context, key, text, note string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return false
	}
	m.overrides[key] = &Override{Key: key, Text: text, Note: note, UpdatedAt: time.Now()}
	return true
}

func (m *memoryOverrides) ClearPromptOverride(ctx context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, key)
	return true
}

func newTestResolver(store OverrideStore) *Resolver {
	r := NewResolver(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r.Register(EmbeddedPrompt{Key: "test.greeting", Text: "Hello {{.Name}}", Description: "greeting"})
	r.Register(EmbeddedPrompt{Key: "test.static", Text: "No variables here"})
	return r
}

func TestResolver_Register(t *testing.T) {
	r := newTestResolver(nil)

	p, ok := r.GetEmbedded("test.greeting")
	if !ok {
		t.Fatal("expected registered prompt")
	}
	if p.Hash != HashText("Hello {{.Name}}") {
		t.Error("expected hash to be computed")
	}
	if len(p.Variables) != 1 || p.Variables[0] != "Name" {
		t.Errorf("expected [Name], got %v", p.Variables)
	}

	all := r.AllEmbedded()
	if len(all) != 2 || all[0].Key != "test.greeting" {
		t.Errorf("expected sorted prompts, got %v", all)
	}
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("embedded default without store", func(t *testing.T) {
		r := newTestResolver(nil)
		resolved, err := r.Resolve(ctx, "test.greeting")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if resolved.IsOverride || resolved.Text != "Hello {{.Name}}" {
			t.Errorf("unexpected resolution %+v", resolved)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		r := newTestResolver(nil)
		if _, err := r.Resolve(ctx, "nope"); !errors.Is(err, ErrUnknownPrompt) {
			t.Errorf("expected ErrUnknownPrompt, got %v", err)
		}
	})

	t.Run("override wins", func(t *testing.T) {
		store := newMemoryOverrides()
		r := newTestResolver(store)
		if err := r.SetOverride(ctx, "test.greeting", "Hi {{.Name}} and {{.Friend}}", "friendlier"); err != nil {
			t.Fatalf("SetOverride() error = %v", err)
		}

		resolved, _ := r.Resolve(ctx, "test.greeting")
		if !resolved.IsOverride || resolved.Note != "friendlier" {
			t.Errorf("expected override, got %+v", resolved)
		}
		if strings.Join(resolved.Variables, ",") != "Friend,Name" {
			t.Errorf("expected override variables, got %v", resolved.Variables)
		}

		if err := r.ClearOverride(ctx, "test.greeting"); err != nil {
			t.Fatalf("ClearOverride() error = %v", err)
		}
		resolved, _ = r.Resolve(ctx, "test.greeting")
		if resolved.IsOverride {
			t.Error("expected embedded default after clear")
		}
	})
}

func TestResolver_SetOverride(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects unknown key", func(t *testing.T) {
		r := newTestResolver(newMemoryOverrides())
		if err := r.SetOverride(ctx, "missing", "x", ""); !errors.Is(err, ErrUnknownPrompt) {
			t.Errorf("expected ErrUnknownPrompt, got %v", err)
		}
	})

	t.Run("rejects unparsable template", func(t *testing.T) {
		r := newTestResolver(newMemoryOverrides())
		if err := r.SetOverride(ctx, "test.greeting", "Hello {{.Name", ""); !errors.Is(err, ErrInvalidTemplate) {
			t.Errorf("expected ErrInvalidTemplate, got %v", err)
		}
	})

	t.Run("reports store failure", func(t *testing.T) {
		store := newMemoryOverrides()
		store.failWrite = true
		r := newTestResolver(store)
		if err := r.SetOverride(ctx, "test.greeting", "Hey", ""); err == nil {
			t.Error("expected error when store fails")
		}
	})

	t.Run("requires store", func(t *testing.T) {
		r := newTestResolver(nil)
		if err := r.SetOverride(ctx, "test.greeting", "Hey", ""); err == nil {
			t.Error("expected error without store")
		}
	})
}

func TestResolver_Render(t *testing.T) {
	ctx := context.Background()
	data := struct{ Name string }{Name: "Lan"}

	t.Run("renders embedded", func(t *testing.T) {
		r := newTestResolver(nil)
		out, err := r.Render(ctx, "test.greeting", data)
		if err != nil || out != "Hello Lan" {
			t.Errorf("Render() = %q, %v", out, err)
		}
	})

	t.Run("broken override falls back", func(t *testing.T) {
		store := newMemoryOverrides()
		store.overrides["test.greeting"] = &Override{Key: "test.greeting", Text: "Hi {{.Missing}}"}
		r := newTestResolver(store)

		out, err := r.Render(ctx, "test.greeting", data)
		if err != nil || out != "Hello Lan" {
			t.Errorf("expected fallback to embedded, got %q, %v", out, err)
		}
	})
}

func TestResolver_List(t *testing.T) {
	store := newMemoryOverrides()
	r := newTestResolver(store)
	r.SetOverride(context.Background(), "test.static", "Overridden", "")

	list := r.List(context.Background())
	if len(list) != 2 {
		t.Fatalf("expected 2 prompts, got %d", len(list))
	}
	if list[0].IsOverride || !list[1].IsOverride {
		t.Errorf("unexpected override flags: %+v", list)
	}
	if list[1].EmbeddedHash != HashText("No variables here") {
		t.Error("expected embedded hash to be reported for overridden prompt")
	}
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"story.chapter", "images.master.system", "a_b"} {
		if err := ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) = %v", key, err)
		}
	}
	for _, key := range []string{"", "1abc", "bad key", "x/y"} {
		if err := ValidateKey(key); err == nil {
			t.Errorf("ValidateKey(%q) should fail", key)
		}
	}
}
