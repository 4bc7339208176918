package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// DefaultLanguage is used when a requested language has no catalog.
const DefaultLanguage = "vi"

// ErrNotFound is returned for an unknown template id.
var ErrNotFound = errors.New("template not found")

//go:embed data/*.yaml data/schema.json
var catalogFS embed.FS

type catalog struct {
	Language  string     `yaml:"language"`
	Templates []Template `yaml:"templates"`
}

// Registry serves templates by language and id.
type Registry struct {
	catalogs map[string][]*Template
	byID     map[string]map[string]*Template
}

// Load reads and validates every embedded catalog.
func Load() (*Registry, error) {
	schemaRaw, err := catalogFS.ReadFile("data/schema.json")
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog schema: %w", err)
	}
	schema, err := compileSchema(schemaRaw)
	if err != nil {
		return nil, err
	}

	entries, err := catalogFS.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("failed to list catalogs: %w", err)
	}

	r := &Registry{
		catalogs: make(map[string][]*Template),
		byID:     make(map[string]map[string]*Template),
	}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		raw, err := catalogFS.ReadFile("data/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		if err := r.add(e.Name(), raw, schema); err != nil {
			return nil, err
		}
	}
	if _, ok := r.catalogs[DefaultLanguage]; !ok {
		return nil, fmt.Errorf("missing catalog for default language %q", DefaultLanguage)
	}
	return r, nil
}

func compileSchema(raw []byte) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("catalog.json", bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to load catalog schema: %w", err)
	}
	schema, err := compiler.Compile("catalog.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile catalog schema: %w", err)
	}
	return schema, nil
}

func (r *Registry) add(name string, raw []byte, schema *jsonschema.Schema) error {
	if err := validateDocument(raw, schema); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	var c catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return fmt.Errorf("%s: failed to decode catalog: %w", name, err)
	}
	if _, dup := r.catalogs[c.Language]; dup {
		return fmt.Errorf("%s: duplicate catalog for language %q", name, c.Language)
	}

	ids := make(map[string]*Template, len(c.Templates))
	list := make([]*Template, 0, len(c.Templates))
	for i := range c.Templates {
		t := &c.Templates[i]
		if err := checkTemplate(t); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if _, dup := ids[t.ID]; dup {
			return fmt.Errorf("%s: duplicate template id %q", name, t.ID)
		}
		ids[t.ID] = t
		list = append(list, t)
	}
	r.catalogs[c.Language] = list
	r.byID[c.Language] = ids
	return nil
}

// validateDocument checks the raw YAML against the JSON Schema.
func validateDocument(raw []byte, schema *jsonschema.Schema) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("failed to parse catalog: %w", err)
	}
	b, err := json.Marshal(jsonCompatible(doc))
	if err != nil {
		return fmt.Errorf("failed to convert catalog: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return fmt.Errorf("failed to convert catalog: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("catalog does not match schema: %w", err)
	}
	return nil
}

// jsonCompatible rewrites YAML maps with non-string keys into string-keyed maps.
func jsonCompatible(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = jsonCompatible(val)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = jsonCompatible(val)
		}
		return out
	case []any:
		for i, val := range x {
			x[i] = jsonCompatible(val)
		}
		return x
	default:
		return v
	}
}

// checkTemplate enforces that every field belongs to a declared chapter.
func checkTemplate(t *Template) error {
	seen := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if _, ok := t.Chapters[f.Chapter]; !ok {
			return fmt.Errorf("template %q: field %q references unknown chapter %d", t.ID, f.ID, f.Chapter)
		}
		if seen[f.ID] {
			return fmt.Errorf("template %q: duplicate field id %q", t.ID, f.ID)
		}
		seen[f.ID] = true
	}
	return nil
}

// Languages returns the loaded catalog languages, sorted.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.catalogs))
	for lang := range r.catalogs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// Resolve maps lang to a loaded catalog language, falling back to DefaultLanguage.
func (r *Registry) Resolve(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := r.catalogs[lang]; ok {
		return lang
	}
	return DefaultLanguage
}

// List returns the templates for lang in catalog order.
func (r *Registry) List(lang string) []*Template {
	return r.catalogs[r.Resolve(lang)]
}

// Get returns a template by id, or ErrNotFound.
func (r *Registry) Get(lang, id string) (*Template, error) {
	t, ok := r.byID[r.Resolve(lang)][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t, nil
}
