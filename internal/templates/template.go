// Package templates holds the story template catalogs.
//
// Catalogs are embedded YAML documents, one per language, validated against
// an embedded JSON Schema when the registry loads. Templates are immutable
// once loaded.
package templates

import "sort"

// Field types.
const (
	FieldSelect   = "select"
	FieldText     = "text"
	FieldTextarea = "textarea"
)

// Field is one chapter-level input on a template form.
type Field struct {
	ID          string   `yaml:"id" json:"id"`
	Label       string   `yaml:"label" json:"label"`
	Type        string   `yaml:"type" json:"type"`
	Options     []string `yaml:"options,omitempty" json:"options,omitempty"`
	Placeholder string   `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Chapter     int      `yaml:"chapter" json:"chapter"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// Template is a story skeleton: ordered chapter titles plus the fields
// that feed each chapter's prompt.
type Template struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Gradient    string         `yaml:"gradient" json:"gradient"`
	Chapters    map[int]string `yaml:"chapters" json:"chapters"`
	Fields      []Field        `yaml:"fields" json:"fields"`
}

// ChapterNumbers returns the chapter keys in ascending order.
func (t *Template) ChapterNumbers() []int {
	nums := make([]int, 0, len(t.Chapters))
	for n := range t.Chapters {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// FieldsForChapter returns the fields belonging to chapter n, in declaration order.
func (t *Template) FieldsForChapter(n int) []Field {
	var out []Field
	for _, f := range t.Fields {
		if f.Chapter == n {
			out = append(out, f)
		}
	}
	return out
}

// DefaultChapterData pre-fills every field: the first option for selects,
// otherwise the placeholder.
func (t *Template) DefaultChapterData() map[string]string {
	data := make(map[string]string, len(t.Fields))
	for _, f := range t.Fields {
		switch {
		case len(f.Options) > 0:
			data[f.ID] = f.Options[0]
		case f.Placeholder != "":
			data[f.ID] = f.Placeholder
		default:
			data[f.ID] = ""
		}
	}
	return data
}
