// Package taxonomy loads the controlled theme/subtheme vocabulary and
// validates incoming mentions against it.
package taxonomy

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// ThemeEntry is one theme in the taxonomy document. An empty subtheme list
// means any subtheme is accepted under the theme.
type ThemeEntry struct {
	Name      string   `yaml:"name"`
	Subthemes []string `yaml:"subthemes"`
}

// Document is the on-disk taxonomy format.
type Document struct {
	Themes []ThemeEntry `yaml:"themes"`
}

// Taxonomy is the loaded vocabulary with normalized lookup keys.
type Taxonomy struct {
	themes    map[string]struct{}
	subthemes map[string]map[string]struct{} // theme -> allowed subthemes; nil set = any
}

var foldCaser = cases.Fold()

// NormalizeKey canonicalizes a theme or subtheme for joining: dashes are
// unified, whitespace runs collapse to one space, and the result is
// Unicode case-folded. The same form is used by rule matching so that
// taxonomy, rules, and mentions join on identical keys.
func NormalizeKey(s string) string {
	s = strings.ReplaceAll(s, "—", "-")
	s = strings.ReplaceAll(s, "–", "-")
	s = strings.Join(strings.Fields(s), " ")
	return foldCaser.String(s)
}

// Load reads a taxonomy document from path.
func Load(path string) (*Taxonomy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "taxonomy: read file")
	}
	return Parse(raw)
}

// Parse builds a Taxonomy from YAML bytes.
func Parse(raw []byte) (*Taxonomy, error) {
	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrap(err, "taxonomy: unmarshal")
	}
	if len(doc.Themes) == 0 {
		return nil, eris.New("taxonomy: document lists no themes")
	}

	t := &Taxonomy{
		themes:    make(map[string]struct{}, len(doc.Themes)),
		subthemes: make(map[string]map[string]struct{}, len(doc.Themes)),
	}
	for _, entry := range doc.Themes {
		name := NormalizeKey(entry.Name)
		if name == "" {
			return nil, eris.New("taxonomy: theme with empty name")
		}
		t.themes[name] = struct{}{}
		if len(entry.Subthemes) == 0 {
			t.subthemes[name] = nil
			continue
		}
		set := make(map[string]struct{}, len(entry.Subthemes))
		for _, sub := range entry.Subthemes {
			set[NormalizeKey(sub)] = struct{}{}
		}
		t.subthemes[name] = set
	}
	return t, nil
}

// KnownTheme reports whether theme belongs to the vocabulary.
func (t *Taxonomy) KnownTheme(theme string) bool {
	_, ok := t.themes[NormalizeKey(theme)]
	return ok
}

// Valid reports whether the (theme, subtheme) pair is in the vocabulary.
// An empty subtheme is always accepted for a known theme.
func (t *Taxonomy) Valid(theme, subtheme string) bool {
	key := NormalizeKey(theme)
	set, ok := t.subthemes[key]
	if !ok {
		return false
	}
	if subtheme == "" || set == nil {
		return true
	}
	_, ok = set[NormalizeKey(subtheme)]
	return ok
}

// Themes returns the normalized theme names, for diagnostics.
func (t *Taxonomy) Themes() []string {
	out := make([]string, 0, len(t.themes))
	for name := range t.themes {
		out = append(out, name)
	}
	return out
}
