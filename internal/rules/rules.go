// Package rules loads the declarative problem-map document and resolves
// (theme, subtheme) pairs to canonical problem identifiers.
package rules

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/denirokp/dialogs-rag-v3/internal/taxonomy"
)

// Wildcard matches any subtheme under a pattern's theme.
const Wildcard = "*"

// MatchPattern is one (theme, subtheme) claim inside a rule. An empty or
// "*" subtheme claims every subtheme of the theme.
type MatchPattern struct {
	Theme    string `yaml:"theme"`
	Subtheme string `yaml:"subtheme"`
}

// Wildcarded reports whether the pattern claims all subthemes of its theme.
func (p MatchPattern) Wildcarded() bool {
	return p.Subtheme == "" || p.Subtheme == Wildcard
}

// Rule is one declarative mapping onto a canonical problem.
type Rule struct {
	ID    string         `yaml:"id"`
	Title string         `yaml:"title"`
	Match []MatchPattern `yaml:"match"`
}

// document is the on-disk rule table format.
type document struct {
	Problems []Rule `yaml:"problems"`
}

// Conflict names two rules claiming the same (theme, subtheme) pair.
type Conflict struct {
	RuleA    string
	RuleB    string
	Theme    string
	Subtheme string
}

func (c Conflict) String() string {
	sub := c.Subtheme
	if sub == "" {
		sub = Wildcard
	}
	return fmt.Sprintf("rules %q and %q both match (theme=%q, subtheme=%q)", c.RuleA, c.RuleB, c.Theme, sub)
}

// ErrOverlap is returned when the rule table is not disjoint. The wrapped
// message names every offending rule pair; the run must not proceed.
var ErrOverlap = eris.New("rules: overlapping match patterns")

// Table is a validated rule table with a deterministic lookup index built
// once at load time.
type Table struct {
	rules []Rule

	exact    map[string]*Rule // "theme\x00subtheme" -> rule
	wildcard map[string]*Rule // theme -> rule claiming all its subthemes
}

// Load reads, parses and validates a rule document from path.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "rules: read file")
	}
	return Parse(raw)
}

// Parse builds a Table from YAML bytes, failing fast on any ambiguity.
func Parse(raw []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, eris.Wrap(err, "rules: unmarshal")
	}
	return New(doc.Problems)
}

// New validates the rules for disjointness and builds the lookup index.
// Validation failure is terminal: no mention may be classified against an
// ambiguous table.
func New(rules []Rule) (*Table, error) {
	t := &Table{
		rules:    rules,
		exact:    make(map[string]*Rule),
		wildcard: make(map[string]*Rule),
	}

	var conflicts []Conflict
	for i := range rules {
		r := &rules[i]
		if r.ID == "" {
			return nil, eris.New("rules: rule with empty id")
		}
		for _, p := range r.Match {
			theme := taxonomy.NormalizeKey(p.Theme)
			if theme == "" {
				return nil, eris.Errorf("rules: rule %q has a pattern with empty theme", r.ID)
			}

			if p.Wildcarded() {
				if prev, ok := t.wildcard[theme]; ok {
					conflicts = append(conflicts, Conflict{RuleA: prev.ID, RuleB: r.ID, Theme: theme})
				}
				// A wildcard claims every subtheme, so any exact pattern on
				// the same theme is a conflict too.
				for key, prev := range t.exact {
					kt, ks := splitKey(key)
					if kt == theme {
						conflicts = append(conflicts, Conflict{RuleA: prev.ID, RuleB: r.ID, Theme: theme, Subtheme: ks})
					}
				}
				t.wildcard[theme] = r
				continue
			}

			sub := taxonomy.NormalizeKey(p.Subtheme)
			key := joinKey(theme, sub)
			if prev, ok := t.exact[key]; ok {
				conflicts = append(conflicts, Conflict{RuleA: prev.ID, RuleB: r.ID, Theme: theme, Subtheme: sub})
			}
			if prev, ok := t.wildcard[theme]; ok {
				conflicts = append(conflicts, Conflict{RuleA: prev.ID, RuleB: r.ID, Theme: theme, Subtheme: sub})
			}
			t.exact[key] = r
		}
	}

	if len(conflicts) > 0 {
		msgs := make([]string, len(conflicts))
		for i, c := range conflicts {
			msgs[i] = c.String()
		}
		sort.Strings(msgs)
		return nil, eris.Wrap(ErrOverlap, strings.Join(msgs, "; "))
	}

	return t, nil
}

// Lookup resolves a (theme, subtheme) pair to at most one rule. The second
// return is false for unmapped pairs, which the consolidator buckets as
// other_unmapped.
func (t *Table) Lookup(theme, subtheme string) (*Rule, bool) {
	nt := taxonomy.NormalizeKey(theme)
	if r, ok := t.exact[joinKey(nt, taxonomy.NormalizeKey(subtheme))]; ok {
		return r, true
	}
	if r, ok := t.wildcard[nt]; ok {
		return r, true
	}
	return nil, false
}

// Rules returns the validated rule list in document order.
func (t *Table) Rules() []Rule {
	return t.rules
}

func joinKey(theme, subtheme string) string {
	return theme + "\x00" + subtheme
}

func splitKey(key string) (theme, subtheme string) {
	parts := strings.SplitN(key, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, ""
}
