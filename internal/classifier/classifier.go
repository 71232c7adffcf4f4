// Package classifier assigns catalog categories to product names from a keyword table.
package classifier

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var defaultTable []byte

// Match is the best category found for a name.
type Match struct {
	Category string
	Keyword  string
	Score    int
}

type Rule struct {
	Category string   `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

type table struct {
	Categories []Rule `yaml:"categories"`
}

// Classifier is immutable after construction and safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// New builds a classifier from rules. Keywords are normalized with Turkish casing.
func New(rules []Rule) (*Classifier, error) {
	if len(rules) == 0 {
		return nil, errors.New("classifier: empty keyword table")
	}

	out := make([]Rule, 0, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.Category) == "" {
			return nil, fmt.Errorf("classifier: rule %d has no category", i)
		}
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = normalize(kw); kw != "" {
				kws = append(kws, kw)
			}
		}
		if len(kws) == 0 {
			return nil, fmt.Errorf("classifier: category %q has no keywords", r.Category)
		}
		out = append(out, Rule{Category: r.Category, Keywords: kws})
	}

	return &Classifier{rules: out}, nil
}

// Parse builds a classifier from a YAML keyword table.
func Parse(data []byte) (*Classifier, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("classifier: parse table: %w", err)
	}
	return New(t.Categories)
}

// Load reads a YAML keyword table from path. An empty path selects the built-in table.
func Load(path string) (*Classifier, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("classifier: read table: %w", err)
	}
	return Parse(data)
}

// Default returns the classifier for the built-in keyword table.
func Default() *Classifier {
	c, err := Parse(defaultTable)
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the best matching category for name, or nil when no keyword matches.
// A category scores the total length of its matched keywords.
func (c *Classifier) Classify(name string) *Match {
	text := normalize(name)
	if text == "" {
		return nil
	}

	var best *Match
	for _, r := range c.rules {
		score, longest := 0, ""
		for _, kw := range r.Keywords {
			if strings.Contains(text, kw) {
				score += len([]rune(kw))
				if len(kw) > len(longest) {
					longest = kw
				}
			}
		}
		if score > 0 && (best == nil || score > best.Score) {
			best = &Match{Category: r.Category, Keyword: longest, Score: score}
		}
	}
	return best
}

func normalize(s string) string {
	// Casers keep state; one per call.
	return strings.Join(strings.Fields(cases.Lower(language.Turkish).String(s)), " ")
}
