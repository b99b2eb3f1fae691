// Package lexicon holds the UK legal vocabulary that drives query expansion,
// retrieval routing and upload relevance scoring. The data is loaded from
// YAML so it can be tuned without code changes.
package lexicon

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type Lexicon struct {
	QueryExpansion     QueryExpansion   `yaml:"query_expansion"`
	CategoryFilters    []KeywordCluster `yaml:"category_filters"`
	Recency            Recency          `yaml:"recency"`
	QueryCategories    QueryCategories  `yaml:"query_categories"`
	DocumentReferences []string         `yaml:"document_references"`
	DocumentTypes      DocumentTypes    `yaml:"document_types"`
	Relevance          Relevance        `yaml:"relevance"`
}

type QueryExpansion struct {
	Suffix  string      `yaml:"suffix"`
	Phrases []Expansion `yaml:"phrases"`
}

type Expansion struct {
	Phrase    string `yaml:"phrase"`
	Expansion string `yaml:"expansion"`
}

// KeywordCluster maps a name to substring triggers.
type KeywordCluster struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

type Recency struct {
	Keywords []string `yaml:"keywords"`
	MinYear  int      `yaml:"min_year"`
}

type QueryCategories struct {
	Default  string           `yaml:"default"`
	Clusters []KeywordCluster `yaml:"clusters"`
}

type DocumentTypes struct {
	Default string             `yaml:"default"`
	Rules   []DocumentTypeRule `yaml:"rules"`
}

type DocumentTypeRule struct {
	Type string   `yaml:"type"`
	Any  []string `yaml:"any"`
	All  []string `yaml:"all"`
}

type Relevance struct {
	MinScore             int             `yaml:"min_score"`
	MaxHitsPerCategory   int             `yaml:"max_hits_per_category"`
	BreadthBonuses       []BreadthBonus  `yaml:"breadth_bonuses"`
	FilenameKeywords     []string        `yaml:"filename_keywords"`
	FilenameBonus        int             `yaml:"filename_bonus"`
	StrongCategories     []string        `yaml:"strong_categories"`
	CombinedIndicator    []CategoryFloor `yaml:"combined_indicator"`
	DocumentTypeCategory string          `yaml:"document_type_category"`
	Categories           []TermCategory  `yaml:"categories"`
}

type BreadthBonus struct {
	MinCategories int `yaml:"min_categories"`
	Bonus         int `yaml:"bonus"`
}

type CategoryFloor struct {
	Category string `yaml:"category"`
	MinHits  int    `yaml:"min_hits"`
}

type TermCategory struct {
	Key    string   `yaml:"key"`
	Weight int      `yaml:"weight"`
	Terms  []string `yaml:"terms"`
}

// Default returns the embedded lexicon. It panics only if the embedded file
// is broken, which the package tests guard against.
func Default() *Lexicon {
	lex, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("lexicon: embedded default is invalid: %v", err))
	}
	return lex
}

// Load reads a lexicon from path; an empty path yields the embedded default.
func Load(path string) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	lex.normalize()
	if err := lex.validate(); err != nil {
		return nil, err
	}
	return &lex, nil
}

func (l *Lexicon) normalize() {
	for i := range l.QueryExpansion.Phrases {
		l.QueryExpansion.Phrases[i].Phrase = lowerTrim(l.QueryExpansion.Phrases[i].Phrase)
		l.QueryExpansion.Phrases[i].Expansion = strings.TrimSpace(l.QueryExpansion.Phrases[i].Expansion)
	}
	for i := range l.CategoryFilters {
		l.CategoryFilters[i].Keywords = normalizeTerms(l.CategoryFilters[i].Keywords)
	}
	for i := range l.QueryCategories.Clusters {
		l.QueryCategories.Clusters[i].Keywords = normalizeTerms(l.QueryCategories.Clusters[i].Keywords)
	}
	for i := range l.DocumentTypes.Rules {
		l.DocumentTypes.Rules[i].Any = normalizeTerms(l.DocumentTypes.Rules[i].Any)
		l.DocumentTypes.Rules[i].All = normalizeTerms(l.DocumentTypes.Rules[i].All)
	}
	for i := range l.Relevance.Categories {
		l.Relevance.Categories[i].Terms = normalizeTerms(l.Relevance.Categories[i].Terms)
	}
	l.Recency.Keywords = normalizeTerms(l.Recency.Keywords)
	l.DocumentReferences = normalizeTerms(l.DocumentReferences)
	l.Relevance.FilenameKeywords = normalizeTerms(l.Relevance.FilenameKeywords)

	if l.QueryCategories.Default == "" {
		l.QueryCategories.Default = "general UK law"
	}
	if l.DocumentTypes.Default == "" {
		l.DocumentTypes.Default = "unknown"
	}
	if l.Relevance.MaxHitsPerCategory <= 0 {
		l.Relevance.MaxHitsPerCategory = 3
	}
}

func (l *Lexicon) validate() error {
	var errs []error
	for _, p := range l.QueryExpansion.Phrases {
		if p.Phrase == "" || p.Expansion == "" {
			errs = append(errs, errors.New("query expansion entries need both phrase and expansion"))
			break
		}
	}

	keys := make(map[string]struct{}, len(l.Relevance.Categories))
	for _, c := range l.Relevance.Categories {
		if c.Key == "" {
			errs = append(errs, errors.New("relevance category without key"))
			continue
		}
		if _, dup := keys[c.Key]; dup {
			errs = append(errs, fmt.Errorf("duplicate relevance category %q", c.Key))
		}
		keys[c.Key] = struct{}{}
		if c.Weight < 1 || c.Weight > 5 {
			errs = append(errs, fmt.Errorf("relevance category %q weight %d outside 1..5", c.Key, c.Weight))
		}
	}
	for _, key := range l.Relevance.StrongCategories {
		if _, ok := keys[key]; !ok {
			errs = append(errs, fmt.Errorf("strong category %q is not defined", key))
		}
	}
	for _, floor := range l.Relevance.CombinedIndicator {
		if _, ok := keys[floor.Category]; !ok {
			errs = append(errs, fmt.Errorf("combined indicator category %q is not defined", floor.Category))
		}
	}
	if k := l.Relevance.DocumentTypeCategory; k != "" {
		if _, ok := keys[k]; !ok {
			errs = append(errs, fmt.Errorf("document type category %q is not defined", k))
		}
	}
	for _, rule := range l.DocumentTypes.Rules {
		if rule.Type == "" || (len(rule.Any) == 0 && len(rule.All) == 0) {
			errs = append(errs, fmt.Errorf("document type rule %q needs a type and at least one phrase", rule.Type))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid lexicon: %w", errors.Join(errs...))
	}
	return nil
}

// ContainsAny reports whether s contains any of the given substrings.
func ContainsAny(s string, terms []string) bool {
	for _, t := range terms {
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func normalizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = lowerTrim(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
