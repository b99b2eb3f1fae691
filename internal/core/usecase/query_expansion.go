package usecase

import (
	"strings"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

const (
	variantRaw      = "raw"
	variantEnhanced = "enhanced"
	variantRecency  = "recency"
)

type searchVariant struct {
	name   string
	text   string
	limit  int
	filter domain.SearchFilter
}

// enhanceQuery appends the statute expansion of every dictionary phrase found
// in the query, followed by the generic domain suffix.
func enhanceQuery(query string, lex *lexicon.Lexicon) string {
	lower := strings.ToLower(query)
	parts := []string{query}
	for _, p := range lex.QueryExpansion.Phrases {
		if strings.Contains(lower, p.Phrase) || strings.Contains(lower, strings.ReplaceAll(p.Phrase, " ", "")) {
			parts = append(parts, p.Expansion)
		}
	}
	if suffix := strings.TrimSpace(lex.QueryExpansion.Suffix); suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.Join(parts, " ")
}

// categorizeQuery frames the generation prompt when no evidence grounds the
// answer. Cluster order matters: the first match wins.
func categorizeQuery(query string, lex *lexicon.Lexicon) string {
	lower := strings.ToLower(query)
	for _, cluster := range lex.QueryCategories.Clusters {
		if lexicon.ContainsAny(lower, cluster.Keywords) {
			return cluster.Name
		}
	}
	return lex.QueryCategories.Default
}

func planVariants(query string, lex *lexicon.Lexicon, cfg RetrievalConfig) []searchVariant {
	lower := strings.ToLower(query)
	variants := []searchVariant{
		{name: variantRaw, text: query, limit: cfg.TopK},
		{name: variantEnhanced, text: enhanceQuery(query, lex), limit: cfg.TopK},
	}
	for _, cluster := range lex.CategoryFilters {
		if lexicon.ContainsAny(lower, cluster.Keywords) {
			variants = append(variants, searchVariant{
				name:   "category:" + cluster.Name,
				text:   query,
				limit:  cfg.FilteredTopK,
				filter: domain.SearchFilter{LegislationType: cluster.Name},
			})
		}
	}
	if lexicon.ContainsAny(lower, lex.Recency.Keywords) {
		minYear := cfg.RecencyMinYear
		if minYear <= 0 {
			minYear = lex.Recency.MinYear
		}
		variants = append(variants, searchVariant{
			name:   variantRecency,
			text:   query,
			limit:  cfg.FilteredTopK,
			filter: domain.SearchFilter{MinYear: minYear},
		})
	}
	return variants
}
