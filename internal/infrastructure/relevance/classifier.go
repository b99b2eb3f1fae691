package relevance

import (
	"strings"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

const (
	WarningLowScore       = "Document may not contain sufficient UK legal content"
	WarningNoStrongSignal = "Document lacks clear UK legal indicators"
	WarningNoDocumentType = "Document type not clearly identifiable as legal document"
	SuggestionSubject     = "Ensure document relates to UK employment law, contracts, or policies"
	SuggestionLegalTerms  = "Check document contains UK legal terms, legislation references, or UK institutions"
	SuggestionUKLanguage  = "Verify document is in English and uses UK legal language"
)

// Classifier scores uploaded text against the weighted legal lexicon.
type Classifier struct {
	cfg lexicon.Relevance
}

func NewClassifier(lex *lexicon.Lexicon) *Classifier {
	return &Classifier{cfg: lex.Relevance}
}

func (c *Classifier) Classify(text, filename string) domain.RelevanceAssessment {
	textLower := strings.ToLower(text)
	filenameLower := strings.ToLower(filename)

	hits := make(map[string]int, len(c.cfg.Categories))
	score := 0
	matched := 0
	for _, category := range c.cfg.Categories {
		count := 0
		for _, term := range category.Terms {
			if strings.Contains(textLower, term) || strings.Contains(filenameLower, term) {
				count++
			}
		}
		hits[category.Key] = count
		if count == 0 {
			continue
		}
		matched++
		score += min(count, c.cfg.MaxHitsPerCategory) * category.Weight
	}

	for _, bonus := range c.cfg.BreadthBonuses {
		if matched >= bonus.MinCategories {
			score += bonus.Bonus
		}
	}
	if lexicon.ContainsAny(filenameLower, c.cfg.FilenameKeywords) {
		score += c.cfg.FilenameBonus
	}

	strong := c.hasStrongIndicator(hits)
	assessment := domain.RelevanceAssessment{
		IsRelevant:         score >= c.cfg.MinScore && strong,
		Score:              score,
		CategoryHits:       hits,
		CategoriesMatched:  matched,
		HasStrongIndicator: strong,
		Warnings:           []string{},
	}

	if score < c.cfg.MinScore {
		assessment.Warnings = append(assessment.Warnings, WarningLowScore)
	}
	if !strong {
		assessment.Warnings = append(assessment.Warnings, WarningNoStrongSignal)
	}
	if c.cfg.DocumentTypeCategory != "" && hits[c.cfg.DocumentTypeCategory] == 0 {
		assessment.Warnings = append(assessment.Warnings, WarningNoDocumentType)
	}
	if !assessment.IsRelevant {
		assessment.Suggestions = []string{SuggestionSubject, SuggestionLegalTerms, SuggestionUKLanguage}
	}
	return assessment
}

func (c *Classifier) hasStrongIndicator(hits map[string]int) bool {
	for _, key := range c.cfg.StrongCategories {
		if hits[key] > 0 {
			return true
		}
	}
	if len(c.cfg.CombinedIndicator) == 0 {
		return false
	}
	for _, floor := range c.cfg.CombinedIndicator {
		if hits[floor.Category] < floor.MinHits {
			return false
		}
	}
	return true
}
