package relevance

import (
	"regexp"
	"strings"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

const maxKeyElements = 3

var (
	amountPattern    = regexp.MustCompile(`£[\d,]+(?:\.\d{2})?`)
	datePattern      = regexp.MustCompile(`(?i)\b\d{1,2}/\d{1,2}/\d{4}\b|\b\d{1,2}\s+(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{4}\b`)
	referencePattern = regexp.MustCompile(`(?i)\b(?:section|clause|paragraph)\s+\d+`)
)

// Analyzer derives the document type and key elements of accepted uploads.
type Analyzer struct {
	types lexicon.DocumentTypes
}

func NewAnalyzer(lex *lexicon.Lexicon) *Analyzer {
	return &Analyzer{types: lex.DocumentTypes}
}

func (a *Analyzer) Analyze(text string) domain.DocumentAnalysis {
	return domain.DocumentAnalysis{
		DocumentType: a.DocumentType(text),
		WordCount:    len(strings.Fields(text)),
		Amounts:      firstMatches(amountPattern, text),
		Dates:        firstMatches(datePattern, text),
		References:   firstMatches(referencePattern, text),
	}
}

// DocumentType returns the first rule whose phrases match the text.
func (a *Analyzer) DocumentType(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range a.types.Rules {
		if len(rule.All) > 0 && !containsAll(lower, rule.All) {
			continue
		}
		if len(rule.Any) > 0 && !lexicon.ContainsAny(lower, rule.Any) {
			continue
		}
		return rule.Type
	}
	return a.types.Default
}

func containsAll(s string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(s, t) {
			return false
		}
	}
	return true
}

func firstMatches(re *regexp.Regexp, text string) []string {
	return re.FindAllString(text, maxKeyElements)
}
