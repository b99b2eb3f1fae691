package usecase

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

const (
	charsPerToken        = 4
	minPartialChars      = 50
	maxContextDocuments  = 3
	minDocumentScore     = 0.1
	contractTypeBoost    = 0.2
	documentOverlapRatio = 0.3
	documentPreviewChars = 500

	overviewHeading  = "UPLOADED DOCUMENTS OVERVIEW:\n"
	contentHeading   = "\nRELEVANT DOCUMENT CONTENT:\n"
	contentSeparator = "\n\n---\n\n"
)

type scoredDocument struct {
	doc   domain.UploadedDocument
	score float64
}

// assembleDocumentContext builds the context blob for document-mode answers.
// The blob never exceeds tokenBudget*charsPerToken bytes; reserveTokens are
// left free for the question itself.
func assembleDocumentContext(docs []domain.UploadedDocument, query string, tokenBudget, reserveTokens int) (string, bool) {
	if len(docs) == 0 || tokenBudget <= 0 {
		return "", false
	}
	limit := tokenBudget * charsPerToken
	if len(overviewHeading) > limit {
		return "", false
	}

	var b strings.Builder
	b.WriteString(overviewHeading)
	for i, doc := range docs {
		line := fmt.Sprintf("%d. %s (%s) - %s\n", i+1, doc.Filename, doc.DocumentType, doc.Summary)
		if b.Len()+len(line) > limit {
			break
		}
		b.WriteString(line)
	}

	remaining := limit - reserveTokens*charsPerToken - b.Len() - len(contentHeading)
	var blocks []string
	for _, sd := range rankDocuments(docs, query) {
		sep := 0
		if len(blocks) > 0 {
			sep = len(contentSeparator)
		}
		name := strings.ToUpper(sd.doc.Filename)

		full := "CONTENT FROM " + name + ":\n" + sd.doc.ExtractedText
		if sep+len(full) <= remaining {
			blocks = append(blocks, full)
			remaining -= sep + len(full)
			continue
		}

		partialHeader := "CONTENT FROM " + name + " (partial):\n"
		avail := remaining - sep - len(partialHeader) - len("...")
		if avail >= minPartialChars {
			blocks = append(blocks, partialHeader+truncateBytes(sd.doc.ExtractedText, avail)+"...")
		}
		break
	}

	if len(blocks) > 0 {
		b.WriteString(contentHeading)
		b.WriteString(strings.Join(blocks, contentSeparator))
	}
	return b.String(), true
}

// rankDocuments scores documents by query keyword overlap, boosting contracts
// and agreements, and keeps the best few above the relevance floor.
func rankDocuments(docs []domain.UploadedDocument, query string) []scoredDocument {
	words := queryKeywords(query)
	scored := make([]scoredDocument, 0, len(docs))
	for _, doc := range docs {
		score := overlapRatio(words, strings.ToLower(doc.ExtractedText+" "+doc.Summary))
		docType := strings.ToLower(doc.DocumentType)
		if strings.Contains(docType, "contract") || strings.Contains(docType, "agreement") {
			score += contractTypeBoost
		}
		if score > minDocumentScore {
			scored = append(scored, scoredDocument{doc: doc, score: score})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	if len(scored) > maxContextDocuments {
		scored = scored[:maxContextDocuments]
	}
	return scored
}

// isQueryAboutDocuments reports whether the question refers to the uploads,
// either by an explicit reference phrase or by sharing enough vocabulary with
// their summaries and opening text.
func isQueryAboutDocuments(query string, docs []domain.UploadedDocument, lex *lexicon.Lexicon) bool {
	if len(docs) == 0 {
		return false
	}
	lower := strings.ToLower(query)
	if lexicon.ContainsAny(lower, lex.DocumentReferences) {
		return true
	}

	var corpus strings.Builder
	for _, doc := range docs {
		corpus.WriteString(doc.Summary)
		corpus.WriteByte(' ')
		corpus.WriteString(truncateBytes(doc.ExtractedText, documentPreviewChars))
		corpus.WriteByte(' ')
	}
	return overlapRatio(queryKeywords(query), strings.ToLower(corpus.String())) > documentOverlapRatio
}

func queryKeywords(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := fields[:0]
	for _, w := range fields {
		if utf8.RuneCountInString(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

func overlapRatio(words []string, text string) float64 {
	if len(words) == 0 {
		return 0
	}
	matches := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			matches++
		}
	}
	return float64(matches) / float64(len(words))
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
