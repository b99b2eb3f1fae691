package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

const hintPreviewChars = 300

const legalSystemPrompt = `You are a UK legal assistant. You answer questions about UK law only.

For non-legal queries, politely decline: "I specialise in UK legal matters. For other topics, please consult a relevant expert."

Structure every answer as:
1. Direct answer to the question.
2. Legal authority: the relevant Act, section or regulation, and uploaded document clauses when relevant.
3. Practical application in real-world terms.
4. Key requirements: the duties, rights or obligations involved.
5. Additional considerations: exceptions and related provisions.
6. Next steps where appropriate.

Citation style:
- Legislation: "Under Section 1 of the Employment Rights Act 1996..."
- Uploaded documents: "According to clause 5 of your employment contract..."
- Always distinguish statutory rights from contractual terms.

Distinguish legal requirements from good practice, explain legal tests such as "reasonable" and "reasonably practicable", and say when specialist advice from a qualified solicitor is needed. For other jurisdictions, say that you cover UK law only.`

const rejectedDocumentsTemplate = `The document(s) you just uploaded (%s) don't appear to be related to UK legal matters. I specialise in UK employment law, contracts, health and safety documents and other UK legal documents.

Please upload UK legal documents such as:
- Employment contracts
- Company policies
- Health and safety procedures
- Legal agreements
- HR documentation

Or feel free to ask me any questions about UK law.`

func groundedSystemPrompt(contextSummary string, uploads []string) string {
	var b strings.Builder
	b.WriteString(legalSystemPrompt)
	if len(uploads) > 0 {
		fmt.Fprintf(&b, "\n\nNOTE: The user has uploaded %d document(s): %s. Mention them if the question might relate to these documents.",
			len(uploads), strings.Join(uploads, ", "))
	}
	b.WriteString("\n\nCONTEXT: You have access to relevant provisions from: ")
	b.WriteString(contextSummary)
	return b.String()
}

func groundedHumanPrompt(query string, evidence domain.EvidenceSet) string {
	provisions := make([]string, 0, len(evidence))
	for _, c := range evidence {
		provisions = append(provisions, c.Chunk.Text)
	}
	return "Based on the following UK legislation provisions, answer the user's question.\n\n" +
		"RELEVANT LEGAL PROVISIONS:\n" + strings.Join(provisions, "\n\n") +
		"\n\nUSER QUESTION: " + query +
		"\n\nGive clear legal authority, a practical explanation and specific guidance. Cite the relevant Acts and sections."
}

func fallbackSystemPrompt(category string, uploads []string) string {
	var b strings.Builder
	b.WriteString(legalSystemPrompt)
	if len(uploads) > 0 {
		fmt.Fprintf(&b, "\n\nNOTE: The user has uploaded %d document(s). If the question might relate to them, suggest asking more specifically about the uploaded documents.", len(uploads))
	}
	fmt.Fprintf(&b, "\n\nNote: Limited specific provisions were found for this query. The query appears to relate to %s. Provide general UK legal guidance in this area, using any available context carefully.", category)
	return b.String()
}

func fallbackHumanPrompt(query string, hints domain.EvidenceSet) string {
	if len(hints) == 0 {
		return query
	}
	parts := make([]string, 0, len(hints))
	for _, h := range hints {
		parts = append(parts, "From "+h.Chunk.ActTitle+": "+truncateBytes(h.Chunk.Text, hintPreviewChars)+"...")
	}
	return "Some potentially relevant context:\n" + strings.Join(parts, "\n\n") + "\n\nQuestion: " + query
}

func documentSystemPrompt() string {
	return legalSystemPrompt + "\n\nDOCUMENT CONTEXT: The user has uploaded legal documents. Use both the document content and your knowledge of UK law."
}

func documentHumanPrompt(query, documentContext string) string {
	return documentContext +
		"\n\nUSER QUESTION: " + query +
		"\n\nConsider both the uploaded documents and relevant UK legislation. Reference specific document clauses where applicable and compare them with statutory requirements."
}

func rejectedDocumentsReply(filenames []string) string {
	return fmt.Sprintf(rejectedDocumentsTemplate, strings.Join(filenames, ", "))
}

// formatSources renders "Title (Year) - Section", dropping the section when it
// is the general bucket. Duplicates keep their first position.
func formatSources(evidence domain.EvidenceSet) []string {
	seen := make(map[string]struct{}, len(evidence))
	out := make([]string, 0, len(evidence))
	for _, c := range evidence {
		title := strings.TrimSpace(c.Chunk.ActTitle)
		if title == "" {
			continue
		}
		source := title
		if c.Chunk.LegislationYear > 0 {
			source += " (" + strconv.Itoa(c.Chunk.LegislationYear) + ")"
		}
		if section := strings.TrimSpace(c.Chunk.SectionContext); section != "" && section != domain.SectionGeneral {
			source += " - " + section
		}
		if _, ok := seen[source]; ok {
			continue
		}
		seen[source] = struct{}{}
		out = append(out, source)
	}
	return out
}

func uploadSources(docs []domain.UploadedDocument) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, "Uploaded: "+d.Filename)
	}
	return out
}
