package chunking

import (
	"regexp"
	"strings"
)

var (
	whitespaceRun     = regexp.MustCompile(`\s+`)
	spaceBeforePunct  = regexp.MustCompile(`\s+([,.;:!?)\]])`)
	spaceAfterOpen    = regexp.MustCompile(`([(\[])\s+`)
	missingSpaceAfter = regexp.MustCompile(`([,;])([A-Za-z])`)
	numberedRef       = regexp.MustCompile(`(?i)\b(section|part|chapter|schedule)\s*(\d+[A-Za-z]*)\b`)
	romanRef          = regexp.MustCompile(`(?i:\b(section|part|chapter|schedule))\s+([IVXLC]+)\b`)
	noisePattern      = regexp.MustCompile(`^[\d\s[:punct:]]+$`)
	yearPattern       = regexp.MustCompile(`\b(1[5-9]\d{2}|20\d{2})\b`)
)

// normalizeText collapses whitespace, fixes punctuation spacing and writes
// structural references as "Section 2", "Part IV" and so on.
func normalizeText(s string) string {
	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	s = spaceBeforePunct.ReplaceAllString(s, "$1")
	s = spaceAfterOpen.ReplaceAllString(s, "$1")
	s = missingSpaceAfter.ReplaceAllString(s, "$1 $2")
	s = canonicalizeRefs(numberedRef, s)
	s = canonicalizeRefs(romanRef, s)
	return s
}

func canonicalizeRefs(re *regexp.Regexp, s string) string {
	return re.ReplaceAllStringFunc(s, func(match string) string {
		sub := re.FindStringSubmatch(match)
		if len(sub) != 3 {
			return match
		}
		keyword := strings.ToLower(sub[1])
		return strings.ToUpper(keyword[:1]) + keyword[1:] + " " + sub[2]
	})
}

func isNoise(s string) bool {
	return noisePattern.MatchString(s)
}
