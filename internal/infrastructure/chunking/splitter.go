package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var sentenceBoundary = regexp.MustCompile(`[.;:!?]\s+`)

// Splitter breaks a single oversize fragment into pieces no longer than
// MaxChars runes, preferring sentence, then word, then rune boundaries.
type Splitter struct {
	MaxChars int
}

func NewSplitter(maxChars int) *Splitter {
	if maxChars <= 0 {
		maxChars = defaultMaxChunkChars
	}
	return &Splitter{MaxChars: maxChars}
}

func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if textLen(text) <= s.MaxChars {
		return []string{text}
	}

	var out []string
	for _, sentence := range splitSentences(text) {
		if textLen(sentence) <= s.MaxChars {
			out = s.pack(out, sentence)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			if textLen(word) <= s.MaxChars {
				out = s.pack(out, word)
				continue
			}
			out = append(out, s.splitRunes(word)...)
		}
	}
	return out
}

// pack appends part to the last piece when it fits, otherwise starts a new one.
func (s *Splitter) pack(pieces []string, part string) []string {
	if len(pieces) == 0 {
		return append(pieces, part)
	}
	last := pieces[len(pieces)-1]
	if textLen(last)+1+textLen(part) <= s.MaxChars {
		pieces[len(pieces)-1] = last + " " + part
		return pieces
	}
	return append(pieces, part)
}

func (s *Splitter) splitRunes(word string) []string {
	runes := []rune(word)
	out := make([]string, 0, len(runes)/s.MaxChars+1)
	for start := 0; start < len(runes); start += s.MaxChars {
		end := start + s.MaxChars
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		// keep the terminator with the sentence, drop the whitespace
		sentence := strings.TrimSpace(text[last : loc[0]+1])
		if sentence != "" {
			out = append(out, sentence)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func textLen(s string) int {
	return utf8.RuneCountInString(s)
}
