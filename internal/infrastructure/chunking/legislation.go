package chunking

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

const (
	defaultMaxChunkChars    = 1200
	defaultMinFragmentChars = 30
	minLongTitleChars       = 20
	sectionSeparator        = " > "
)

// Elements whose subtree never contributes body text.
var skippedElements = map[string]struct{}{
	"Contents":      {},
	"Commentaries":  {},
	"Footnotes":     {},
	"Resources":     {},
	"CommentaryRef": {},
	"FootnoteRef":   {},
}

// Elements flattened into the text of the enclosing block.
var inlineElements = map[string]struct{}{
	"Emphasis":       {},
	"Strong":         {},
	"Citation":       {},
	"CitationSubRef": {},
	"Term":           {},
	"Abbreviation":   {},
	"Acronym":        {},
	"Span":           {},
	"SmallCaps":      {},
	"Underline":      {},
	"Superior":       {},
	"Inferior":       {},
	"Addition":       {},
	"Substitution":   {},
	"InternalLink":   {},
	"ExternalLink":   {},
}

type Config struct {
	MaxChars         int
	MinFragmentChars int
}

// LegislationChunker turns legislation.gov.uk CLML documents into chunks
// tagged with the Part/Chapter/Schedule/Section they came from.
type LegislationChunker struct {
	maxChars    int
	minFragment int
	splitter    *Splitter
	filters     []lexicon.KeywordCluster
}

func NewLegislationChunker(cfg Config, lex *lexicon.Lexicon) *LegislationChunker {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChunkChars
	}
	if cfg.MinFragmentChars <= 0 {
		cfg.MinFragmentChars = defaultMinFragmentChars
	}
	var filters []lexicon.KeywordCluster
	if lex != nil {
		filters = lex.CategoryFilters
	}
	return &LegislationChunker{
		maxChars:    cfg.MaxChars,
		minFragment: cfg.MinFragmentChars,
		splitter:    NewSplitter(cfg.MaxChars),
		filters:     filters,
	}
}

type fragment struct {
	text    string
	section string
}

type actMetadata struct {
	title     string
	longTitle string
	year      int
}

func (c *LegislationChunker) Chunk(xmlDocument io.Reader, source domain.LegislationSource) ([]domain.Chunk, error) {
	root, err := parseTree(xmlDocument)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "parse legislation xml", err)
	}

	w := &walker{minChars: c.minFragment}
	w.walk(root)
	if len(w.fragments) == 0 {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"chunk legislation",
			fmt.Errorf("no text fragments extracted from %s", source.URL),
		)
	}

	source = c.resolveSource(source, w.meta)
	drafts := c.pack(c.header(source.ActTitle, w), dropTitleEcho(w.fragments, source.ActTitle))

	chunks := make([]domain.Chunk, len(drafts))
	for i, d := range drafts {
		chunks[i] = domain.Chunk{
			ID:              fmt.Sprintf("%s-chunk-%d", source.URL, i),
			Text:            d.text,
			SourceURL:       source.URL,
			ActTitle:        source.ActTitle,
			LegislationType: source.LegislationType,
			LegislationYear: source.Year,
			SectionContext:  d.section,
			ChunkIndex:      i,
			TotalChunks:     len(drafts),
		}
	}
	return chunks, nil
}

// pack greedily joins fragments until the next one would overflow maxChars.
func (c *LegislationChunker) pack(header string, fragments []fragment) []fragment {
	var out []fragment
	cur := fragment{text: header}
	seal := func() {
		if cur.section == "" {
			cur.section = domain.SectionGeneral
		}
		out = append(out, cur)
	}

	for _, f := range fragments {
		for _, piece := range c.splitter.Split(f.text) {
			if cur.text == "" {
				cur = fragment{text: piece, section: f.section}
				continue
			}
			if textLen(cur.text)+1+textLen(piece) > c.maxChars {
				seal()
				cur = fragment{text: piece, section: f.section}
				continue
			}
			cur.text += "\n" + piece
			if cur.section == "" {
				cur.section = f.section
			}
		}
	}
	if cur.text != "" {
		seal()
	}
	return out
}

func (c *LegislationChunker) header(title string, w *walker) string {
	header := title
	longTitle := w.meta.longTitle
	if !w.longTitleEmitted && textLen(longTitle) > minLongTitleChars {
		if header == "" {
			header = longTitle
		} else {
			header += ": " + longTitle
		}
	}
	if textLen(header) > c.maxChars {
		header = string([]rune(header)[:c.maxChars])
	}
	return header
}

func (c *LegislationChunker) resolveSource(source domain.LegislationSource, meta actMetadata) domain.LegislationSource {
	if strings.TrimSpace(source.ActTitle) == "" {
		source.ActTitle = meta.title
	}
	source.ActTitle = normalizeText(source.ActTitle)
	if source.Year <= 0 {
		source.Year = meta.year
	}
	if source.Year <= 0 {
		source.Year = yearFromTitle(source.ActTitle)
	}
	if source.LegislationType == "" {
		source.LegislationType = inferLegislationType(source.ActTitle, c.filters)
	}
	return source
}

// inferLegislationType picks the filter cluster with the most keyword hits in
// the title; ties go to the earlier cluster.
func inferLegislationType(title string, filters []lexicon.KeywordCluster) string {
	lower := strings.ToLower(title)
	best, bestHits := domain.LegislationGeneral, 0
	for _, f := range filters {
		hits := 0
		for _, kw := range f.Keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = f.Name, hits
		}
	}
	return best
}

func yearFromTitle(title string) int {
	matches := yearPattern.FindAllString(title, -1)
	if len(matches) == 0 {
		return 0
	}
	year, _ := strconv.Atoi(matches[len(matches)-1])
	return year
}

type walker struct {
	minChars         int
	labels           []string
	fragments        []fragment
	meta             actMetadata
	longTitleEmitted bool
}

func (w *walker) walk(n *node) {
	switch n.kind {
	case nodeSiblings:
		for _, c := range n.children {
			w.walk(c)
		}
	case nodeText:
		w.emit(n.text)
	case nodeElement:
		w.walkElement(n)
	}
}

func (w *walker) walkElement(n *node) {
	switch n.name {
	case "Metadata":
		w.readMetadata(n)
		return
	case "PrimaryPrelims", "SecondaryPrelims":
		w.walkPrelims(n)
		return
	}
	if _, skip := skippedElements[n.name]; skip {
		return
	}

	if label, ok := structuralLabel(n); ok {
		w.labels = append(w.labels, label)
		defer func() { w.labels = w.labels[:len(w.labels)-1] }()
	}

	before := len(w.fragments)
	if hasDirectText(n) {
		w.emit(blockText(n))
		for _, c := range n.children {
			if c.kind != nodeElement {
				continue
			}
			if _, inline := inlineElements[c.name]; !inline {
				w.walk(c)
			}
		}
	} else {
		for _, c := range n.children {
			w.walk(c)
		}
	}

	if n.name == "LongTitle" {
		if len(w.fragments) > before {
			w.longTitleEmitted = true
		} else if text := normalizeText(n.innerText()); text != "" {
			w.meta.longTitle = text
		}
	}
}

// walkPrelims treats the prelims Title as metadata; the chunk header already
// carries the act title.
func (w *walker) walkPrelims(n *node) {
	for _, c := range n.children {
		if c.kind == nodeElement && c.name == "Title" {
			if w.meta.title == "" {
				w.meta.title = normalizeText(c.innerText())
			}
			continue
		}
		w.walk(c)
	}
}

// dropTitleEcho removes body fragments that only repeat the act title.
func dropTitleEcho(fragments []fragment, title string) []fragment {
	if title == "" {
		return fragments
	}
	out := fragments[:0:0]
	for _, f := range fragments {
		if strings.EqualFold(f.text, title) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func (w *walker) emit(raw string) {
	text := normalizeText(raw)
	if textLen(text) < w.minChars || isNoise(text) {
		return
	}
	w.fragments = append(w.fragments, fragment{text: text, section: w.section()})
}

func (w *walker) section() string {
	if len(w.labels) == 0 {
		return domain.SectionGeneral
	}
	return strings.Join(w.labels, sectionSeparator)
}

func (w *walker) readMetadata(n *node) {
	var visit func(*node)
	visit = func(cur *node) {
		if cur.kind != nodeElement && cur.kind != nodeSiblings {
			return
		}
		switch cur.name {
		case "title":
			if w.meta.title == "" {
				w.meta.title = normalizeText(cur.innerText())
			}
		case "description":
			if w.meta.longTitle == "" {
				w.meta.longTitle = normalizeText(cur.innerText())
			}
		case "Year":
			if w.meta.year == 0 {
				w.meta.year, _ = strconv.Atoi(strings.TrimSpace(cur.attrs["Value"]))
			}
		}
		for _, c := range cur.children {
			visit(c)
		}
	}
	visit(n)
}

func structuralLabel(n *node) (string, bool) {
	switch n.name {
	case "Part", "Chapter", "Schedule":
		label := n.name
		if num := n.child("Number"); num != nil {
			if v := numberValue(num.innerText(), n.name); v != "" {
				label += " " + v
			}
		}
		return label, true
	case "P1":
		if num := n.child("Pnumber"); num != nil {
			if v := strings.Join(strings.Fields(num.innerText()), " "); v != "" {
				return "Section " + v, true
			}
		}
		return "", false
	case "LongTitle":
		return "Long Title", true
	}
	return "", false
}

// numberValue strips the repeated keyword from headings such as "PART 1".
func numberValue(text, keyword string) string {
	fields := strings.Fields(text)
	if len(fields) > 0 && strings.EqualFold(fields[0], keyword) {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

func hasDirectText(n *node) bool {
	for _, c := range n.children {
		if c.kind == nodeText {
			return true
		}
	}
	return false
}

func blockText(n *node) string {
	var b strings.Builder
	for _, c := range n.children {
		switch c.kind {
		case nodeText:
			b.WriteString(c.text)
		case nodeElement:
			if _, inline := inlineElements[c.name]; inline {
				b.WriteString(blockText(c))
			}
		}
	}
	return b.String()
}
