package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
	"github.com/kirillkom/uk-legal-assistant/internal/lexicon"
)

type RetrievalConfig struct {
	TopK             int
	FilteredTopK     int
	FusedLimit       int
	HintCount        int
	StrictThreshold  float64
	RelaxedThreshold float64
	LongQueryTokens  int
	VariantTimeout   time.Duration
	RecencyMinYear   int
}

func (c RetrievalConfig) withDefaults() RetrievalConfig {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.FilteredTopK <= 0 {
		c.FilteredTopK = 2
	}
	if c.FusedLimit <= 0 {
		c.FusedLimit = 5
	}
	if c.HintCount <= 0 {
		c.HintCount = 2
	}
	if c.StrictThreshold <= 0 {
		c.StrictThreshold = 0.7
	}
	if c.RelaxedThreshold <= 0 {
		c.RelaxedThreshold = 0.65
	}
	if c.RelaxedThreshold > c.StrictThreshold {
		c.RelaxedThreshold = c.StrictThreshold
	}
	if c.LongQueryTokens <= 0 {
		c.LongQueryTokens = 10
	}
	if c.VariantTimeout <= 0 {
		c.VariantTimeout = 10 * time.Second
	}
	return c
}

// RetrievalUseCase runs the multi-variant legislation search and decides
// whether the fused evidence is strong enough to ground an answer.
type RetrievalUseCase struct {
	embedder ports.Embedder
	vectorDB ports.VectorStore
	lex      *lexicon.Lexicon
	cfg      RetrievalConfig
}

func NewRetrievalUseCase(
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	lex *lexicon.Lexicon,
	cfg RetrievalConfig,
) *RetrievalUseCase {
	if lex == nil {
		lex = lexicon.Default()
	}
	return &RetrievalUseCase{
		embedder: embedder,
		vectorDB: vectorDB,
		lex:      lex,
		cfg:      cfg.withDefaults(),
	}
}

func (uc *RetrievalUseCase) Search(ctx context.Context, query string) (domain.SearchOutcome, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.SearchOutcome{}, domain.WrapError(domain.ErrInvalidInput, "search legislation", errors.New("query is required"))
	}

	variants := planVariants(query, uc.lex, uc.cfg)
	vectors, err := uc.embedVariants(ctx, variants)
	if err != nil {
		return domain.SearchOutcome{}, err
	}

	results := make([][]domain.RetrievalCandidate, len(variants))
	var (
		mu       sync.Mutex
		timedOut []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		g.Go(func() error {
			vctx, cancel := context.WithTimeout(gctx, uc.cfg.VariantTimeout)
			defer cancel()

			found, err := uc.vectorDB.Search(vctx, vectors[v.text], v.limit, v.filter)
			if err != nil {
				if errors.Is(vctx.Err(), context.DeadlineExceeded) && gctx.Err() == nil {
					slog.Warn("retrieval_variant_timeout",
						"variant", v.name,
						"timeout", uc.cfg.VariantTimeout.String(),
					)
					mu.Lock()
					timedOut = append(timedOut, v.name)
					mu.Unlock()
					return nil
				}
				return domain.WrapError(domain.ErrRetrievalFailure, "search variant "+v.name, err)
			}
			results[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.SearchOutcome{}, err
	}
	sort.Strings(timedOut)

	fused := fuseFirstWins(results, uc.cfg.FusedLimit)
	outcome := gateEvidence(query, fused, uc.cfg)
	outcome.TimedOut = timedOut
	if outcome.Mode == domain.ModeFallback {
		outcome.Category = categorizeQuery(query, uc.lex)
	}
	return outcome, nil
}

// embedVariants embeds each distinct variant text once.
func (uc *RetrievalUseCase) embedVariants(ctx context.Context, variants []searchVariant) (map[string][]float32, error) {
	texts := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)
	for _, v := range variants {
		if _, ok := seen[v.text]; ok {
			continue
		}
		seen[v.text] = struct{}{}
		texts = append(texts, v.text)
	}

	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for i, text := range texts {
		g.Go(func() error {
			vec, err := uc.embedder.EmbedQuery(gctx, text)
			if err != nil {
				return domain.WrapError(domain.ErrRetrievalFailure, "embed query", err)
			}
			if len(vec) == 0 {
				return domain.WrapError(domain.ErrRetrievalFailure, "embed query", fmt.Errorf("empty vector for %q", text))
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]float32, len(texts))
	for i, text := range texts {
		out[text] = vectors[i]
	}
	return out, nil
}

// fuseFirstWins merges variant result lists in dispatch order. A chunk seen
// again keeps the score of its first occurrence.
func fuseFirstWins(lists [][]domain.RetrievalCandidate, limit int) domain.EvidenceSet {
	seen := make(map[string]struct{})
	out := make(domain.EvidenceSet, 0)
	for _, list := range lists {
		for _, c := range list {
			if _, ok := seen[c.Chunk.ID]; ok {
				continue
			}
			seen[c.Chunk.ID] = struct{}{}
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return trimCandidates(out, limit)
}

func trimCandidates(candidates domain.EvidenceSet, limit int) domain.EvidenceSet {
	if limit <= 0 || len(candidates) <= limit {
		return candidates
	}
	return candidates[:limit]
}

// chooseThreshold relaxes the bar for long queries and for results that span
// several legislation types.
func chooseThreshold(query string, fused domain.EvidenceSet, cfg RetrievalConfig) float64 {
	if len(strings.Fields(query)) > cfg.LongQueryTokens || len(legislationTypes(fused)) > 1 {
		return cfg.RelaxedThreshold
	}
	return cfg.StrictThreshold
}

func gateEvidence(query string, fused domain.EvidenceSet, cfg RetrievalConfig) domain.SearchOutcome {
	threshold := chooseThreshold(query, fused, cfg)
	outcome := domain.SearchOutcome{
		Threshold:  threshold,
		Candidates: fused,
	}

	for _, c := range fused {
		if c.Score >= threshold {
			outcome.Evidence = append(outcome.Evidence, c)
		}
	}
	if len(outcome.Evidence) > 0 {
		outcome.Mode = domain.ModeGrounded
		outcome.ContextSummary = contextSummary(outcome.Evidence)
		return outcome
	}

	outcome.Mode = domain.ModeFallback
	outcome.Hints = trimCandidates(fused, cfg.HintCount)
	return outcome
}

func legislationTypes(set domain.EvidenceSet) []string {
	var types []string
	seen := make(map[string]struct{})
	for _, c := range set {
		t := c.Chunk.LegislationType
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	return types
}

// contextSummary renders "type: title, title; type: title" in evidence order.
func contextSummary(evidence domain.EvidenceSet) string {
	titles := make(map[string][]string)
	seen := make(map[string]struct{})
	types := make([]string, 0)
	for _, c := range evidence {
		t := c.Chunk.LegislationType
		if t == "" {
			t = domain.LegislationGeneral
		}
		if _, ok := titles[t]; !ok {
			types = append(types, t)
			titles[t] = nil
		}
		key := t + "\x00" + c.Chunk.ActTitle
		if _, ok := seen[key]; ok || c.Chunk.ActTitle == "" {
			continue
		}
		seen[key] = struct{}{}
		titles[t] = append(titles[t], c.Chunk.ActTitle)
	}

	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, t+": "+strings.Join(titles[t], ", "))
	}
	return strings.Join(parts, "; ")
}
