// Package embedcache memoizes query embeddings. Corpus batches pass through
// untouched; only EmbedQuery results are cached.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
)

const DefaultSize = 512

type Embedder struct {
	inner ports.Embedder
	model string
	cache *lru.Cache[string, []float32]
}

// New wraps inner. model is mixed into the key so a model switch never
// serves stale vectors.
func New(inner ports.Embedder, model string, size int) *Embedder {
	if size <= 0 {
		size = DefaultSize
	}
	cache, _ := lru.New[string, []float32](size)
	return &Embedder{inner: inner, model: model, cache: cache}
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.inner.Embed(ctx, texts)
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec, nil
	}
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, vec)
	return vec, nil
}

func (e *Embedder) Len() int {
	return e.cache.Len()
}
