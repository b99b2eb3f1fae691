// Package hnsw is an in-process vector index over coder/hnsw for offline use
// and single-node deployments. Chunk metadata lives beside the graph and is
// persisted with gob.
package hnsw

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
)

const (
	defaultM        = 16
	defaultEfSearch = 64
	overFetch       = 4
)

type Store struct {
	mu    sync.RWMutex
	path  string
	graph *hnsw.Graph[uint64]

	dimensions int
	chunks     map[uint64]domain.Chunk
	keys       map[string]uint64
	nextKey    uint64
}

type metadata struct {
	Dimensions int
	Chunks     map[uint64]domain.Chunk
	NextKey    uint64
}

// Open returns a store persisted at path. A missing index starts empty; an
// empty path keeps the index in memory only.
func Open(path string) (*Store, error) {
	s := &Store{
		path:   path,
		graph:  newGraph(),
		chunks: make(map[uint64]domain.Chunk),
		keys:   make(map[string]uint64),
	}
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = defaultM
	g.EfSearch = defaultEfSearch
	g.Ml = 0.25
	return g
}

func (s *Store) IndexChunks(_ context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors mismatch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, v := range vectors {
		if s.dimensions == 0 {
			s.dimensions = len(v)
		}
		if len(v) != s.dimensions {
			return fmt.Errorf("vector dimension %d does not match index dimension %d", len(v), s.dimensions)
		}
	}

	for i, ch := range chunks {
		// replaced ids are orphaned in the graph; removing nodes from
		// coder/hnsw can corrupt small graphs
		if old, ok := s.keys[ch.ID]; ok {
			delete(s.chunks, old)
		}
		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.keys[ch.ID] = key
		s.chunks[key] = ch
	}
	return nil
}

func (s *Store) PruneSource(_ context.Context, sourceURL string, keepChunks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, ch := range s.chunks {
		if ch.SourceURL == sourceURL && ch.ChunkIndex >= keepChunks {
			delete(s.chunks, key)
			delete(s.keys, ch.ID)
		}
	}
	return nil
}

// Search over-fetches from the graph and applies the filter afterwards.
// Filtered queries scan the whole graph so selective filters still fill limit.
func (s *Store) Search(_ context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievalCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.graph.Len() == 0 {
		return nil, nil
	}
	if len(queryVector) != s.dimensions {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(queryVector), s.dimensions)
	}

	orphans := s.graph.Len() - len(s.chunks)
	k := limit*overFetch + orphans
	if !filter.IsZero() || k > s.graph.Len() {
		k = s.graph.Len()
	}

	out := make([]domain.RetrievalCandidate, 0, limit)
	for _, node := range s.graph.Search(queryVector, k) {
		ch, ok := s.chunks[node.Key]
		if !ok || !matches(ch, filter) {
			continue
		}
		score := 1 - float64(s.graph.Distance(queryVector, node.Value))
		out = append(out, domain.RetrievalCandidate{Chunk: ch, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(ch domain.Chunk, filter domain.SearchFilter) bool {
	if filter.LegislationType != "" && ch.LegislationType != filter.LegislationType {
		return false
	}
	if filter.MinYear > 0 && ch.LegislationYear < filter.MinYear {
		return false
	}
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Flush writes graph and metadata next to each other using temp files and
// renames.
func (s *Store) Flush() error {
	if s.path == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	if err := writeAtomic(s.path, func(f *os.File) error { return s.graph.Export(f) }); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	meta := metadata{Dimensions: s.dimensions, Chunks: s.chunks, NextKey: s.nextKey}
	if err := writeAtomic(s.path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(meta) }); err != nil {
		return fmt.Errorf("save index metadata: %w", err)
	}
	return nil
}

func (s *Store) load() error {
	metaFile, err := os.Open(s.path + ".meta")
	if err != nil {
		return fmt.Errorf("open index metadata: %w", err)
	}
	defer metaFile.Close()

	var meta metadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("decode index metadata: %w", err)
	}

	graphFile, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer graphFile.Close()
	// Import requires an io.ByteReader
	if err := s.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	s.dimensions = meta.Dimensions
	s.nextKey = meta.NextKey
	if meta.Chunks != nil {
		s.chunks = meta.Chunks
	}
	for key, ch := range s.chunks {
		s.keys[ch.ID] = key
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
