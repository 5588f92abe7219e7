package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"ragserver/internal/domain"
	"ragserver/internal/vectorstore"
)

// Storage is an in-memory vector store using brute-force dot-product search.
// Vectors are expected to be L2-normalized, so the dot product is the cosine
// similarity. The store is never mutated in the serving path; rebuilds create
// a fresh store that the pipeline swaps in.
type Storage struct {
	mu       sync.RWMutex
	identity vectorstore.Identity
	vectors  [][]float64
	chunks   []domain.Chunk
}

func NewStorage() *Storage { return &Storage{} }

func (s *Storage) Init(id vectorstore.Identity) error {
	if id.Dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
	s.vectors = nil
	s.chunks = nil
	return nil
}

func (s *Storage) Upsert(chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vectors {
		if len(v) != s.identity.Dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	s.chunks = append(s.chunks, chunks...)
	s.vectors = append(s.vectors, vectors...)
	return nil
}

// Search returns up to topK results ordered by descending similarity, ties
// broken by insertion order. An empty store yields an empty result, and topK
// larger than the stored count returns everything.
func (s *Storage) Search(vector []float64, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 3
	}
	scores := make([]float64, len(s.vectors))
	for i := range s.vectors {
		scores[i] = dot(s.vectors[i], vector)
	}
	idxs := make([]int, len(scores))
	for i := range idxs {
		idxs[i] = i
	}
	// Stable sort keeps insertion order among equal scores.
	sort.SliceStable(idxs, func(a, b int) bool { return scores[idxs[a]] > scores[idxs[b]] })
	if topK > len(idxs) {
		topK = len(idxs)
	}
	results := make([]domain.SearchResult, 0, topK)
	for i := 0; i < topK; i++ {
		j := idxs[i]
		results = append(results, domain.SearchResult{Chunk: s.chunks[j], Score: scores[j]})
	}
	return results, nil
}

func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Storage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.chunks = nil
	return nil
}

// artifact is the self-describing on-disk format.
type artifact struct {
	Identity vectorstore.Identity `json:"identity"`
	Chunks   []domain.Chunk       `json:"chunks"`
	Vectors  [][]float64          `json:"vectors"`
}

// Persist writes the index to path, creating directories as needed.
func (s *Storage) Persist(path string) error {
	s.mu.RLock()
	art := artifact{Identity: s.identity, Chunks: s.chunks, Vectors: s.vectors}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(art)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load replaces the store contents with the artifact at path. Structural
// problems (missing self-description, count or dimension mismatches) fail
// with domain.ErrIndexCorrupt; verifying the identity against the live
// embedder is the caller's job via Identity.
func (s *Storage) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrIndexCorrupt, err)
	}
	if art.Identity.Embedder == "" || art.Identity.Dimension <= 0 {
		return fmt.Errorf("%w: missing embedder identity", domain.ErrIndexCorrupt)
	}
	if len(art.Chunks) != len(art.Vectors) {
		return fmt.Errorf("%w: chunk and vector counts differ", domain.ErrIndexCorrupt)
	}
	for _, v := range art.Vectors {
		if len(v) != art.Identity.Dimension {
			return fmt.Errorf("%w: vector dimension differs from declared dimension", domain.ErrIndexCorrupt)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = art.Identity
	s.chunks = art.Chunks
	s.vectors = art.Vectors
	return nil
}

// Identity returns the embedder identity the store was built or loaded with.
func (s *Storage) Identity() vectorstore.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Chunks returns a copy of the stored chunks in insertion order.
func (s *Storage) Chunks() []domain.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
