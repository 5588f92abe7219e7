package vectorstore

import "ragserver/internal/domain"

// Identity describes the embedder a store's vectors came from. Persisted
// artifacts carry it so a mismatched embedder is detected at load time
// instead of silently producing garbage similarity scores.
type Identity struct {
	Embedder  string `json:"embedder"`
	Dimension int    `json:"dimension"`
}

// Storage persists vectors and supports similarity search.
type Storage interface {
	Init(id Identity) error
	Upsert(chunks []domain.Chunk, vectors [][]float64) error
	Search(vector []float64, topK int) ([]domain.SearchResult, error)
	Count() int
	Clear() error
}

// Persistent is implemented by stores whose index round-trips through disk.
// Load restores the artifact and its recorded identity; callers verify the
// identity against the live embedder before serving from the store.
type Persistent interface {
	Persist(path string) error
	Load(path string) error
	Identity() Identity
}
