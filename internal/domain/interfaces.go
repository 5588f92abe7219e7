package domain

import "context"

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a unit-normalized vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// ChatModel sends a conversation to an instruction-following language model
// and returns its completion.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Generator produces an answer for a question given retrieved context and
// prior conversation turns.
type Generator interface {
	Answer(ctx context.Context, question string, retrieved []SearchResult, history []Turn) (Answer, error)
}
