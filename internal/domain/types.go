package domain

import "time"

// Document represents a single markdown file loaded from the knowledge base.
type Document struct {
	SourcePath string
	Text       string
}

// Chunk is an overlapping window of a document used for indexing.
// Index is monotonically increasing within a document; StartOffset and
// EndOffset are rune offsets into the original document text.
type Chunk struct {
	Text        string `json:"text"`
	SourcePath  string `json:"source_path"`
	Index       int    `json:"index"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
}

// SearchResult is a matching chunk with its similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Turn is one question/answer exchange within a session.
type Turn struct {
	Question string
	Answer   string
}

// Message is a single chat message sent to the language model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Answer is the generator's result for one question.
type Answer struct {
	Text    string
	Sources []string
}

// ChatRecord is one request's entry in the append-only chat log.
// Records are written once and never rewritten.
type ChatRecord struct {
	RequestID      string         `json:"request_id"`
	SessionID      string         `json:"session_id"`
	UserID         string         `json:"user_id"`
	Question       string         `json:"question"`
	Answer         string         `json:"answer"`
	Sources        []string       `json:"sources"`
	LatencyMS      float64        `json:"latency_ms"`
	TokenCount     int            `json:"token_count"`
	RetrievalScore float64        `json:"retrieval_score"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}
