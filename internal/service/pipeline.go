// Package service wires the retrieval-and-answer pipeline together: build
// time is load -> chunk -> embed -> index, request time is retrieve ->
// generate -> record. A single Pipeline instance is constructed at startup
// and passed to the front ends by reference.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragserver/internal/chatlog"
	"ragserver/internal/domain"
	"ragserver/internal/session"
	"ragserver/internal/vectorstore"
)

// AskRequest is one user question with optional identifiers.
type AskRequest struct {
	Question  string
	UserID    string
	SessionID string
	Metadata  map[string]any
}

// AskResponse mirrors the chat API response body.
type AskResponse struct {
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Sources        []string  `json:"sources"`
	SessionID      string    `json:"session_id"`
	RequestID      string    `json:"request_id"`
	LatencyMS      float64   `json:"latency_ms"`
	TokenCount     int       `json:"token_count"`
	RetrievalScore float64   `json:"retrieval_score"`
	Timestamp      time.Time `json:"timestamp"`
}

// Pipeline is the shared service object behind every front end. The vector
// index is never mutated while serving; rebuilds construct a fresh store and
// swap the reference.
type Pipeline struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	newStore  func() vectorstore.Storage
	generator domain.Generator
	sessions  *session.Store
	records   *chatlog.Logger
	topK      int
	log       *zap.Logger

	mu    sync.RWMutex
	index vectorstore.Storage
	ready atomic.Bool
}

func NewPipeline(
	chunker domain.Chunker,
	embedder domain.Embedder,
	newStore func() vectorstore.Storage,
	generator domain.Generator,
	sessions *session.Store,
	records *chatlog.Logger,
	topK int,
	log *zap.Logger,
) *Pipeline {
	if topK <= 0 {
		topK = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		chunker:   chunker,
		embedder:  embedder,
		newStore:  newStore,
		generator: generator,
		sessions:  sessions,
		records:   records,
		topK:      topK,
		log:       log,
	}
}

// Ready reports whether startup completed and the pipeline can serve.
func (p *Pipeline) Ready() bool { return p.ready.Load() }

// BuildIndex chunks and embeds the documents into a fresh store, then swaps
// it in atomically. It is safe to call while serving; requests keep using the
// previous index until the swap.
func (p *Pipeline) BuildIndex(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return errors.New("no documents in knowledge base")
	}
	var chunks []domain.Chunk
	var texts []string
	for _, d := range docs {
		cs, err := p.chunker.Chunk(d)
		if err != nil {
			return fmt.Errorf("chunk %s: %w", d.SourcePath, err)
		}
		for _, c := range cs {
			chunks = append(chunks, c)
			texts = append(texts, c.Text)
		}
	}
	if len(chunks) == 0 {
		return errors.New("knowledge base produced no chunks")
	}
	if err := p.embedder.Prepare(texts); err != nil {
		return fmt.Errorf("prepare embedder: %w", err)
	}

	st := p.newStore()
	id := vectorstore.Identity{Embedder: p.embedder.Name(), Dimension: p.embedder.Dimension()}
	if err := st.Init(id); err != nil {
		return fmt.Errorf("init vector store: %w", err)
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed corpus: %w", err)
	}
	if err := st.Upsert(chunks, vectors); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}

	p.swap(st)
	p.log.Info("index built",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimension", id.Dimension),
		zap.String("embedder", id.Embedder))
	return nil
}

// PersistIndex writes the current index to path when the backing store
// supports it.
func (p *Pipeline) PersistIndex(path string) error {
	p.mu.RLock()
	st := p.index
	p.mu.RUnlock()
	if st == nil {
		return domain.ErrNotReady
	}
	pst, ok := st.(vectorstore.Persistent)
	if !ok {
		return errors.New("vector store does not support persistence")
	}
	return pst.Persist(path)
}

// LoadIndex restores a persisted index, re-prepares the embedder over the
// stored chunk texts, and verifies the artifact's embedder identity against
// the live embedder. A mismatch is an ErrIndexCorrupt, never a silent
// degradation to empty results.
func (p *Pipeline) LoadIndex(path string) error {
	st := p.newStore()
	pst, ok := st.(vectorstore.Persistent)
	if !ok {
		return errors.New("vector store does not support persistence")
	}
	if err := pst.Load(path); err != nil {
		return err
	}

	texts := make([]string, 0, st.Count())
	if cs, ok := st.(interface{ Chunks() []domain.Chunk }); ok {
		for _, c := range cs.Chunks() {
			texts = append(texts, c.Text)
		}
	}
	if err := p.embedder.Prepare(texts); err != nil {
		return fmt.Errorf("prepare embedder: %w", err)
	}
	live := vectorstore.Identity{Embedder: p.embedder.Name(), Dimension: p.embedder.Dimension()}
	if got := pst.Identity(); got != live {
		return fmt.Errorf("%w: index built with %s/%d, current embedder is %s/%d",
			domain.ErrIndexCorrupt, got.Embedder, got.Dimension, live.Embedder, live.Dimension)
	}

	p.swap(st)
	p.log.Info("index loaded", zap.String("path", path), zap.Int("chunks", st.Count()))
	return nil
}

func (p *Pipeline) swap(st vectorstore.Storage) {
	p.mu.Lock()
	p.index = st
	p.mu.Unlock()
	p.ready.Store(true)
}

// Retrieve embeds the query and returns the top-k most similar chunks. It
// never mutates the index and never returns more than k results.
func (p *Pipeline) Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if !p.Ready() {
		return nil, domain.ErrNotReady
	}
	if k <= 0 {
		k = p.topK
	}
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	p.mu.RLock()
	st := p.index
	p.mu.RUnlock()
	return st.Search(vec, k)
}

// Ask runs the full request pipeline for one question: validate, retrieve,
// generate, record history, append the chat log. Request-scope failures are
// logged and degraded; they never crash the serving process.
func (p *Pipeline) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return AskResponse{}, domain.ErrEmptyQuestion
	}
	if !p.Ready() {
		return AskResponse{}, domain.ErrNotReady
	}

	start := time.Now()
	requestID := uuid.NewString()
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	userID := req.UserID
	if userID == "" {
		userID = "anonymous"
	}

	history := p.sessions.History(sessionID)

	retrieved, err := p.Retrieve(ctx, question, p.topK)
	if err != nil {
		// An empty retrieval is not fatal; the generator may still answer.
		p.log.Error("retrieval failed",
			zap.String("request_id", requestID),
			zap.String("stage", "retrieving"),
			zap.Error(err))
		retrieved = nil
	}

	answer, err := p.generator.Answer(ctx, question, retrieved, history)
	if err != nil {
		return AskResponse{}, err
	}

	p.sessions.Append(sessionID, question, answer.Text)

	latency := float64(time.Since(start).Microseconds()) / 1000.0
	resp := AskResponse{
		Question:       question,
		Answer:         answer.Text,
		Sources:        answer.Sources,
		SessionID:      sessionID,
		RequestID:      requestID,
		LatencyMS:      latency,
		TokenCount:     len(strings.Fields(question)) + len(strings.Fields(answer.Text)),
		RetrievalScore: topScore(retrieved),
		Timestamp:      time.Now().UTC(),
	}

	rec := domain.ChatRecord{
		RequestID:      resp.RequestID,
		SessionID:      resp.SessionID,
		UserID:         userID,
		Question:       resp.Question,
		Answer:         resp.Answer,
		Sources:        resp.Sources,
		LatencyMS:      resp.LatencyMS,
		TokenCount:     resp.TokenCount,
		RetrievalScore: resp.RetrievalScore,
		Timestamp:      resp.Timestamp,
		Metadata:       req.Metadata,
	}
	if err := p.records.Append(rec); err != nil {
		p.log.Error("chat log append failed",
			zap.String("request_id", requestID),
			zap.String("stage", "responding"),
			zap.Error(err))
	}
	return resp, nil
}

// Metrics aggregates the chat log.
func (p *Pipeline) Metrics() (chatlog.Metrics, error) {
	return p.records.Metrics()
}

// topScore exposes the actual similarity of the best retrieved chunk rather
// than a source-count heuristic.
func topScore(retrieved []domain.SearchResult) float64 {
	if len(retrieved) == 0 {
		return 0
	}
	return retrieved[0].Score
}
