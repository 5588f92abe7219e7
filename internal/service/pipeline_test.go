package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/chatlog"
	"ragserver/internal/chunker"
	"ragserver/internal/domain"
	"ragserver/internal/embedding/tfidf"
	"ragserver/internal/session"
	"ragserver/internal/vectorstore"
	"ragserver/internal/vectorstore/memory"
)

type generatorCall struct {
	question  string
	retrieved []domain.SearchResult
	history   []domain.Turn
}

type fakeGenerator struct {
	calls []generatorCall
	err   error
}

func (g *fakeGenerator) Answer(_ context.Context, question string, retrieved []domain.SearchResult, history []domain.Turn) (domain.Answer, error) {
	g.calls = append(g.calls, generatorCall{question: question, retrieved: retrieved, history: history})
	if g.err != nil {
		return domain.Answer{}, g.err
	}
	var sources []string
	for _, r := range retrieved {
		sources = append(sources, r.Chunk.SourcePath)
	}
	return domain.Answer{Text: "answer to " + question, Sources: sources}, nil
}

var docs = []domain.Document{
	{SourcePath: "kb/recycling.md", Text: "The recycling rate in twenty twenty three was fifty two percent citywide."},
	{SourcePath: "kb/compost.md", Text: "Compost collection happens weekly on Tuesdays for all residential zones."},
}

func newTestPipeline(t *testing.T, gen domain.Generator) *Pipeline {
	t.Helper()
	return NewPipeline(
		chunker.NewRecursiveChunker(1000, 200),
		tfidf.NewEmbedder(),
		func() vectorstore.Storage { return memory.NewStorage() },
		gen,
		session.NewStore(),
		chatlog.New(filepath.Join(t.TempDir(), "cases.jsonl")),
		3,
		nil,
	)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, gen)
	require.NoError(t, p.BuildIndex(context.Background(), docs))

	_, err := p.Ask(context.Background(), AskRequest{Question: "   \t  "})
	assert.ErrorIs(t, err, domain.ErrEmptyQuestion)
	assert.Empty(t, gen.calls)
}

func TestAsk_NotReady(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{})
	assert.False(t, p.Ready())
	_, err := p.Ask(context.Background(), AskRequest{Question: "hello"})
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestAsk_FullFlow(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, gen)
	require.NoError(t, p.BuildIndex(context.Background(), docs))
	require.True(t, p.Ready())

	resp, err := p.Ask(context.Background(), AskRequest{Question: "What was the recycling rate?"})
	require.NoError(t, err)

	assert.Equal(t, "What was the recycling rate?", resp.Question)
	assert.Equal(t, "answer to What was the recycling rate?", resp.Answer)
	assert.NotEmpty(t, resp.RequestID)
	assert.NotEmpty(t, resp.SessionID)
	assert.False(t, resp.Timestamp.IsZero())
	// 5 question words plus 7 answer words.
	assert.Equal(t, 12, resp.TokenCount)
	assert.Greater(t, resp.RetrievalScore, 0.0)
	assert.Contains(t, resp.Sources, "kb/recycling.md")

	require.Len(t, gen.calls, 1)
	assert.NotEmpty(t, gen.calls[0].retrieved)
	assert.Empty(t, gen.calls[0].history)
}

func TestAsk_SessionHistoryCarriesOver(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, gen)
	require.NoError(t, p.BuildIndex(context.Background(), docs))

	first, err := p.Ask(context.Background(), AskRequest{Question: "When is compost collected?"})
	require.NoError(t, err)

	_, err = p.Ask(context.Background(), AskRequest{
		Question:  "And which zones does that cover?",
		SessionID: first.SessionID,
	})
	require.NoError(t, err)

	require.Len(t, gen.calls, 2)
	require.Len(t, gen.calls[1].history, 1)
	assert.Equal(t, "When is compost collected?", gen.calls[1].history[0].Question)
	assert.Equal(t, first.Answer, gen.calls[1].history[0].Answer)
}

func TestAsk_SeparateSessionsAreIndependent(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, gen)
	require.NoError(t, p.BuildIndex(context.Background(), docs))

	a, err := p.Ask(context.Background(), AskRequest{Question: "first question"})
	require.NoError(t, err)
	b, err := p.Ask(context.Background(), AskRequest{Question: "second question"})
	require.NoError(t, err)

	assert.NotEqual(t, a.SessionID, b.SessionID)
	assert.Empty(t, gen.calls[1].history)
}

func TestAsk_GeneratorErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	p := newTestPipeline(t, &fakeGenerator{err: boom})
	require.NoError(t, p.BuildIndex(context.Background(), docs))

	_, err := p.Ask(context.Background(), AskRequest{Question: "anything"})
	assert.ErrorIs(t, err, boom)
}

func TestAsk_AppendsChatLog(t *testing.T) {
	gen := &fakeGenerator{}
	p := newTestPipeline(t, gen)
	require.NoError(t, p.BuildIndex(context.Background(), docs))

	for i := 0; i < 3; i++ {
		_, err := p.Ask(context.Background(), AskRequest{Question: "What was the recycling rate?"})
		require.NoError(t, err)
	}

	m, err := p.Metrics()
	require.NoError(t, err)
	assert.Equal(t, 3, m.TotalInteractions)
	assert.Greater(t, m.AvgRetrievalScore, 0.0)
	assert.InDelta(t, 12.0, m.AvgTokenCount, 1e-9)
}

func TestRetrieve_NotReady(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{})
	_, err := p.Retrieve(context.Background(), "query", 3)
	assert.ErrorIs(t, err, domain.ErrNotReady)
}

func TestRetrieve_BoundedByK(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{})
	require.NoError(t, p.BuildIndex(context.Background(), docs))

	res, err := p.Retrieve(context.Background(), "recycling rate", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "kb/recycling.md", res[0].Chunk.SourcePath)
}

func TestRetrieve_SelfRetrievalIsTopResult(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{})
	require.NoError(t, p.BuildIndex(context.Background(), docs))

	// Querying with a chunk's own text must rank that chunk first.
	res, err := p.Retrieve(context.Background(), docs[1].Text, 3)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "kb/compost.md", res[0].Chunk.SourcePath)
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
}

func TestRetrieve_RecyclingRateQuestion(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{})
	kb := []domain.Document{
		{SourcePath: "kb/rates.md", Text: "The recycling rate in 2023 was 52 percent."},
		{SourcePath: "kb/compost.md", Text: "Compost collection happens weekly on Tuesdays for all residential zones."},
	}
	require.NoError(t, p.BuildIndex(context.Background(), kb))

	res, err := p.Retrieve(context.Background(), "What was the recycling rate in 2023?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "kb/rates.md", res[0].Chunk.SourcePath)
	assert.Greater(t, res[0].Score, 0.3)
}

func TestPersistLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "store.json")

	builder := newTestPipeline(t, &fakeGenerator{})
	require.NoError(t, builder.BuildIndex(context.Background(), docs))
	require.NoError(t, builder.PersistIndex(path))

	loader := newTestPipeline(t, &fakeGenerator{})
	require.NoError(t, loader.LoadIndex(path))
	require.True(t, loader.Ready())

	want, err := builder.Retrieve(context.Background(), "recycling rate", 3)
	require.NoError(t, err)
	got, err := loader.Retrieve(context.Background(), "recycling rate", 3)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Chunk, got[i].Chunk)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
	}
}

func TestLoadIndex_EmbedderMismatchIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	builder := newTestPipeline(t, &fakeGenerator{})
	require.NoError(t, builder.BuildIndex(context.Background(), docs))
	require.NoError(t, builder.PersistIndex(path))

	mismatched := NewPipeline(
		chunker.NewRecursiveChunker(1000, 200),
		&renamedEmbedder{Embedder: tfidf.NewEmbedder()},
		func() vectorstore.Storage { return memory.NewStorage() },
		&fakeGenerator{},
		session.NewStore(),
		chatlog.New(filepath.Join(t.TempDir(), "cases.jsonl")),
		3,
		nil,
	)
	err := mismatched.LoadIndex(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexCorrupt)
	assert.False(t, mismatched.Ready())
}

// renamedEmbedder reports a different identity than the one that built the
// persisted artifact.
type renamedEmbedder struct{ *tfidf.Embedder }

func (r *renamedEmbedder) Name() string { return "other-model" }

func TestBuildIndex_EmptyKnowledgeBase(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{})
	assert.Error(t, p.BuildIndex(context.Background(), nil))
	assert.False(t, p.Ready())
}
