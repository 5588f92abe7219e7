package generator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/domain"
)

type fakeModel struct {
	reply    string
	err      error
	messages []domain.Message
	calls    int
}

func (f *fakeModel) Chat(_ context.Context, messages []domain.Message) (string, error) {
	f.calls++
	f.messages = messages
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func retrieved() []domain.SearchResult {
	return []domain.SearchResult{
		{Chunk: domain.Chunk{Text: "The recycling rate in 2023 was 52 percent.", SourcePath: "kb/recycling_rates.md"}, Score: 0.81},
		{Chunk: domain.Chunk{Text: "Waste generated totalled 6.9 million tonnes.", SourcePath: "kb/waste_trends.md"}, Score: 0.42},
	}
}

func TestAnswer_UsesContextAndReturnsSources(t *testing.T) {
	model := &fakeModel{reply: "It was 52 percent."}
	g := New(model, Config{SystemPrompt: "stay grounded"}, nil)

	ans, err := g.Answer(context.Background(), "What was the recycling rate?", retrieved(), nil)
	require.NoError(t, err)
	assert.Equal(t, "It was 52 percent.", ans.Text)
	assert.Equal(t, []string{"kb/recycling_rates.md", "kb/waste_trends.md"}, ans.Sources)

	require.NotEmpty(t, model.messages)
	assert.Equal(t, "system", model.messages[0].Role)
	last := model.messages[len(model.messages)-1]
	assert.Equal(t, "user", last.Role)
	assert.Contains(t, last.Content, "[source: kb/recycling_rates.md]")
	assert.Contains(t, last.Content, "52 percent")
	assert.Contains(t, last.Content, "Question: What was the recycling rate?")
}

func TestAnswer_HistoryMostRecentLast(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	g := New(model, Config{SystemPrompt: "s"}, nil)
	history := []domain.Turn{
		{Question: "first q", Answer: "first a"},
		{Question: "second q", Answer: "second a"},
	}

	_, err := g.Answer(context.Background(), "third q", nil, history)
	require.NoError(t, err)

	var transcript []string
	for _, m := range model.messages {
		transcript = append(transcript, m.Content)
	}
	joined := strings.Join(transcript, "\n")
	assert.Less(t, strings.Index(joined, "first q"), strings.Index(joined, "second q"))
	assert.Less(t, strings.Index(joined, "second a"), strings.Index(joined, "third q"))
}

func TestAnswer_HistoryCapped(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	g := New(model, Config{SystemPrompt: "s", MaxHistoryTurns: 2}, nil)
	history := []domain.Turn{
		{Question: "ancient q", Answer: "ancient a"},
		{Question: "old q", Answer: "old a"},
		{Question: "recent q", Answer: "recent a"},
	}

	_, err := g.Answer(context.Background(), "now", nil, history)
	require.NoError(t, err)

	for _, m := range model.messages {
		assert.NotContains(t, m.Content, "ancient q")
	}
}

func TestAnswer_EmptyRetrievalStillQueriesModel(t *testing.T) {
	model := &fakeModel{reply: "I don't have that information."}
	g := New(model, Config{SystemPrompt: "s"}, nil)

	ans, err := g.Answer(context.Background(), "unknown topic?", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, model.calls)
	assert.Empty(t, ans.Sources)
	last := model.messages[len(model.messages)-1]
	assert.NotContains(t, last.Content, "Context:")
}

func TestAnswer_ModelUnavailableDegrades(t *testing.T) {
	model := &fakeModel{err: domain.ErrModelUnavailable}
	g := New(model, Config{SystemPrompt: "s"}, nil)

	ans, err := g.Answer(context.Background(), "anything?", retrieved(), nil)
	require.NoError(t, err)
	assert.Equal(t, DegradedAnswer, ans.Text)
	assert.Empty(t, ans.Sources)
}

func TestAnswer_ContextBounded(t *testing.T) {
	model := &fakeModel{reply: "ok"}
	g := New(model, Config{SystemPrompt: "s", MaxContextChars: 80}, nil)
	big := []domain.SearchResult{
		{Chunk: domain.Chunk{Text: strings.Repeat("a", 60), SourcePath: "kb/a.md"}},
		{Chunk: domain.Chunk{Text: strings.Repeat("b", 60), SourcePath: "kb/b.md"}},
	}

	_, err := g.Answer(context.Background(), "q", big, nil)
	require.NoError(t, err)
	last := model.messages[len(model.messages)-1]
	assert.Contains(t, last.Content, "kb/a.md")
	assert.NotContains(t, last.Content, "kb/b.md")
}
