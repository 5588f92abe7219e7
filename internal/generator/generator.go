// Package generator turns retrieved chunks, conversation history and a new
// question into a bounded prompt for the chat model, and shields callers from
// inference backend failures.
package generator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"ragserver/internal/domain"
)

// DegradedAnswer is returned when the inference backend cannot be reached.
// The conversation continues instead of failing the request.
const DegradedAnswer = "Sorry, I'm having trouble reaching the language model right now. Please try again in a moment."

type Generator struct {
	model           domain.ChatModel
	systemPrompt    string
	maxContextChars int
	maxHistoryTurns int
	log             *zap.Logger
}

type Config struct {
	SystemPrompt    string
	MaxContextChars int
	MaxHistoryTurns int
}

func New(model domain.ChatModel, cfg Config, log *zap.Logger) *Generator {
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 4000
	}
	if cfg.MaxHistoryTurns <= 0 {
		cfg.MaxHistoryTurns = 6
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		model:           model,
		systemPrompt:    cfg.SystemPrompt,
		maxContextChars: cfg.MaxContextChars,
		maxHistoryTurns: cfg.MaxHistoryTurns,
		log:             log,
	}
}

// Answer queries the model once with the retrieved context and prior turns.
// An empty retrieval is not an error: the model is still asked and may answer
// from general knowledge or decline. A ModelUnavailable failure degrades to
// an apology answer rather than propagating.
func (g *Generator) Answer(ctx context.Context, question string, retrieved []domain.SearchResult, history []domain.Turn) (domain.Answer, error) {
	messages := g.BuildMessages(question, retrieved, history)

	text, err := g.model.Chat(ctx, messages)
	if err != nil {
		g.log.Warn("model call failed, returning degraded answer",
			zap.String("stage", "generating"),
			zap.Error(err))
		return domain.Answer{Text: DegradedAnswer}, nil
	}

	return domain.Answer{Text: text, Sources: sources(retrieved)}, nil
}

// BuildMessages assembles the bounded prompt: system instruction, retrieved
// chunks with their sources, the last turns of history (most recent last) and
// the new question.
func (g *Generator) BuildMessages(question string, retrieved []domain.SearchResult, history []domain.Turn) []domain.Message {
	messages := []domain.Message{{Role: "system", Content: g.systemPrompt}}

	turns := history
	if len(turns) > g.maxHistoryTurns {
		turns = turns[len(turns)-g.maxHistoryTurns:]
	}
	for _, t := range turns {
		messages = append(messages,
			domain.Message{Role: "user", Content: t.Question},
			domain.Message{Role: "assistant", Content: t.Answer},
		)
	}

	var b strings.Builder
	if ctxBlock := g.contextBlock(retrieved); ctxBlock != "" {
		b.WriteString("Context:\n")
		b.WriteString(ctxBlock)
		b.WriteString("\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	messages = append(messages, domain.Message{Role: "user", Content: b.String()})
	return messages
}

// contextBlock concatenates chunks with their sources, truncated to the
// configured budget so the prompt stays bounded.
func (g *Generator) contextBlock(retrieved []domain.SearchResult) string {
	var b strings.Builder
	for _, r := range retrieved {
		entry := fmt.Sprintf("[source: %s]\n%s\n\n", r.Chunk.SourcePath, strings.TrimSpace(r.Chunk.Text))
		if b.Len()+len(entry) > g.maxContextChars {
			break
		}
		b.WriteString(entry)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sources(retrieved []domain.SearchResult) []string {
	var out []string
	seen := make(map[string]struct{}, len(retrieved))
	for _, r := range retrieved {
		if _, ok := seen[r.Chunk.SourcePath]; ok {
			continue
		}
		seen[r.Chunk.SourcePath] = struct{}{}
		out = append(out, r.Chunk.SourcePath)
	}
	return out
}
