// Package app assembles the pipeline from configuration. Both the HTTP server
// and the console binary go through the same assembly and bootstrap.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"ragserver/internal/chatlog"
	"ragserver/internal/chunker"
	"ragserver/internal/config"
	"ragserver/internal/domain"
	"ragserver/internal/embedding/openai"
	"ragserver/internal/embedding/tfidf"
	"ragserver/internal/generator"
	"ragserver/internal/llm/ollama"
	"ragserver/internal/loader"
	"ragserver/internal/service"
	"ragserver/internal/session"
	"ragserver/internal/vectorstore"
	"ragserver/internal/vectorstore/memory"
	"ragserver/internal/vectorstore/qdrant"
)

// Build assembles the pipeline components selected by cfg.
func Build(cfg *config.AppConfig, log *zap.Logger) (*service.Pipeline, error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		ocfg := openai.Config{}
		if c := cfg.Embedder.OpenAI; c != nil {
			ocfg = openai.Config{
				BaseURL:   c.BaseURL,
				APIKeyEnv: c.APIKeyEnv,
				Model:     c.Model,
				Timeout:   time.Duration(c.TimeoutSecs) * time.Second,
			}
		}
		client, err := openai.NewClient(ocfg)
		if err != nil {
			return nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = client
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var newStore func() vectorstore.Storage
	switch cfg.VectorStore.Type {
	case "memory", "":
		newStore = func() vectorstore.Storage { return memory.NewStorage() }
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			return nil, errors.New("qdrant config missing")
		}
		qcfg := qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		}
		newStore = func() vectorstore.Storage { return qdrant.NewStorage(qcfg) }
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	model := ollama.NewClient(ollama.Config{
		BaseURL:       cfg.LLM.BaseURL,
		Model:         cfg.LLM.Model,
		Temperature:   cfg.LLM.Temperature,
		TopP:          cfg.LLM.TopP,
		RepeatPenalty: cfg.LLM.RepeatPenalty,
		Timeout:       time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
	})
	gen := generator.New(model, generator.Config{
		SystemPrompt:    cfg.LLM.SystemPrompt,
		MaxContextChars: cfg.LLM.MaxContextChars,
		MaxHistoryTurns: cfg.LLM.MaxHistoryTurns,
	}, log)

	return service.NewPipeline(
		chunker.NewRecursiveChunker(cfg.Chunker.Size, cfg.Chunker.Overlap),
		emb,
		newStore,
		gen,
		session.NewStore(),
		chatlog.New(cfg.Server.ChatLog),
		cfg.Retriever.TopK,
		log,
	), nil
}

// Bootstrap brings the pipeline to ready: a usable persisted index is loaded,
// otherwise the knowledge base is indexed from scratch and, when a persist
// path is configured, written back.
func Bootstrap(ctx context.Context, p *service.Pipeline, cfg *config.AppConfig, log *zap.Logger) error {
	persist := cfg.VectorStore.PersistPath
	if persist != "" {
		if _, err := os.Stat(persist); err == nil {
			err := p.LoadIndex(persist)
			if err == nil {
				return nil
			}
			if !errors.Is(err, domain.ErrIndexCorrupt) {
				return fmt.Errorf("load index %s: %w", persist, err)
			}
			log.Warn("persisted index unusable, rebuilding", zap.String("path", persist), zap.Error(err))
		}
	}

	docs, err := loader.Load(cfg.KnowledgeBase.Path)
	if err != nil {
		return fmt.Errorf("load knowledge base %s: %w", cfg.KnowledgeBase.Path, err)
	}
	if err := p.BuildIndex(ctx, docs); err != nil {
		return err
	}
	if persist != "" {
		if err := p.PersistIndex(persist); err != nil {
			log.Warn("persisting index failed", zap.String("path", persist), zap.Error(err))
		}
	}
	return nil
}
