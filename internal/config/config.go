package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	ChatLog string `yaml:"chat_log"`
}

// KnowledgeBaseConfig locates the markdown snippet folder.
type KnowledgeBaseConfig struct {
	Path string `yaml:"path"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type        string        `yaml:"type"`
	PersistPath string        `yaml:"persist_path"`
	Qdrant      *QdrantConfig `yaml:"qdrant,omitempty"`
}

// LLMConfig configures the locally hosted chat model.
type LLMConfig struct {
	BaseURL         string  `yaml:"base_url"`
	Model           string  `yaml:"model"`
	Temperature     float64 `yaml:"temperature"`
	TopP            float64 `yaml:"top_p"`
	RepeatPenalty   float64 `yaml:"repeat_penalty"`
	TimeoutSecs     int     `yaml:"timeout_secs"`
	SystemPrompt    string  `yaml:"system_prompt"`
	MaxContextChars int     `yaml:"max_context_chars"`
	MaxHistoryTurns int     `yaml:"max_history_turns"`
}

// RetrieverConfig bounds retrieval.
type RetrieverConfig struct {
	TopK int `yaml:"top_k"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server        ServerConfig        `yaml:"server"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	Chunker       ChunkerConfig       `yaml:"chunker"`
	Embedder      EmbedderConfig      `yaml:"embedder"`
	VectorStore   VectorStoreConfig   `yaml:"vector_store"`
	LLM           LLMConfig           `yaml:"llm"`
	Retriever     RetrieverConfig     `yaml:"retriever"`
}

// DefaultSystemPrompt instructs the model to stay grounded in the retrieved context.
const DefaultSystemPrompt = "You are a helpful assistant answering questions about " +
	"waste management and recycling statistics. Answer using the provided context " +
	"when it is relevant, cite nothing you cannot support, and say so when the " +
	"context does not contain the answer."

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8000"
	}
	if cfg.Server.ChatLog == "" {
		cfg.Server.ChatLog = "cases.jsonl"
	}
	if cfg.KnowledgeBase.Path == "" {
		cfg.KnowledgeBase.Path = "data/knowledge_base/snippets"
	}
	if cfg.Chunker.Size <= 0 {
		cfg.Chunker.Size = 1000
	}
	if cfg.Chunker.Overlap <= 0 {
		cfg.Chunker.Overlap = 200
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "http://localhost:11434"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "all-minilm"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.1
	}
	if cfg.LLM.TopP == 0 {
		cfg.LLM.TopP = 0.9
	}
	if cfg.LLM.RepeatPenalty == 0 {
		cfg.LLM.RepeatPenalty = 1.1
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 60
	}
	if cfg.LLM.SystemPrompt == "" {
		cfg.LLM.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.LLM.MaxContextChars <= 0 {
		cfg.LLM.MaxContextChars = 4000
	}
	if cfg.LLM.MaxHistoryTurns <= 0 {
		cfg.LLM.MaxHistoryTurns = 6
	}
	if cfg.Retriever.TopK <= 0 {
		cfg.Retriever.TopK = 3
	}
}
