package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ragserver/internal/domain"
)

// Client talks to a locally hosted Ollama. It uses the native /api/chat
// endpoint and falls back to the OpenAI-compatible /v1/chat/completions
// route when the native one is absent, so any OpenAI-compatible local
// server also works.
type Client struct {
	baseURL       string
	model         string
	temperature   float64
	topP          float64
	repeatPenalty float64
	client        *http.Client
}

type Config struct {
	BaseURL       string
	Model         string
	Temperature   float64
	TopP          float64
	RepeatPenalty float64
	Timeout       time.Duration
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 60 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		model:         cfg.Model,
		temperature:   cfg.Temperature,
		topP:          cfg.TopP,
		repeatPenalty: cfg.RepeatPenalty,
		client:        &http.Client{Timeout: t},
	}
}

// Chat sends one request/response round trip. No retries: an unreachable or
// timed-out backend surfaces as domain.ErrModelUnavailable and a late
// response, if any, is discarded by the transport.
func (c *Client) Chat(ctx context.Context, messages []domain.Message) (string, error) {
	text, status, err := c.chatNative(ctx, messages)
	if err == nil {
		return text, nil
	}
	if status == http.StatusNotFound {
		return c.chatOpenAI(ctx, messages)
	}
	return "", err
}

func (c *Client) chatNative(ctx context.Context, messages []domain.Message) (string, int, error) {
	body := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   false,
		"options": map[string]any{
			"temperature":    c.temperature,
			"top_p":          c.topP,
			"repeat_penalty": c.repeatPenalty,
		},
	}
	var out struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	status, err := c.postJSON(ctx, c.baseURL+"/api/chat", body, &out)
	if err != nil {
		return "", status, err
	}
	content := strings.TrimSpace(out.Message.Content)
	if content == "" {
		return "", status, fmt.Errorf("%w: empty completion", domain.ErrModelUnavailable)
	}
	return content, status, nil
}

func (c *Client) chatOpenAI(ctx context.Context, messages []domain.Message) (string, error) {
	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"top_p":       c.topP,
	}
	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if _, err := c.postJSON(ctx, c.baseURL+"/v1/chat/completions", body, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", domain.ErrModelUnavailable)
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrModelUnavailable)
	}
	return content, nil
}

func (c *Client) postJSON(ctx context.Context, url string, body any, out any) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		// Covers connection refused and client/context timeouts alike.
		return 0, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("%w: %s returned %s", domain.ErrModelUnavailable, url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	return resp.StatusCode, nil
}
