package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/domain"
)

func messages() []domain.Message {
	return []domain.Message{
		{Role: "system", Content: "answer briefly"},
		{Role: "user", Content: "What was the recycling rate in 2023?"},
	}
}

func TestChat_NativeEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req struct {
			Model    string           `json:"model"`
			Messages []domain.Message `json:"messages"`
			Stream   bool             `json:"stream"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)
		assert.Len(t, req.Messages, 2)
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "52 percent."},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Model: "llama3"})
	text, err := c.Chat(context.Background(), messages())
	require.NoError(t, err)
	assert.Equal(t, "52 percent.", text)
}

func TestChat_FallsBackToOpenAIRoute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			http.NotFound(w, r)
		case "/v1/chat/completions":
			json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{
					{"message": map[string]string{"role": "assistant", "content": "From the fallback."}},
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	text, err := c.Chat(context.Background(), messages())
	require.NoError(t, err)
	assert.Equal(t, "From the fallback.", text)
}

func TestChat_UnreachableIsModelUnavailable(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1", Timeout: 200 * time.Millisecond})
	_, err := c.Chat(context.Background(), messages())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}

func TestChat_TimeoutIsModelUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Chat(context.Background(), messages())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrModelUnavailable)
}
