package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memlens/memlens-go/pkg/llm"
	"github.com/memlens/memlens-go/pkg/llm/ollama"
)

func TestClient_Defaults(t *testing.T) {
	client, err := ollama.NewClient(&ollama.Config{})
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

func TestGenerateWithMessages(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]interface{}{"content": "rewritten query"},
		})
	}))
	defer server.Close()

	client, err := ollama.NewClient(&ollama.Config{BaseURL: server.URL, Model: "test-model"})
	require.NoError(t, err)

	out, err := client.GenerateWithMessages(context.Background(), []llm.Message{
		{Role: "system", Content: "be helpful"},
		{Role: "user", Content: "hello"},
	}, llm.WithTemperature(0.2))
	require.NoError(t, err)

	assert.Equal(t, "rewritten query", out)
	assert.Equal(t, "/api/chat", gotPath)
	assert.Equal(t, "test-model", gotBody["model"])
	assert.Equal(t, false, gotBody["stream"])

	options, ok := gotBody["options"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 0.2, options["temperature"])
}

func TestGenerateWithMessages_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client, err := ollama.NewClient(&ollama.Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.GenerateWithMessages(context.Background(), []llm.Message{{Role: "user", Content: "hello"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestGenerateWithMessages_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]interface{}{"content": ""},
		})
	}))
	defer server.Close()

	client, err := ollama.NewClient(&ollama.Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.GenerateWithMessages(context.Background(), []llm.Message{{Role: "user", Content: "hello"}})
	assert.Error(t, err)
}

func TestGenerate_WrapsPromptAsUserMessage(t *testing.T) {
	var gotBody struct {
		Messages []llm.Message `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"message": map[string]interface{}{"content": "ok"},
		})
	}))
	defer server.Close()

	client, err := ollama.NewClient(&ollama.Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "hello")
	require.NoError(t, err)

	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, "user", gotBody.Messages[0].Role)
	assert.Equal(t, "hello", gotBody.Messages[0].Content)
}
