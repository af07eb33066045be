// Package qwen implements llm.Provider using the Alibaba Cloud DashScope
// text-generation API.
package qwen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/memlens/memlens-go/pkg/llm"
)

const (
	// DefaultBaseURL is the DashScope API endpoint.
	DefaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"

	// DefaultModel is used when Config.Model is empty.
	DefaultModel = "qwen-plus"
)

// Client is a DashScope-backed llm.Provider.
type Client struct {
	client  *http.Client
	apiKey  string
	model   string
	baseURL string
}

// Config contains configuration for creating a Qwen client.
type Config struct {
	// APIKey is the DashScope API key (required).
	APIKey string

	// Model is the model name (default: DefaultModel).
	Model string

	// BaseURL is the API base URL (default: DefaultBaseURL).
	BaseURL string

	// HTTPClient is a custom HTTP client (default: 30s timeout).
	HTTPClient *http.Client
}

// NewClient creates a new Qwen client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("qwen: API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		client:  client,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
	}, nil
}

type generationRequest struct {
	Model      string               `json:"model"`
	Input      generationInput      `json:"input"`
	Parameters generationParameters `json:"parameters"`
}

type generationInput struct {
	Messages []llm.Message `json:"messages"`
}

type generationParameters struct {
	ResultFormat string   `json:"result_format"`
	Temperature  float64  `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
	TopP         float64  `json:"top_p"`
	Stop         []string `json:"stop,omitempty"`
}

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
}

// Generate produces text from a single prompt.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return c.GenerateWithMessages(ctx, []llm.Message{
		{Role: "user", Content: prompt},
	}, opts...)
}

// GenerateWithMessages produces text from a conversation history.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	body, err := json.Marshal(generationRequest{
		Model: c.model,
		Input: generationInput{Messages: messages},
		Parameters: generationParameters{
			ResultFormat: "message",
			Temperature:  options.Temperature,
			MaxTokens:    options.MaxTokens,
			TopP:         options.TopP,
			Stop:         options.Stop,
		},
	})
	if err != nil {
		return "", fmt.Errorf("qwen: marshal request: %w", err)
	}

	url := c.baseURL + "/services/aigc/text-generation/generation"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("qwen: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("qwen: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("qwen: API request failed with status %d: %s", resp.StatusCode, string(data))
	}

	var response generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("qwen: decode response: %w", err)
	}

	if len(response.Output.Choices) == 0 {
		return "", errors.New("qwen: no choices returned")
	}

	return response.Output.Choices[0].Message.Content, nil
}

// Close releases resources. Kept for interface compatibility.
func (c *Client) Close() error {
	return nil
}
