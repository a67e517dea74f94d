package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider identifies the LLM backend.
type Provider string

const (
	ProviderClaude   Provider = "claude"
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
)

// ClientConfig holds LLM client configuration.
type ClientConfig struct {
	Provider    Provider      `json:"provider"`
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultClientConfig returns a usable configuration minus the API key.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Provider:    ProviderClaude,
		Model:       "claude-sonnet-4-20250514",
		MaxTokens:   1024,
		Temperature: 0.2,
		Timeout:     30 * time.Second,
	}
}

// Client is a thin completion client over the provider HTTP APIs.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.Model == "" {
		config.Model = defaultModel(config.Provider)
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

func defaultModel(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderDeepSeek:
		return "deepseek-chat"
	default:
		return "claude-sonnet-4-20250514"
	}
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature,omitempty"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends one system+user exchange and returns the model's text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	switch c.config.Provider {
	case ProviderClaude:
		return c.completeClaude(ctx, systemPrompt, userPrompt)
	case ProviderOpenAI:
		return c.completeChat(ctx, "https://api.openai.com/v1/chat/completions", systemPrompt, userPrompt)
	case ProviderDeepSeek:
		return c.completeChat(ctx, "https://api.deepseek.com/v1/chat/completions", systemPrompt, userPrompt)
	default:
		return "", fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}
}

func (c *Client) completeClaude(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := claudeRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		System:      systemPrompt,
		Messages:    []Message{{Role: "user", Content: userPrompt}},
	}

	respBody, err := c.post(ctx, "https://api.anthropic.com/v1/messages", req, map[string]string{
		"x-api-key":         c.config.APIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return "", err
	}

	var parsed claudeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("empty response from provider")
	}
	return parsed.Content[0].Text, nil
}

// completeChat covers the OpenAI-compatible providers.
func (c *Client) completeChat(ctx context.Context, endpoint, systemPrompt, userPrompt string) (string, error) {
	req := chatRequest{
		Model: c.config.Model,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}

	respBody, err := c.post(ctx, endpoint, req, map[string]string{
		"Authorization": "Bearer " + c.config.APIKey,
	})
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s - %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty response from provider")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload interface{}, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, nil
}

// GetProvider returns the configured provider.
func (c *Client) GetProvider() Provider {
	return c.config.Provider
}

// IsConfigured reports whether an API key is present.
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}
