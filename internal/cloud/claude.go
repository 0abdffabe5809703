package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"clip-flow/internal/domain"
)

const (
	claudeDefaultBaseURL = "https://api.anthropic.com/v1"
	claudeAPIVersion     = "2023-06-01"
)

// Claude is a client for the Anthropic messages API.
type Claude struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClaude creates a client with the production endpoint.
func NewClaude(apiKey string) *Claude {
	return &Claude{
		baseURL: claudeDefaultBaseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(),
	}
}

// NewClaudeForTests creates a client against an injectable endpoint.
func NewClaudeForTests(baseURL, apiKey string, client *http.Client) *Claude {
	return &Claude{baseURL: baseURL, apiKey: apiKey, client: client}
}

// messageRequest mirrors the messages API request body.
type messageRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type claudeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Summarize produces a transcript summary via the messages API.
func (c *Claude) Summarize(ctx context.Context, model, text, language string) (string, error) {
	payload := messageRequest{
		Model:  model,
		System: fmt.Sprintf(summarySystemPrompt, summaryLanguageName(language)),
		Messages: []chatMessage{
			{Role: "user", Content: "Summarize the following transcription:\n\n" + text},
		},
		MaxTokens:   1000,
		Temperature: 0.3,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &ProviderError{Provider: domain.ProviderClaude, Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: domain.ProviderClaude, Message: "build request", Err: err}
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: domain.ProviderClaude, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := strings.TrimSpace(string(detail))
		var parsed claudeErrorResponse
		if json.Unmarshal(detail, &parsed) == nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		return "", &ProviderError{
			Provider:   domain.ProviderClaude,
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	var parsed messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ProviderError{Provider: domain.ProviderClaude, Message: "decode response", Err: err}
	}

	var out strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" || block.Type == "" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", &ProviderError{Provider: domain.ProviderClaude, Message: "response contained no text"}
	}
	return strings.TrimSpace(out.String()), nil
}

// ValidateKey reports whether the configured key is accepted by the API.
// A minimal messages request is used because Anthropic has no cheap
// key-check endpoint; auth failures return 401.
func (c *Claude) ValidateKey(ctx context.Context, model string) (bool, error) {
	payload := messageRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return false, &ProviderError{Provider: domain.ProviderClaude, Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return false, &ProviderError{Provider: domain.ProviderClaude, Message: "build request", Err: err}
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", claudeAPIVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, &ProviderError{Provider: domain.ProviderClaude, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()
	return resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden, nil
}
