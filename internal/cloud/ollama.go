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

const ollamaDefaultBaseURL = "http://localhost:11434"

// Ollama is a client for a locally running Ollama server, used for
// summarization without any cloud dependency.
type Ollama struct {
	baseURL string
	client  *http.Client
}

// NewOllama creates a client against the default local endpoint.
func NewOllama() *Ollama {
	return &Ollama{baseURL: ollamaDefaultBaseURL, client: newHTTPClient()}
}

// NewOllamaForTests creates a client against an injectable endpoint.
func NewOllamaForTests(baseURL string, client *http.Client) *Ollama {
	return &Ollama{baseURL: baseURL, client: client}
}

// Available reports whether the local server responds.
func (o *Ollama) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ListModels returns the names of locally pulled models.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, &ProviderError{Provider: domain.ProviderOllama, Message: "build request", Err: err}
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: domain.ProviderOllama, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{
			Provider:   domain.ProviderOllama,
			StatusCode: resp.StatusCode,
			Message:    "list models failed",
		}
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &ProviderError{Provider: domain.ProviderOllama, Message: "decode response", Err: err}
	}

	names := make([]string, 0, len(parsed.Models))
	for _, model := range parsed.Models {
		names = append(names, model.Name)
	}
	return names, nil
}

// generateRequest mirrors the non-streaming generate API body.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Summarize produces a transcript summary via the generate API.
func (o *Ollama) Summarize(ctx context.Context, model, text, language string) (string, error) {
	prompt := fmt.Sprintf(
		"%s\n\nSummarize the following transcription:\n\n%s",
		fmt.Sprintf(summarySystemPrompt, summaryLanguageName(language)),
		text,
	)

	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", &ProviderError{Provider: domain.ProviderOllama, Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: domain.ProviderOllama, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: domain.ProviderOllama, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := strings.TrimSpace(string(detail))
		if resp.StatusCode == http.StatusNotFound {
			message = fmt.Sprintf("model %q is not pulled; run: ollama pull %s", model, model)
		}
		return "", &ProviderError{
			Provider:   domain.ProviderOllama,
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}

	var parsed generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &ProviderError{Provider: domain.ProviderOllama, Message: "decode response", Err: err}
	}
	return strings.TrimSpace(parsed.Response), nil
}
