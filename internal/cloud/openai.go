package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"clip-flow/internal/domain"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

// OpenAI is a client for the OpenAI transcription and chat APIs.
type OpenAI struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAI creates a client with the production endpoint.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{
		baseURL: openAIDefaultBaseURL,
		apiKey:  apiKey,
		client:  newHTTPClient(),
	}
}

// NewOpenAIForTests creates a client against an injectable endpoint.
func NewOpenAIForTests(baseURL, apiKey string, client *http.Client) *OpenAI {
	return &OpenAI{baseURL: baseURL, apiKey: apiKey, client: client}
}

// whisperVerboseResponse mirrors the verbose_json transcription response.
type whisperVerboseResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads the audio file to the Whisper API and maps the verbose
// response to the domain result.
func (o *OpenAI) Transcribe(ctx context.Context, audioPath, language string) (*domain.TranscriptionResult, error) {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, &ProviderError{
			Provider: domain.ProviderOpenAI,
			Message:  fmt.Sprintf("read audio file: %s", audioPath),
			Err:      err,
		}
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, &ProviderError{Provider: domain.ProviderOpenAI, Message: "build upload form", Err: err}
	}
	if _, err := part.Write(audio); err != nil {
		return nil, &ProviderError{Provider: domain.ProviderOpenAI, Message: "build upload form", Err: err}
	}
	_ = form.WriteField("model", "whisper-1")
	_ = form.WriteField("response_format", "verbose_json")
	if lang := strings.TrimSpace(language); lang != "" && !strings.EqualFold(lang, "auto") {
		_ = form.WriteField("language", lang)
	}
	if err := form.Close(); err != nil {
		return nil, &ProviderError{Provider: domain.ProviderOpenAI, Message: "build upload form", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, &ProviderError{Provider: domain.ProviderOpenAI, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	var parsed whisperVerboseResponse
	if err := o.do(req, &parsed); err != nil {
		return nil, err
	}

	result := &domain.TranscriptionResult{
		FullText: strings.TrimSpace(parsed.Text),
		Language: parsed.Language,
		Duration: parsed.Duration,
		Segments: make([]domain.TranscriptionSegment, 0, len(parsed.Segments)),
	}
	for _, seg := range parsed.Segments {
		result.Segments = append(result.Segments, domain.TranscriptionSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	return result, nil
}

// chatRequest mirrors the chat completions request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize produces a transcript summary via chat completions.
func (o *OpenAI) Summarize(ctx context.Context, model, text, language string) (string, error) {
	payload := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(summarySystemPrompt, summaryLanguageName(language))},
			{Role: "user", Content: "Summarize the following transcription:\n\n" + text},
		},
		Temperature: 0.3,
		MaxTokens:   1000,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &ProviderError{Provider: domain.ProviderOpenAI, Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", &ProviderError{Provider: domain.ProviderOpenAI, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var parsed chatResponse
	if err := o.do(req, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", &ProviderError{Provider: domain.ProviderOpenAI, Message: "response contained no choices"}
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// ValidateKey reports whether the configured key is accepted by the API.
func (o *OpenAI) ValidateKey(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return false, &ProviderError{Provider: domain.ProviderOpenAI, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return false, &ProviderError{Provider: domain.ProviderOpenAI, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// do executes the request and decodes a JSON response, mapping non-2xx
// statuses to ProviderError.
func (o *OpenAI) do(req *http.Request, out any) error {
	resp, err := o.client.Do(req)
	if err != nil {
		return &ProviderError{Provider: domain.ProviderOpenAI, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &ProviderError{
			Provider:   domain.ProviderOpenAI,
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(detail)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Provider: domain.ProviderOpenAI, Message: "decode response", Err: err}
	}
	return nil
}
