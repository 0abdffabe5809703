package cloud

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"clip-flow/internal/domain"
)

// TestOpenAITranscribe checks the multipart upload and verbose_json mapping.
func TestOpenAITranscribe(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Fatalf("model = %q", got)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Fatalf("response_format = %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Fatalf("language = %q", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"text": " hello world ",
			"language": "en",
			"duration": 4.2,
			"segments": [{"start": 0, "end": 4.2, "text": " hello world "}]
		}`))
	}))
	defer server.Close()

	client := NewOpenAIForTests(server.URL, "sk-test", server.Client())
	result, err := client.Transcribe(context.Background(), audioPath, "en")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}

	if result.FullText != "hello world" {
		t.Fatalf("full text = %q", result.FullText)
	}
	if len(result.Segments) != 1 || result.Segments[0].End != 4.2 {
		t.Fatalf("segments = %+v", result.Segments)
	}
	if result.Duration != 4.2 {
		t.Fatalf("duration = %v", result.Duration)
	}
}

// TestOpenAISummarize checks the chat completions round trip.
func TestOpenAISummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": " A short summary. "}}]}`))
	}))
	defer server.Close()

	client := NewOpenAIForTests(server.URL, "sk-test", server.Client())
	summary, err := client.Summarize(context.Background(), "gpt-4o-mini", "long transcript", "en")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "A short summary." {
		t.Fatalf("summary = %q", summary)
	}
}

// TestOpenAIErrorStatus verifies ProviderError mapping for non-2xx.
func TestOpenAIErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer server.Close()

	client := NewOpenAIForTests(server.URL, "sk-test", server.Client())
	_, err := client.Summarize(context.Background(), "gpt-4o-mini", "text", "en")

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if provErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", provErr.StatusCode)
	}
	if provErr.Provider != domain.ProviderOpenAI {
		t.Fatalf("provider = %s", provErr.Provider)
	}
}

// TestOpenAIValidateKey checks key validation status mapping.
func TestOpenAIValidateKey(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	client := NewOpenAIForTests(server.URL, "sk-test", server.Client())
	ok, err := client.ValidateKey(context.Background())
	if err != nil || !ok {
		t.Fatalf("ValidateKey() = %v, %v; want true", ok, err)
	}

	status = http.StatusUnauthorized
	ok, err = client.ValidateKey(context.Background())
	if err != nil || ok {
		t.Fatalf("ValidateKey() = %v, %v; want false", ok, err)
	}
}

// TestClaudeSummarize checks the messages API round trip and headers.
func TestClaudeSummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Fatalf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != claudeAPIVersion {
			t.Fatalf("anthropic-version = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "Summary "},{"type": "text", "text": "text."}]}`))
	}))
	defer server.Close()

	client := NewClaudeForTests(server.URL, "sk-ant-test", server.Client())
	summary, err := client.Summarize(context.Background(), "claude-3-5-haiku-latest", "transcript", "en")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "Summary text." {
		t.Fatalf("summary = %q", summary)
	}
}

// TestClaudeErrorMessage verifies API error body extraction.
func TestClaudeErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "max_tokens required"}}`))
	}))
	defer server.Close()

	client := NewClaudeForTests(server.URL, "sk-ant-test", server.Client())
	_, err := client.Summarize(context.Background(), "claude-3-5-haiku-latest", "transcript", "en")

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if provErr.Message != "max_tokens required" {
		t.Fatalf("message = %q", provErr.Message)
	}
}

// TestOllamaSummarize checks the generate API round trip.
func TestOllamaSummarize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response": " local summary "}`))
	}))
	defer server.Close()

	client := NewOllamaForTests(server.URL, server.Client())
	summary, err := client.Summarize(context.Background(), "llama3.2", "transcript", "en")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if summary != "local summary" {
		t.Fatalf("summary = %q", summary)
	}
}

// TestOllamaModelNotPulled verifies the pull hint on 404.
func TestOllamaModelNotPulled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewOllamaForTests(server.URL, server.Client())
	_, err := client.Summarize(context.Background(), "mistral", "transcript", "en")

	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("error = %v, want *ProviderError", err)
	}
	if provErr.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", provErr.StatusCode)
	}
}

// TestOllamaAvailableAndModels checks the tags endpoint helpers.
func TestOllamaAvailableAndModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models": [{"name": "llama3.2"}, {"name": "mistral"}]}`))
	}))
	defer server.Close()

	client := NewOllamaForTests(server.URL, server.Client())
	if !client.Available(context.Background()) {
		t.Fatal("expected available")
	}

	models, err := client.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels() error = %v", err)
	}
	if len(models) != 2 || models[0] != "llama3.2" {
		t.Fatalf("models = %v", models)
	}
}
