// Package cloud holds thin HTTP clients for the cloud and local-LLM
// providers: OpenAI (transcription + summarization), Claude
// (summarization), and Ollama (local summarization).
package cloud

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"clip-flow/internal/domain"
)

// defaultTimeout bounds provider HTTP calls; transcription uploads can be
// large, summaries slow.
const defaultTimeout = 5 * time.Minute

// ProviderError is a failed provider API call.
type ProviderError struct {
	Provider   domain.Provider
	StatusCode int
	Message    string
	Err        error
}

// Error formats provider failures for job error info.
func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// newHTTPClient returns the shared client configuration.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultTimeout}
}

// summarySystemPrompt instructs the model to emit only the summary body.
const summarySystemPrompt = `You are an expert at summarizing transcribed audio/video content. Create a clear, well-structured summary in %s.

Guidelines:
- Start with a one-sentence overview of the main topic
- Highlight key points, decisions, or action items
- Preserve important names, dates, and specific details
- Use bullet points for multiple items when appropriate
- Keep the summary concise but comprehensive

IMPORTANT: Output ONLY the summary itself, with no introductory phrases or concluding notes.`

// summaryLanguageName maps a language code to the name used in the prompt.
func summaryLanguageName(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "", "auto", "en":
		return "English"
	case "de":
		return "German"
	case "fr":
		return "French"
	case "es":
		return "Spanish"
	case "it":
		return "Italian"
	case "pt":
		return "Portuguese"
	case "nl":
		return "Dutch"
	case "ja":
		return "Japanese"
	case "ko":
		return "Korean"
	case "zh":
		return "Chinese"
	default:
		return "the same language as the transcription"
	}
}
