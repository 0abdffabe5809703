package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"clip-flow/internal/cloud"
	"clip-flow/internal/domain"
	"clip-flow/internal/keystore"
	"clip-flow/internal/whisper"
)

// localTranscriber isolates the whisper engine behind an interface.
type localTranscriber interface {
	Transcribe(ctx context.Context, req domain.TranscriptionRequest) (*domain.TranscriptionResult, error)
}

// keyReader fetches stored provider API keys.
type keyReader interface {
	Get(provider domain.Provider) (string, error)
}

// transcribeClient is the cloud transcription surface.
type transcribeClient interface {
	Transcribe(ctx context.Context, audioPath, language string) (*domain.TranscriptionResult, error)
}

// summarizeClient is the shared summarization surface across providers.
type summarizeClient interface {
	Summarize(ctx context.Context, model, text, language string) (string, error)
}

// Executor routes queue jobs to the provider backend named in the payload.
type Executor struct {
	engine localTranscriber
	keys   keyReader
	logger logrus.FieldLogger

	openAIFor func(apiKey string) *cloud.OpenAI
	claudeFor func(apiKey string) *cloud.Claude
	ollama    summarizeClient
}

// NewExecutor builds the production executor over the engine and keystore.
func NewExecutor(engine *whisper.Engine, keys *keystore.Keystore, logger logrus.FieldLogger) *Executor {
	if logger == nil {
		base := logrus.New()
		logger = base.WithField("component", "executor")
	}
	return &Executor{
		engine:    engine,
		keys:      keys,
		logger:    logger,
		openAIFor: cloud.NewOpenAI,
		claudeFor: cloud.NewClaude,
		ollama:    cloud.NewOllama(),
	}
}

// NewExecutorForTests builds an executor with injectable backends.
func NewExecutorForTests(
	engine localTranscriber,
	keys keyReader,
	openAIFor func(apiKey string) *cloud.OpenAI,
	claudeFor func(apiKey string) *cloud.Claude,
	ollama summarizeClient,
) *Executor {
	base := logrus.New()
	return &Executor{
		engine:    engine,
		keys:      keys,
		logger:    base.WithField("component", "executor"),
		openAIFor: openAIFor,
		claudeFor: claudeFor,
		ollama:    ollama,
	}
}

// ExecuteTranscription runs one transcription job with the payload's provider.
func (e *Executor) ExecuteTranscription(ctx context.Context, req domain.TranscriptionRequest) (*domain.TranscriptionResult, error) {
	switch req.Provider {
	case domain.ProviderLocal:
		return e.engine.Transcribe(ctx, req)
	case domain.ProviderOpenAI:
		apiKey, err := e.requireKey(domain.ProviderOpenAI)
		if err != nil {
			return nil, err
		}
		return e.openAIFor(apiKey).Transcribe(ctx, req.MediaPath, req.Language)
	default:
		return nil, fmt.Errorf("provider %q cannot transcribe", req.Provider)
	}
}

// ExecuteSummarization runs one summarization job with the payload's provider.
func (e *Executor) ExecuteSummarization(ctx context.Context, req domain.SummarizationRequest) (string, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return "", fmt.Errorf("nothing to summarize: transcript is empty")
	}

	switch req.Provider {
	case domain.ProviderOpenAI:
		apiKey, err := e.requireKey(domain.ProviderOpenAI)
		if err != nil {
			return "", err
		}
		return e.openAIFor(apiKey).Summarize(ctx, req.Model, req.Transcript, req.Language)
	case domain.ProviderClaude:
		apiKey, err := e.requireKey(domain.ProviderClaude)
		if err != nil {
			return "", err
		}
		return e.claudeFor(apiKey).Summarize(ctx, req.Model, req.Transcript, req.Language)
	case domain.ProviderOllama:
		return e.ollama.Summarize(ctx, req.Model, req.Transcript, req.Language)
	default:
		return "", fmt.Errorf("provider %q cannot summarize", req.Provider)
	}
}

// requireKey resolves a stored API key, failing when none is configured.
func (e *Executor) requireKey(provider domain.Provider) (string, error) {
	apiKey, err := e.keys.Get(provider)
	if err != nil {
		return "", fmt.Errorf("read %s api key: %w", provider, err)
	}
	if apiKey == "" {
		return "", fmt.Errorf("%s api key is not configured", provider)
	}
	return apiKey, nil
}
