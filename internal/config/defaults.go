package config

import (
	"os"
	"path/filepath"
	"strings"

	"clip-flow/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		Provider:                 domain.ProviderLocal,
		ModelID:                  "base",
		Language:                 "auto",
		SummaryProvider:          domain.ProviderOllama,
		SummaryModel:             "llama3.2",
		OutputDir:                filepath.Join(homeDir, "Documents", "Transcripts"),
		TranscriptionConcurrency: 1,
		SummarizationConcurrency: 2,
	}
}

// Normalize trims user inputs and restores defaults for empty fields.
func Normalize(settings domain.Settings) domain.Settings {
	defaults := DefaultSettings()

	settings.ModelID = trimOr(settings.ModelID, defaults.ModelID)
	settings.Language = trimOr(settings.Language, defaults.Language)
	settings.SummaryModel = trimOr(settings.SummaryModel, defaults.SummaryModel)
	settings.OutputDir = trimOr(settings.OutputDir, defaults.OutputDir)

	if settings.Provider != domain.ProviderLocal && settings.Provider != domain.ProviderOpenAI {
		settings.Provider = defaults.Provider
	}
	switch settings.SummaryProvider {
	case domain.ProviderOpenAI, domain.ProviderClaude, domain.ProviderOllama:
	default:
		settings.SummaryProvider = defaults.SummaryProvider
	}
	if settings.TranscriptionConcurrency <= 0 {
		settings.TranscriptionConcurrency = defaults.TranscriptionConcurrency
	}
	if settings.SummarizationConcurrency <= 0 {
		settings.SummarizationConcurrency = defaults.SummarizationConcurrency
	}

	return settings
}

func trimOr(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
