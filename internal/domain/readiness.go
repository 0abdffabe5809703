package domain

import "time"

// ReadinessReport is a point-in-time verdict on whether the selected
// transcription pipeline can execute, including cross-provider fallback.
type ReadinessReport struct {
	GeneratedAt            time.Time `json:"generatedAt"`
	IsChecking             bool      `json:"isChecking"`
	IsReady                bool      `json:"isReady"`
	WhisperAvailable       bool      `json:"whisperAvailable"`
	HasInstalledModels     bool      `json:"hasInstalledModels"`
	InstalledModels        []string  `json:"installedModels"`
	SelectedModelInstalled bool      `json:"selectedModelInstalled"`
	HasOpenAIKey           bool      `json:"hasOpenAIKey"`
	HasClaudeKey           bool      `json:"hasClaudeKey"`
}
