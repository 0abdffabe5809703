package domain

import "time"

// Lane identifies one independent work category with its own job collection.
type Lane string

const (
	LaneTranscription Lane = "transcription"
	LaneSummarization Lane = "summarization"
)

// JobState tracks the lifecycle of a single queued job.
type JobState string

const (
	JobStatePending   JobState = "pending"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateError     JobState = "error"
)

// IsTerminal reports whether a job will not transition further on its own.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateError
}

// Provider names a transcription or summarization backend.
type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
	ProviderOllama Provider = "ollama"
)

// TranscriptionRequest is the lane-specific payload for a transcription job.
type TranscriptionRequest struct {
	MediaPath string   `json:"mediaPath"`
	Provider  Provider `json:"provider"`
	ModelID   string   `json:"modelId"`
	Language  string   `json:"language"`
}

// SummarizationRequest is the lane-specific payload for a summarization job.
type SummarizationRequest struct {
	MediaPath  string   `json:"mediaPath"`
	Transcript string   `json:"transcript"`
	Provider   Provider `json:"provider"`
	Model      string   `json:"model"`
	Language   string   `json:"language"`
}

// JobResult carries the lane-specific output of a completed job.
type JobResult struct {
	Transcript *TranscriptionResult `json:"transcript,omitempty"`
	Summary    string               `json:"summary,omitempty"`
}

// Job is one unit of work against one media item in one lane. Exactly one
// payload field is set, matching the lane.
type Job struct {
	ID                   string                `json:"id"`
	MediaPath            string                `json:"mediaPath"`
	Lane                 Lane                  `json:"lane"`
	State                JobState              `json:"state"`
	TranscriptionPayload *TranscriptionRequest `json:"transcriptionPayload,omitempty"`
	SummarizationPayload *SummarizationRequest `json:"summarizationPayload,omitempty"`
	Result               *JobResult            `json:"result,omitempty"`
	ErrorInfo            string                `json:"errorInfo,omitempty"`
	EnqueuedAt           time.Time             `json:"enqueuedAt"`
}

// LaneStats is a projection over one lane's live job collection.
type LaneStats struct {
	Pending   int `json:"pending"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Error     int `json:"error"`
	Total     int `json:"total"`
}

// QueueSnapshot is the externally observable queue state consumed by the UI.
type QueueSnapshot struct {
	IsProcessing    bool      `json:"isProcessing"`
	OverallProgress int       `json:"overallProgress"`
	Transcription   LaneStats `json:"transcriptionStats"`
	Summarization   LaneStats `json:"summarizationStats"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	Provider                 Provider `json:"provider"`
	ModelID                  string   `json:"modelId"`
	Language                 string   `json:"language"`
	SummaryProvider          Provider `json:"summaryProvider"`
	SummaryModel             string   `json:"summaryModel"`
	OutputDir                string   `json:"outputDir"`
	TranscriptionConcurrency int      `json:"transcriptionConcurrency"`
	SummarizationConcurrency int      `json:"summarizationConcurrency"`
}

// APIKeyStatus reports which cloud provider keys are configured.
type APIKeyStatus struct {
	OpenAI bool `json:"openai"`
	Claude bool `json:"claude"`
}
