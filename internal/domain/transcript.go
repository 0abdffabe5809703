package domain

// TranscriptionSegment is one timed span of transcribed speech.
type TranscriptionSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// TranscriptionResult is the full output of one transcription run.
type TranscriptionResult struct {
	Segments []TranscriptionSegment `json:"segments"`
	FullText string                 `json:"fullText"`
	Language string                 `json:"language"`
	Duration float64                `json:"duration"`
}
