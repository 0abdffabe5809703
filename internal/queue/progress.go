package queue

import (
	"math"

	"clip-flow/internal/domain"
)

// IsProcessing reports whether any job across both lanes is still pending
// or active.
func IsProcessing(transcription, summarization domain.LaneStats) bool {
	outstanding := transcription.Pending + transcription.Active +
		summarization.Pending + summarization.Active
	return outstanding > 0
}

// OverallProgress returns the rounded 0-100 share of resolved work across
// both lanes combined. Error jobs count as resolved: the value tracks
// throughput, not success rate. Zero when both lanes are empty.
func OverallProgress(transcription, summarization domain.LaneStats) int {
	total := transcription.Total + summarization.Total
	if total == 0 {
		return 0
	}

	resolved := transcription.Completed + transcription.Error +
		summarization.Completed + summarization.Error
	return int(math.Round(float64(resolved) / float64(total) * 100))
}

// BuildSnapshot combines both lanes' statistics into the snapshot consumed
// by the UI.
func BuildSnapshot(transcription, summarization domain.LaneStats) domain.QueueSnapshot {
	return domain.QueueSnapshot{
		IsProcessing:    IsProcessing(transcription, summarization),
		OverallProgress: OverallProgress(transcription, summarization),
		Transcription:   transcription,
		Summarization:   summarization,
	}
}
