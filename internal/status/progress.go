// Package status derives presentation values from generation records:
// overall completion, user-facing outcome and remediation advice.
package status

import (
	"math"

	"github.com/storyreel/studio/internal/model"
)

// ComputeOverallProgress maps a record to an overall completion percentage in
// [0,100]. It is a presentation heuristic and is not monotonic across retries.
func ComputeOverallProgress(rec *model.GenerationRecord) int {
	if rec == nil {
		return 0
	}

	switch rec.Stage {
	case model.StageGeneratingAudio:
		return 15
	case model.StageAudioCompleted:
		return 25
	case model.StageGeneratingImages:
		var rate float64
		if p := rec.PerStageProgress.Image; p != nil {
			rate = p.SuccessRate
		}
		return interpolate(25, rate)
	case model.StageImagesCompleted:
		return 50
	case model.StageGeneratingVideo:
		var rate float64
		if p := rec.PerStageProgress.Video; p != nil {
			rate = p.SuccessRate
		}
		return interpolate(50, rate)
	case model.StageVideoCompleted:
		return 75
	case model.StageMergingAudio:
		return 85
	case model.StageApplyingLipSync:
		return 95
	case model.StageLipSyncCompleted, model.StageCompleted:
		return 100
	default:
		// failed, lipsync_failed and anything unknown
		return 0
	}
}

// interpolate spreads a 0-100 success rate over a quarter of the bar.
func interpolate(base int, successRate float64) int {
	if math.IsNaN(successRate) || successRate < 0 {
		successRate = 0
	}
	if successRate > 100 {
		successRate = 100
	}
	return base + int(math.Round(0.25*successRate))
}

// Outcome is how a record should be presented to the user.
type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeSucceeded  Outcome = "succeeded"
	// OutcomeDegraded: the video is available without lip-sync.
	OutcomeDegraded Outcome = "degraded"
	OutcomeFailed   Outcome = "failed"
)

// OutcomeOf classifies a record for presentation. A lip-sync failure is not a
// hard failure.
func OutcomeOf(rec *model.GenerationRecord) Outcome {
	if rec == nil {
		return OutcomeInProgress
	}
	switch {
	case rec.Stage == model.StageLipSyncFailed:
		return OutcomeDegraded
	case rec.Stage == model.StageFailed:
		return OutcomeFailed
	case model.IsCompleteStatus(rec.Stage):
		return OutcomeSucceeded
	default:
		return OutcomeInProgress
	}
}
