package poller

import (
	"time"

	"github.com/storyreel/studio/internal/model"
)

// DefaultInterval is used for stages without a dedicated cadence.
const DefaultInterval = 2500 * time.Millisecond

// Interval returns how long to wait before the next fetch after a successful
// poll observed stage. Long-running stages poll slower, hand-off stages faster.
func Interval(stage model.Stage) time.Duration {
	switch stage {
	case model.StageGeneratingAudio, model.StageGeneratingImages:
		return 2000 * time.Millisecond
	case model.StageGeneratingVideo:
		return 3000 * time.Millisecond
	case model.StageMergingAudio, model.StageApplyingLipSync:
		return 1500 * time.Millisecond
	case model.StageAudioCompleted, model.StageImagesCompleted, model.StageVideoCompleted:
		return 1000 * time.Millisecond
	default:
		return DefaultInterval
	}
}
