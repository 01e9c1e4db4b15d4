package poller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/storyreel/studio/internal/model"
)

func TestInterval(t *testing.T) {
	tests := map[model.Stage]time.Duration{
		model.StageGeneratingAudio:  2 * time.Second,
		model.StageGeneratingImages: 2 * time.Second,
		model.StageGeneratingVideo:  3 * time.Second,
		model.StageMergingAudio:     1500 * time.Millisecond,
		model.StageApplyingLipSync:  1500 * time.Millisecond,
		model.StageAudioCompleted:   time.Second,
		model.StageImagesCompleted:  time.Second,
		model.StageVideoCompleted:   time.Second,
		model.StageLipSyncCompleted: DefaultInterval,
		model.StageCompleted:        DefaultInterval,
		model.StageFailed:           DefaultInterval,
		model.Stage(""):             DefaultInterval,
	}
	for stage, want := range tests {
		assert.Equal(t, want, Interval(stage), "stage %q", stage)
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.True(t, cfg.StopOnComplete)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)

	cfg = cfg.with(
		WithMaxRetries(-1),
		WithRetryDelay(time.Second),
		WithStopOnComplete(false),
		WithRequestTimeout(0),
		nil,
	)
	assert.Equal(t, Config{MaxRetries: 0, RetryDelay: time.Second}, cfg)
}
