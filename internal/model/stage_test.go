package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	for _, stage := range AllStages() {
		got, ok := ParseStage(string(stage))
		assert.True(t, ok, stage)
		assert.Equal(t, stage, got)
	}

	for _, raw := range []string{"", "Completed", "COMPLETED", " completed", "lipSync_failed", "queued"} {
		_, ok := ParseStage(raw)
		assert.False(t, ok, "%q should not parse", raw)
	}
}

func TestTerminalAndCompleteAreDistinct(t *testing.T) {
	tests := []struct {
		stage    Stage
		terminal bool
		complete bool
	}{
		{StageGeneratingAudio, false, false},
		{StageAudioCompleted, false, false},
		{StageGeneratingImages, false, false},
		{StageImagesCompleted, false, false},
		{StageGeneratingVideo, false, false},
		{StageVideoCompleted, false, false},
		{StageMergingAudio, false, false},
		{StageApplyingLipSync, false, false},
		{StageLipSyncCompleted, false, true},
		{StageCompleted, true, true},
		{StageFailed, true, false},
		{StageLipSyncFailed, true, false},
		{Stage("unknown"), false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.Equal(t, tt.terminal, IsTerminal(tt.stage))
			assert.Equal(t, tt.complete, IsCompleteStatus(tt.stage))
		})
	}
}

func TestResumeStage(t *testing.T) {
	assert.Equal(t, StageGeneratingAudio, ResumeStage(""))
	assert.Equal(t, StageGeneratingImages, ResumeStage(StageAudioCompleted))
	assert.Equal(t, StageGeneratingVideo, ResumeStage(StageImagesCompleted))
	assert.Equal(t, StageMergingAudio, ResumeStage(StageVideoCompleted))
	assert.Equal(t, StageApplyingLipSync, ResumeStage(StageLipSyncFailed))
}

func TestActiveProgressFollowsStageFamily(t *testing.T) {
	raw := `{
		"id": "job-1",
		"stage": "generating_video",
		"perStageProgress": {
			"image": {"scenesCompleted": 5, "totalScenes": 5, "successRate": 100},
			"video": {"scenesCompleted": 2, "totalScenes": 5, "successRate": 80}
		}
	}`

	var rec GenerationRecord
	require.NoError(t, json.Unmarshal([]byte(raw), &rec))
	assert.Equal(t, StageGeneratingVideo, rec.Stage)

	active := rec.ActiveProgress()
	require.NotNil(t, active)
	video, ok := active.(VideoProgress)
	require.True(t, ok, "expected VideoProgress, got %T", active)
	assert.Equal(t, 2, video.ScenesCompleted)
	assert.Equal(t, 5, video.TotalScenes)
	assert.InDelta(t, 80, video.SuccessRate, 0.001)
}

func TestActiveProgressNilCases(t *testing.T) {
	var nilRec *GenerationRecord
	assert.Nil(t, nilRec.ActiveProgress())
	assert.Equal(t, "", nilRec.ErrorText())

	rec := &GenerationRecord{Stage: StageFailed, PerStageProgress: PerStageProgress{Video: &VideoProgress{}}}
	assert.Nil(t, rec.ActiveProgress())

	rec = &GenerationRecord{Stage: StageGeneratingImages}
	assert.Nil(t, rec.ActiveProgress())
}
