package model

import "time"

// GenerationRecord is the server-owned snapshot returned by the status
// endpoint. Each poll yields a new snapshot; consumers never mutate one.
type GenerationRecord struct {
	ID               string           `json:"id"`
	Stage            Stage            `json:"stage"`
	ErrorMessage     *string          `json:"errorMessage,omitempty"`
	PerStageProgress PerStageProgress `json:"perStageProgress"`
	Artifacts        *Artifacts       `json:"artifacts,omitempty"`
	ScriptID         string           `json:"scriptId,omitempty"`
	ChapterID        string           `json:"chapterId,omitempty"`
	Checkpoint       Stage            `json:"checkpoint,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// PerStageProgress is the wire form of the per-family counters. Only the
// family matching the current stage is authoritative; use ActiveProgress.
type PerStageProgress struct {
	Audio   *AudioProgress   `json:"audio,omitempty"`
	Image   *ImageProgress   `json:"image,omitempty"`
	Video   *VideoProgress   `json:"video,omitempty"`
	Merge   *MergeProgress   `json:"merge,omitempty"`
	LipSync *LipSyncProgress `json:"lipSync,omitempty"`
}

// StageProgress is implemented by exactly one progress type per family.
type StageProgress interface {
	Family() Family
}

// SceneCounters is shared by the scene-oriented families.
type SceneCounters struct {
	ScenesCompleted int     `json:"scenesCompleted"`
	TotalScenes     int     `json:"totalScenes"`
	SuccessRate     float64 `json:"successRate"`
}

type AudioProgress struct {
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
	Message         string  `json:"message,omitempty"`
}

type ImageProgress struct {
	SceneCounters
	Message string `json:"message,omitempty"`
}

type VideoProgress struct {
	SceneCounters
	Message string `json:"message,omitempty"`
}

type MergeProgress struct {
	Message string `json:"message,omitempty"`
}

type LipSyncProgress struct {
	SceneCounters
	Message string `json:"message,omitempty"`
}

func (AudioProgress) Family() Family   { return FamilyAudio }
func (ImageProgress) Family() Family   { return FamilyImage }
func (VideoProgress) Family() Family   { return FamilyVideo }
func (MergeProgress) Family() Family   { return FamilyMerge }
func (LipSyncProgress) Family() Family { return FamilyLipSync }

// Artifacts lists outputs produced once stages complete.
type Artifacts struct {
	AudioURL        string       `json:"audioUrl,omitempty"`
	FinalVideoURL   string       `json:"finalVideoUrl,omitempty"`
	LipSyncVideoURL string       `json:"lipSyncVideoUrl,omitempty"`
	SceneVideos     []SceneVideo `json:"sceneVideos,omitempty"`
}

// SceneVideo is one rendered scene.
type SceneVideo struct {
	SceneIndex int    `json:"sceneIndex"`
	URL        string `json:"url"`
}

// ActiveProgress returns the authoritative progress block for the current
// stage, or nil when the stage has no family or the block is absent.
func (r *GenerationRecord) ActiveProgress() StageProgress {
	if r == nil {
		return nil
	}
	p := r.PerStageProgress
	switch r.Stage.Family() {
	case FamilyAudio:
		if p.Audio != nil {
			return *p.Audio
		}
	case FamilyImage:
		if p.Image != nil {
			return *p.Image
		}
	case FamilyVideo:
		if p.Video != nil {
			return *p.Video
		}
	case FamilyMerge:
		if p.Merge != nil {
			return *p.Merge
		}
	case FamilyLipSync:
		if p.LipSync != nil {
			return *p.LipSync
		}
	}
	return nil
}

// ErrorText returns the pipeline error message or "".
func (r *GenerationRecord) ErrorText() string {
	if r == nil || r.ErrorMessage == nil {
		return ""
	}
	return *r.ErrorMessage
}
