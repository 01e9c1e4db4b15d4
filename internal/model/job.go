package model

import "time"

// Job is the server-side record stored per generation. The record is what the
// status endpoint serves; Payload carries the parameters the worker needs.
type Job struct {
	Record     GenerationRecord   `json:"record"`
	Payload    PipelineJobPayload `json:"payload"`
	RetryCount int                `json:"retryCount"`
}

// PipelineJobPayload contains the data for a pipeline task.
type PipelineJobPayload struct {
	OwnerID    string `json:"ownerId,omitempty"`
	ScriptID   string `json:"scriptId"`
	ChapterID  string `json:"chapterId,omitempty"`
	Title      string `json:"title"`
	SceneCount int    `json:"sceneCount"`
	LipSync    bool   `json:"lipSync"`

	// Development knobs for the simulated worker.
	FailAt      Stage  `json:"failAt,omitempty"`
	FailMessage string `json:"failMessage,omitempty"`
}

// PipelineTask is what gets enqueued for the worker.
type PipelineTask struct {
	JobID     string `json:"jobId"`
	FromStage Stage  `json:"fromStage"`
}

// NewGenerationRecord builds the initial snapshot for a new job.
func NewGenerationRecord(id string, payload PipelineJobPayload, now time.Time) GenerationRecord {
	return GenerationRecord{
		ID:        id,
		Stage:     StageGeneratingAudio,
		ScriptID:  payload.ScriptID,
		ChapterID: payload.ChapterID,
		PerStageProgress: PerStageProgress{
			Audio: &AudioProgress{Message: "Queued"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
