package model

// GenerationStartRequest represents the request to start a generation job
type GenerationStartRequest struct {
	ScriptID    string `json:"scriptId" validate:"required,max=128"`
	ChapterID   string `json:"chapterId" validate:"omitempty,max=128"`
	Title       string `json:"title" validate:"required,min=1,max=200"`
	SceneCount  int    `json:"sceneCount" validate:"required,min=1,max=60"`
	LipSync     bool   `json:"lipSync"`
	FailAt      Stage  `json:"failAt" validate:"omitempty,oneof=generating_audio generating_images generating_video merging_audio applying_lipsync"`
	FailMessage string `json:"failMessage" validate:"omitempty,max=500"`

	// OwnerID is set from the authenticated caller, never from the body.
	OwnerID string `json:"-"`
}

// GenerationStartResponse represents the response when starting a generation
type GenerationStartResponse struct {
	JobID  string           `json:"jobId"`
	Record GenerationRecord `json:"record"`
}

// GenerationRetryRequest restarts a failed pipeline from a checkpoint
type GenerationRetryRequest struct {
	TargetStage Stage `json:"targetStage" validate:"omitempty,oneof=generating_audio generating_images generating_video merging_audio applying_lipsync"`
}

// GenerationRetryResponse represents the response after a retry was queued
type GenerationRetryResponse struct {
	JobID      string `json:"jobId"`
	FromStage  Stage  `json:"fromStage"`
	RetryCount int    `json:"retryCount"`
}

// ArtifactsResponse lists artifact URLs, presigned when storage is configured
type ArtifactsResponse struct {
	JobID     string     `json:"jobId"`
	Stage     Stage      `json:"stage"`
	Artifacts *Artifacts `json:"artifacts"`
}

// SelectionRequest switches the active script, chapter or segment
type SelectionRequest struct {
	ID     string `json:"id" validate:"required,max=128"`
	Reason string `json:"reason" validate:"omitempty,max=64"`
}

// RecalcRequest asks timeline views to recompute layout
type RecalcRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=64"`
}

// SelectionResponse reports the selection after a switch attempt
type SelectionResponse struct {
	Applied   bool   `json:"applied"`
	ScriptID  string `json:"scriptId,omitempty"`
	ChapterID string `json:"chapterId,omitempty"`
	SegmentID string `json:"segmentId,omitempty"`
	Version   uint64 `json:"version"`
	Switching bool   `json:"switching"`
}

// WatchStatusResponse reports polling introspection for one job
type WatchStatusResponse struct {
	JobID         string `json:"jobId"`
	Polling       bool   `json:"polling"`
	RetryAttempts int    `json:"retryAttempts"`
}
