package model

// Stage is one phase of the remote generation pipeline. The string values are
// the wire contract of the status endpoint and are matched case-sensitively.
type Stage string

const (
	StageGeneratingAudio  Stage = "generating_audio"
	StageAudioCompleted   Stage = "audio_completed"
	StageGeneratingImages Stage = "generating_images"
	StageImagesCompleted  Stage = "images_completed"
	StageGeneratingVideo  Stage = "generating_video"
	StageVideoCompleted   Stage = "video_completed"
	StageMergingAudio     Stage = "merging_audio"
	StageApplyingLipSync  Stage = "applying_lipsync"
	StageLipSyncCompleted Stage = "lipsync_completed"
	StageCompleted        Stage = "completed"
	StageFailed           Stage = "failed"
	StageLipSyncFailed    Stage = "lipsync_failed"
)

var allStages = []Stage{
	StageGeneratingAudio,
	StageAudioCompleted,
	StageGeneratingImages,
	StageImagesCompleted,
	StageGeneratingVideo,
	StageVideoCompleted,
	StageMergingAudio,
	StageApplyingLipSync,
	StageLipSyncCompleted,
	StageCompleted,
	StageFailed,
	StageLipSyncFailed,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// AllStages returns the ordered list of known stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ParseStage converts a wire string into a known Stage. No normalization is
// applied: "Completed" is not a stage.
func ParseStage(value string) (Stage, bool) {
	stage := Stage(value)
	if _, ok := stageSet[stage]; !ok {
		return "", false
	}
	return stage, true
}

// Valid reports whether s is a member of the enum.
func (s Stage) Valid() bool {
	_, ok := stageSet[s]
	return ok
}

// Family identifies which per-stage progress block is authoritative.
type Family string

const (
	FamilyNone    Family = ""
	FamilyAudio   Family = "audio"
	FamilyImage   Family = "image"
	FamilyVideo   Family = "video"
	FamilyMerge   Family = "merge"
	FamilyLipSync Family = "lipSync"
)

// Family returns the progress family of the stage. Terminal stages have none.
func (s Stage) Family() Family {
	switch s {
	case StageGeneratingAudio, StageAudioCompleted:
		return FamilyAudio
	case StageGeneratingImages, StageImagesCompleted:
		return FamilyImage
	case StageGeneratingVideo, StageVideoCompleted:
		return FamilyVideo
	case StageMergingAudio:
		return FamilyMerge
	case StageApplyingLipSync, StageLipSyncCompleted:
		return FamilyLipSync
	default:
		return FamilyNone
	}
}

// IsTerminal reports whether polling should stop at this stage.
// lipsync_completed is complete but not terminal; the record still moves on
// to completed.
func IsTerminal(s Stage) bool {
	switch s {
	case StageCompleted, StageFailed, StageLipSyncFailed:
		return true
	default:
		return false
	}
}

// IsCompleteStatus reports whether the stage means a finished video is
// available to the user.
func IsCompleteStatus(s Stage) bool {
	return s == StageCompleted || s == StageLipSyncCompleted
}

// IsFailure reports whether the pipeline reported a failure.
func IsFailure(s Stage) bool {
	return s == StageFailed || s == StageLipSyncFailed
}

// IsRestartable reports whether a retry may resume the pipeline at this stage.
func IsRestartable(s Stage) bool {
	switch s {
	case StageGeneratingAudio, StageGeneratingImages, StageGeneratingVideo,
		StageMergingAudio, StageApplyingLipSync:
		return true
	default:
		return false
	}
}

// ResumeStage returns the in-progress stage that follows a checkpoint.
func ResumeStage(checkpoint Stage) Stage {
	switch checkpoint {
	case StageAudioCompleted:
		return StageGeneratingImages
	case StageImagesCompleted:
		return StageGeneratingVideo
	case StageVideoCompleted:
		return StageMergingAudio
	case StageLipSyncFailed:
		return StageApplyingLipSync
	default:
		return StageGeneratingAudio
	}
}
