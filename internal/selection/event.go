package selection

// Tag names a selection event.
type Tag string

const (
	TagScriptChanged           Tag = "SCRIPT_CHANGED"
	TagChapterChanged          Tag = "CHAPTER_CHANGED"
	TagSegmentChanged          Tag = "SEGMENT_CHANGED"
	TagTimelineRecalcRequested Tag = "TIMELINE_RECALC_REQUESTED"
)

// Snapshot is the active selection at one version.
type Snapshot struct {
	ScriptID  string `json:"scriptId,omitempty"`
	ChapterID string `json:"chapterId,omitempty"`
	SegmentID string `json:"segmentId,omitempty"`
	Version   uint64 `json:"version"`
}

// Event is published to subscribers after a switch has been applied.
type Event struct {
	Tag       Tag
	Reason    string
	Selection Snapshot
}

// Handler receives selection events synchronously. Switch requests made from
// a Handler during a switch are rejected.
type Handler func(Event)
