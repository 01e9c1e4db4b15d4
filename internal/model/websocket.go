package model

// WebSocket message types
const (
	WSMessageTypeStage     = "stage"
	WSMessageTypeView      = "view"
	WSMessageTypeSelection = "selection"
	WSMessageTypeError     = "error"
	WSMessageTypePing      = "ping"
	WSMessageTypePong      = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSStageMessage is pushed by the pipeline worker on every stage write
type WSStageMessage struct {
	Type     string           `json:"type"`
	JobID    string           `json:"jobId"`
	Progress int              `json:"progress"`
	Record   GenerationRecord `json:"record"`
}

// WSViewMessage carries the derived workspace view
type WSViewMessage struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	View  any    `json:"view"`
}

// WSSelectionMessage carries a selection event
type WSSelectionMessage struct {
	Type      string `json:"type"`
	Tag       string `json:"tag"`
	Reason    string `json:"reason,omitempty"`
	Version   uint64 `json:"version"`
	ScriptID  string `json:"scriptId,omitempty"`
	ChapterID string `json:"chapterId,omitempty"`
	SegmentID string `json:"segmentId,omitempty"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId,omitempty"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
