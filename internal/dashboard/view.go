package dashboard

import (
	"github.com/storyreel/studio/internal/model"
	"github.com/storyreel/studio/internal/selection"
	"github.com/storyreel/studio/internal/status"
)

// View is the derived state a progress card renders for the watched job.
type View struct {
	JobID         string                  `json:"jobId,omitempty"`
	Stage         model.Stage             `json:"stage,omitempty"`
	Progress      int                     `json:"progress"`
	Outcome       status.Outcome          `json:"outcome,omitempty"`
	Guidance      string                  `json:"guidance,omitempty"`
	RetryHint     status.RetryHint        `json:"retryHint,omitempty"`
	RetryAttempts int                     `json:"retryAttempts"`
	Polling       bool                    `json:"polling"`
	Error         string                  `json:"error,omitempty"`
	Record        *model.GenerationRecord `json:"record,omitempty"`
}

// State is the full workspace snapshot served to a freshly connected view.
type State struct {
	View      View               `json:"view"`
	Selection selection.Snapshot `json:"selection"`
	Switching bool               `json:"switching"`
}

// Event names pushed with a view message besides the poller event types.
const (
	ViewEventWatch   = "watch"
	ViewEventUnwatch = "unwatch"
	ViewEventScript  = "script"
)

func (v *View) apply(rec *model.GenerationRecord, progress int, advice *status.Advice) {
	v.Record = rec
	v.Stage = rec.Stage
	v.Progress = progress
	v.Outcome = status.OutcomeOf(rec)
	v.RetryAttempts = 0
	v.Error = ""
	v.Guidance = ""
	v.RetryHint = ""
	if advice != nil {
		v.Guidance = advice.Guidance
		v.RetryHint = advice.RetryHint
	}
}
