package poller

import (
	"github.com/storyreel/studio/internal/model"
	"github.com/storyreel/studio/internal/status"
)

// EventType discriminates Event.
type EventType string

const (
	// EventUpdate carries every successfully fetched record.
	EventUpdate EventType = "update"
	// EventComplete follows the update for a terminal record.
	EventComplete EventType = "complete"
	// EventRetry reports a transient fetch failure that will be retried.
	EventRetry EventType = "retry"
	// EventError reports that retries are exhausted. The session has stopped.
	EventError EventType = "error"
)

// Event is delivered to session handlers and engine subscribers.
type Event struct {
	Type   EventType
	JobID  string
	Record *model.GenerationRecord
	// Progress is the overall percentage for Record.
	Progress int
	// Advice is set when Record carries an error message.
	Advice *status.Advice
	// Attempt is the retry count for retry and error events.
	Attempt int
	Err     error
}

// Handler receives session events on the session goroutine. It may call
// StartPolling or StopPolling but must not call Close, so delivery is not
// serialized against StopPolling.
type Handler func(Event)

// Callbacks is the callback form of Handler.
type Callbacks struct {
	OnUpdate   func(rec *model.GenerationRecord)
	OnComplete func(rec *model.GenerationRecord)
	OnRetry    func(attempt int, err error)
	OnError    func(err error)
}

// Handler adapts the callbacks to a Handler. Nil callbacks are skipped.
func (c Callbacks) Handler() Handler {
	return func(ev Event) {
		switch ev.Type {
		case EventUpdate:
			if c.OnUpdate != nil {
				c.OnUpdate(ev.Record)
			}
		case EventComplete:
			if c.OnComplete != nil {
				c.OnComplete(ev.Record)
			}
		case EventRetry:
			if c.OnRetry != nil {
				c.OnRetry(ev.Attempt, ev.Err)
			}
		case EventError:
			if c.OnError != nil {
				c.OnError(ev.Err)
			}
		}
	}
}
