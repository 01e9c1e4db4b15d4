package dashboard

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/storyreel/studio/internal/logging"
	"github.com/storyreel/studio/internal/model"
	"github.com/storyreel/studio/internal/poller"
	"github.com/storyreel/studio/internal/selection"
	ws "github.com/storyreel/studio/internal/websocket"
)

// Workspace is one user's dashboard. It watches at most one job at a time.
//
// Lock order is coordinator, then switchMu, then w.mu, then engine. Nothing
// holding switchMu or w.mu calls into the coordinator.
type Workspace struct {
	userID         string
	topic          string
	engine         *poller.Engine
	coord          *selection.Coordinator
	scripts        ScriptJobs
	pub            Publisher
	logger         *slog.Logger
	lookupTimeout  time.Duration
	stopOnComplete bool

	ctx     context.Context
	cancel  context.CancelFunc
	lookups sync.WaitGroup

	// switchMu serializes job switches so a session started for a replaced
	// job can never outlive the switch that replaced it.
	switchMu sync.Mutex

	mu     sync.Mutex
	view   View
	closed bool
	// gen identifies the polling session the view follows. Events from any
	// other session are dropped.
	gen uint64
	// watchSeq counts explicit watches. A script lookup started before one
	// must not replace it.
	watchSeq uint64
	// lookupPending is set from SCRIPT_CHANGED until a lookup for
	// lookupScript commits. lookupVersion is the selection version of the
	// newest lookup started.
	lookupPending bool
	lookupScript  string
	lookupVersion uint64

	unsubscribe func()
}

func newWorkspace(m *Manager, userID string) *Workspace {
	logger := m.logger.With("user_id", userID)
	ctx, cancel := context.WithCancel(context.Background())

	w := &Workspace{
		userID:         userID,
		topic:          ws.WorkspaceTopic(userID),
		scripts:        m.scripts,
		pub:            m.pub,
		logger:         logging.Component(logger, "workspace"),
		lookupTimeout:  m.lookupTimeout,
		stopOnComplete: m.pollerCfg.StopOnComplete,
		ctx:            ctx,
		cancel:         cancel,
	}
	w.engine = poller.NewEngine(m.fetcher,
		poller.WithClock(m.clock),
		poller.WithLogger(logging.Component(logger, "poller")),
		poller.WithDefaults(m.pollerCfg),
	)
	w.coord = selection.New(selection.WithLogger(logging.Component(logger, "selection")))
	w.unsubscribe = w.coord.Subscribe(w.onSelection)
	return w
}

// Selection returns the workspace coordinator.
func (w *Workspace) Selection() *selection.Coordinator {
	return w.coord
}

// Watch starts polling jobID, replacing the previously watched job. It wins
// over a script lookup that is still running.
func (w *Workspace) Watch(jobID string) error {
	return w.switchJob(ViewEventWatch, jobID, "", func() bool {
		w.watchSeq++
		w.lookupPending = false
		return true
	})
}

// Unwatch stops polling jobID. It reports whether jobID was the watched job.
func (w *Workspace) Unwatch(jobID string) bool {
	w.switchMu.Lock()
	defer w.switchMu.Unlock()

	w.engine.StopPolling(jobID)

	w.mu.Lock()
	if w.view.JobID != jobID {
		w.mu.Unlock()
		return false
	}
	w.gen++
	w.view.Polling = false
	v := w.view
	w.mu.Unlock()

	w.publishView(ViewEventUnwatch, v)
	return true
}

// View returns the current view with live polling introspection.
func (w *Workspace) View() View {
	w.mu.Lock()
	v := w.view
	w.mu.Unlock()

	if v.JobID != "" && w.engine.IsPolling(v.JobID) {
		v.Polling = true
		v.RetryAttempts = w.engine.RetryAttempts(v.JobID)
	}
	return v
}

// State returns the view together with the selection.
func (w *Workspace) State() State {
	sel := w.coord.Snapshot()
	return State{
		View:      w.View(),
		Selection: sel,
		Switching: w.coord.IsSwitching(),
	}
}

// WatchStatus reports whether jobID has a live polling session.
func (w *Workspace) WatchStatus(jobID string) model.WatchStatusResponse {
	return model.WatchStatusResponse{
		JobID:         jobID,
		Polling:       w.engine.IsPolling(jobID),
		RetryAttempts: w.engine.RetryAttempts(jobID),
	}
}

// Close stops polling and waits for pending script lookups.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.unsubscribe()
	w.lookups.Wait()
	w.engine.Close()
}

// switchJob replaces the watched job and pushes the reset view under event
// before the first fetch can report. An empty jobID clears the view and
// records errMsg. admit, when set, runs under w.mu and can veto the switch.
// It must not call into the coordinator.
func (w *Workspace) switchJob(event, jobID, errMsg string, admit func() bool) error {
	w.switchMu.Lock()
	defer w.switchMu.Unlock()

	w.mu.Lock()
	if admit != nil && !admit() {
		w.mu.Unlock()
		return nil
	}
	prev := w.view.JobID
	w.gen++
	gen := w.gen
	w.view = View{JobID: jobID, Polling: jobID != "", Error: errMsg}
	v := w.view
	w.mu.Unlock()

	if prev != "" && prev != jobID {
		w.engine.StopPolling(prev)
	}
	w.publishView(event, v)
	if jobID == "" {
		return nil
	}

	err := w.engine.StartPolling(jobID, func(ev poller.Event) {
		w.onPollEvent(gen, ev)
	})
	if err != nil {
		w.mu.Lock()
		if w.gen == gen {
			w.view.Polling = false
			w.view.Error = err.Error()
		}
		w.mu.Unlock()
		w.publishView(event, w.snapshot())
		return err
	}
	return nil
}

func (w *Workspace) snapshot() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

func (w *Workspace) onPollEvent(gen uint64, ev poller.Event) {
	w.mu.Lock()
	if gen != w.gen || ev.JobID != w.view.JobID {
		w.mu.Unlock()
		return
	}

	v := &w.view
	switch ev.Type {
	case poller.EventUpdate:
		v.apply(ev.Record, ev.Progress, ev.Advice)
		v.Polling = true
	case poller.EventComplete:
		v.Polling = !w.stopOnComplete
	case poller.EventRetry:
		// Transient failures stay silent until retries run out.
		v.RetryAttempts = ev.Attempt
		w.mu.Unlock()
		return
	case poller.EventError:
		v.Polling = false
		v.RetryAttempts = ev.Attempt
		if ev.Err != nil {
			v.Error = ev.Err.Error()
		}
	}
	snap := *v
	w.mu.Unlock()

	w.publishView(string(ev.Type), snap)
}

func (w *Workspace) onSelection(ev selection.Event) {
	w.pub.Publish(w.topic, model.WSSelectionMessage{
		Type:      model.WSMessageTypeSelection,
		Tag:       string(ev.Tag),
		Reason:    ev.Reason,
		Version:   ev.Selection.Version,
		ScriptID:  ev.Selection.ScriptID,
		ChapterID: ev.Selection.ChapterID,
		SegmentID: ev.Selection.SegmentID,
	})

	// Inside a switch the version cannot move until this handler returns.
	token := w.coord.Capture()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if ev.Tag == selection.TagScriptChanged {
		w.lookupPending = true
		w.lookupScript = ev.Selection.ScriptID
	}
	// Any switch supersedes the running lookup, so a pending script is
	// looked up again at the new version.
	if !w.lookupPending || w.lookupVersion == token.Version() {
		w.mu.Unlock()
		return
	}
	w.lookupVersion = token.Version()
	scriptID := w.lookupScript
	seq := w.watchSeq
	w.lookups.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.lookups.Done()
		w.loadScriptJob(token, seq, scriptID)
	}()
}

// loadScriptJob resolves the latest job of scriptID and watches it, unless
// the selection moved on or an explicit watch happened after seq.
func (w *Workspace) loadScriptJob(token selection.Token, seq uint64, scriptID string) {
	ctx, cancel := context.WithTimeout(w.ctx, w.lookupTimeout)
	defer cancel()

	admit := func() bool {
		if w.watchSeq != seq {
			w.logger.Debug("script lookup superseded by watch", "script_id", scriptID)
			return false
		}
		w.lookupPending = false
		return true
	}

	var watchErr error
	_, err := selection.DispatchFrom(ctx, w.coord, token,
		func(ctx context.Context) (string, error) {
			return w.scripts.LookupScriptJob(ctx, w.userID, scriptID)
		},
		func(jobID string) {
			watchErr = w.switchJob(ViewEventScript, jobID, "", admit)
		},
	)
	if watchErr != nil {
		w.logger.Warn("failed to watch script generation", "script_id", scriptID, "error", watchErr)
	}
	if err == nil || w.ctx.Err() != nil {
		return
	}

	w.logger.Info("script has no watchable generation", "script_id", scriptID, "error", err)
	w.coord.Commit(token, func() {
		_ = w.switchJob(ViewEventScript, "", err.Error(), admit)
	})
}

func (w *Workspace) publishView(event string, v View) {
	w.pub.Publish(w.topic, model.WSViewMessage{
		Type:  model.WSMessageTypeView,
		Event: event,
		View:  v,
	})
}
