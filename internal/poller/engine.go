// Package poller runs one polling loop per generation job and turns status
// snapshots into update, complete, retry and error events.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/storyreel/studio/internal/clock"
	"github.com/storyreel/studio/internal/model"
	"github.com/storyreel/studio/internal/status"
)

var (
	// ErrEngineClosed is returned by StartPolling after Close.
	ErrEngineClosed = errors.New("poller: engine closed")
	// ErrEmptyRecord is reported when a fetcher returns neither a record nor
	// an error.
	ErrEmptyRecord = errors.New("poller: empty status response")
)

// Fetcher loads the current record of a job.
type Fetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*model.GenerationRecord, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, jobID string) (*model.GenerationRecord, error)

func (f FetcherFunc) FetchStatus(ctx context.Context, jobID string) (*model.GenerationRecord, error) {
	return f(ctx, jobID)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock replaces the real clock, mainly for tests.
func WithClock(clk clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clk
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithDefaults sets the Config applied to sessions before per-session options.
func WithDefaults(cfg Config) EngineOption {
	return func(e *Engine) {
		e.defaults = cfg
	}
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Engine is a registry of polling sessions keyed by job id. At most one
// session exists per id.
type Engine struct {
	fetcher  Fetcher
	clock    clock.Clock
	logger   *slog.Logger
	defaults Config

	mu          sync.Mutex
	sessions    map[string]*session
	subscribers []subscriber
	nextSubID   uint64
	closed      bool

	wg sync.WaitGroup
}

// NewEngine creates an Engine that loads records through fetcher.
func NewEngine(fetcher Fetcher, opts ...EngineOption) *Engine {
	e := &Engine{
		fetcher:  fetcher,
		clock:    clock.Real(),
		logger:   slog.Default(),
		defaults: DefaultConfig(),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartPolling replaces any session for jobID with a new one and fetches
// immediately. handler may be nil when only subscribers are interested.
func (e *Engine) StartPolling(jobID string, handler Handler, opts ...Option) error {
	s := newSession(jobID, e.defaults.with(opts...), handler)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		s.cancel()
		return ErrEngineClosed
	}
	prev := e.sessions[jobID]
	e.sessions[jobID] = s
	e.wg.Add(1)
	e.mu.Unlock()

	if prev != nil {
		prev.stop()
		e.logger.Debug("replaced polling session", "job_id", jobID)
	}
	e.logger.Info("polling started", "job_id", jobID)

	go e.run(s)
	return nil
}

// StopPolling ends the session for jobID. A fetch already in flight is
// discarded. Calling it for an unknown id is a no-op.
//
// It does not wait for a delivery that is already running: when called from
// another goroutine, one event that passed the registration check may still
// reach the handler after StopPolling returns. Handlers that must ignore it
// should tag their session, as StartPolling may also reuse the job id.
func (e *Engine) StopPolling(jobID string) {
	e.mu.Lock()
	s := e.sessions[jobID]
	delete(e.sessions, jobID)
	e.mu.Unlock()

	if s != nil {
		s.stop()
		e.logger.Info("polling stopped", "job_id", jobID)
	}
}

// StopAllPolling ends every session.
func (e *Engine) StopAllPolling() {
	e.mu.Lock()
	sessions := e.sessions
	e.sessions = make(map[string]*session)
	e.mu.Unlock()

	for _, s := range sessions {
		s.stop()
	}
}

// Close stops every session and waits for their goroutines to exit. It must
// not be called from a Handler.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	e.StopAllPolling()
	e.wg.Wait()
}

// IsPolling reports whether a session exists for jobID.
func (e *Engine) IsPolling(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[jobID]
	return ok
}

// RetryAttempts returns the consecutive failure count of the session for
// jobID, or 0 when there is none.
func (e *Engine) RetryAttempts(jobID string) int {
	e.mu.Lock()
	s := e.sessions[jobID]
	e.mu.Unlock()
	if s == nil {
		return 0
	}
	return int(s.attempts.Load())
}

// Subscribe registers a handler for the events of every session. The returned
// function removes it.
func (e *Engine) Subscribe(handler Handler) func() {
	e.mu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.subscribers = append(e.subscribers, subscriber{id: id, handler: handler})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, sub := range e.subscribers {
				if sub.id == id {
					e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

func (e *Engine) run(s *session) {
	defer e.wg.Done()
	defer s.cancel()

	logger := e.logger.With("job_id", s.jobID)

	for {
		rec, err := e.fetch(s)
		if !e.isCurrent(s) {
			logger.Debug("discarding fetch result for stopped session")
			return
		}

		if err != nil {
			attempt := int(s.attempts.Load())
			if attempt >= s.cfg.MaxRetries {
				logger.Error("status polling failed", "attempts", attempt, "error", err)
				e.emit(s, Event{Type: EventError, JobID: s.jobID, Attempt: attempt, Err: err})
				e.finish(s)
				return
			}
			attempt = int(s.attempts.Add(1))
			logger.Warn("status fetch failed, retrying", "attempt", attempt, "max_retries", s.cfg.MaxRetries, "error", err)
			if !e.emit(s, Event{Type: EventRetry, JobID: s.jobID, Attempt: attempt, Err: err}) {
				return
			}
			if !s.sleep(e.clock, s.cfg.RetryDelay) {
				return
			}
			continue
		}

		s.attempts.Store(0)
		update := Event{
			Type:     EventUpdate,
			JobID:    s.jobID,
			Record:   rec,
			Progress: status.ComputeOverallProgress(rec),
		}
		if msg := rec.ErrorText(); msg != "" {
			advice := status.Classify(msg)
			update.Advice = &advice
		}
		logger.Debug("status fetched", "stage", rec.Stage, "progress", update.Progress)
		if !e.emit(s, update) {
			return
		}

		if model.IsTerminal(rec.Stage) {
			complete := update
			complete.Type = EventComplete
			if !e.emit(s, complete) {
				return
			}
			if s.cfg.StopOnComplete {
				logger.Info("polling finished", "stage", rec.Stage)
				e.finish(s)
				return
			}
		}

		if !s.sleep(e.clock, Interval(rec.Stage)) {
			return
		}
	}
}

func (e *Engine) fetch(s *session) (*model.GenerationRecord, error) {
	ctx := s.ctx
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	rec, err := e.fetcher.FetchStatus(ctx, s.jobID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrEmptyRecord
	}
	return rec, nil
}

func (e *Engine) isCurrent(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[s.jobID] == s
}

// emit delivers ev to the session handler and the subscribers. It returns
// false without delivering when the session is no longer registered.
func (e *Engine) emit(s *session, ev Event) bool {
	e.mu.Lock()
	if e.sessions[s.jobID] != s {
		e.mu.Unlock()
		return false
	}
	subs := make([]subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()

	if s.handler != nil {
		s.handler(ev)
	}
	for _, sub := range subs {
		sub.handler(ev)
	}
	return true
}

// finish unregisters s if it is still the current session for its id.
func (e *Engine) finish(s *session) {
	e.mu.Lock()
	if e.sessions[s.jobID] == s {
		delete(e.sessions, s.jobID)
	}
	e.mu.Unlock()
	s.stop()
}
