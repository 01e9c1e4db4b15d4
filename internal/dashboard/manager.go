// Package dashboard hosts per-user workspaces. A workspace owns one polling
// engine and one selection coordinator and pushes the derived view of the
// watched job to the user's socket topic.
package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/storyreel/studio/internal/clock"
	"github.com/storyreel/studio/internal/poller"
)

// ErrManagerClosed is returned by Workspace after Close.
var ErrManagerClosed = errors.New("dashboard: manager closed")

// Publisher delivers a message to every subscriber of a topic.
type Publisher interface {
	Publish(topic string, v any)
}

// ScriptJobs resolves the latest generation a user started for a script.
type ScriptJobs interface {
	LookupScriptJob(ctx context.Context, userID, scriptID string) (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollerConfig sets the session defaults of every workspace engine.
func WithPollerConfig(cfg poller.Config) Option {
	return func(m *Manager) {
		m.pollerCfg = cfg
	}
}

// WithClock replaces the clock used by workspace engines.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) {
		m.clock = clk
	}
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLookupTimeout bounds a script-to-job lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.lookupTimeout = d
	}
}

// Manager creates workspaces on first use and keeps them until Close.
type Manager struct {
	fetcher       poller.Fetcher
	scripts       ScriptJobs
	pub           Publisher
	pollerCfg     poller.Config
	clock         clock.Clock
	logger        *slog.Logger
	lookupTimeout time.Duration

	mu         sync.Mutex
	workspaces map[string]*Workspace
	closed     bool
}

func NewManager(fetcher poller.Fetcher, scripts ScriptJobs, pub Publisher, opts ...Option) *Manager {
	m := &Manager{
		fetcher:       fetcher,
		scripts:       scripts,
		pub:           pub,
		pollerCfg:     poller.DefaultConfig(),
		clock:         clock.Real(),
		logger:        slog.Default(),
		lookupTimeout: 10 * time.Second,
		workspaces:    make(map[string]*Workspace),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Workspace returns the workspace of userID, creating it if needed.
func (m *Manager) Workspace(userID string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if ws, ok := m.workspaces[userID]; ok {
		return ws, nil
	}
	ws := newWorkspace(m, userID)
	m.workspaces[userID] = ws
	m.logger.Debug("workspace created", "user_id", userID)
	return ws, nil
}

// Close shuts down every workspace and waits for their goroutines.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	workspaces := m.workspaces
	m.workspaces = make(map[string]*Workspace)
	m.mu.Unlock()

	for _, ws := range workspaces {
		ws.Close()
	}
}
