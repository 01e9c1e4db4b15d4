package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/storyreel/studio/internal/clock"
)

// session is one job's polling loop. It is owned by exactly one goroutine;
// stop may be called from any goroutine.
type session struct {
	jobID   string
	cfg     Config
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc

	attempts atomic.Int64

	mu      sync.Mutex
	timer   clock.Timer
	stopped bool
}

func newSession(jobID string, cfg Config, handler Handler) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		jobID:   jobID,
		cfg:     cfg,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// stop cancels the in-flight fetch and the pending timer.
func (s *session) stop() {
	s.mu.Lock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.cancel()
}

// sleep waits d on clk. It returns false when the session was stopped first.
func (s *session) sleep(clk clock.Clock, d time.Duration) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	t := clk.NewTimer(d)
	s.timer = t
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.timer == t {
			s.timer = nil
		}
		s.mu.Unlock()
	}()

	select {
	case <-s.ctx.Done():
		t.Stop()
		return false
	case <-t.C():
		return s.ctx.Err() == nil
	}
}
