// Package selection tracks the active script, chapter and segment of a
// workspace and versions every change so that asynchronous work started
// under an older selection can be discarded.
package selection

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Coordinator is a two-state machine (idle, switching). Switches are
// serialized by rejecting any switch requested while another is running.
type Coordinator struct {
	logger    *slog.Logger
	switching atomic.Bool

	mu          sync.Mutex
	current     Snapshot
	subscribers []subscriber
	nextSubID   uint64
}

// New returns an idle Coordinator with an empty selection at version 0.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectScript activates a script and clears the chapter and segment. It
// returns false when a switch is already running or id is already active.
func (c *Coordinator) SelectScript(id, reason string) bool {
	return c.switchTo(reason, func(s *Snapshot) []Tag {
		if s.ScriptID == id {
			return nil
		}
		s.ScriptID = id
		s.ChapterID = ""
		return clearSegment(s, TagScriptChanged)
	})
}

// SelectChapter activates a chapter of the current script and clears the
// segment.
func (c *Coordinator) SelectChapter(id, reason string) bool {
	return c.switchTo(reason, func(s *Snapshot) []Tag {
		if s.ChapterID == id {
			return nil
		}
		s.ChapterID = id
		return clearSegment(s, TagChapterChanged)
	})
}

// SelectSegment activates a timeline segment.
func (c *Coordinator) SelectSegment(id, reason string) bool {
	return c.switchTo(reason, func(s *Snapshot) []Tag {
		if s.SegmentID == id {
			return nil
		}
		s.SegmentID = id
		return []Tag{TagSegmentChanged}
	})
}

// RequestTimelineRecalc asks layout-sensitive subscribers to recompute. The
// version is not changed.
func (c *Coordinator) RequestTimelineRecalc(reason string) {
	c.mu.Lock()
	ev := Event{Tag: TagTimelineRecalcRequested, Reason: reason, Selection: c.current}
	subs := c.snapshotSubscribers()
	c.mu.Unlock()

	publish(subs, ev)
}

// Subscribe registers handler. Handlers run in registration order.
func (c *Coordinator) Subscribe(handler Handler) func() {
	c.mu.Lock()
	c.nextSubID++
	id := c.nextSubID
	c.subscribers = append(c.subscribers, subscriber{id: id, handler: handler})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			for i, sub := range c.subscribers {
				if sub.id == id {
					c.subscribers = append(c.subscribers[:i:i], c.subscribers[i+1:]...)
					return
				}
			}
		})
	}
}

// Snapshot returns the active selection.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Version returns the current version token value.
func (c *Coordinator) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Version
}

// IsSwitching reports whether a switch is in progress. Mutating actions
// should be disabled while it is true.
func (c *Coordinator) IsSwitching() bool {
	return c.switching.Load()
}

func (c *Coordinator) switchTo(reason string, mutate func(*Snapshot) []Tag) bool {
	if !c.switching.CompareAndSwap(false, true) {
		c.logger.Debug("selection switch rejected, another switch is running", "reason", reason)
		return false
	}
	defer c.switching.Store(false)

	c.mu.Lock()
	next := c.current
	tags := mutate(&next)
	if len(tags) == 0 {
		c.mu.Unlock()
		return false
	}
	next.Version++
	c.current = next
	subs := c.snapshotSubscribers()
	c.mu.Unlock()

	c.logger.Debug("selection changed",
		"script_id", next.ScriptID,
		"chapter_id", next.ChapterID,
		"segment_id", next.SegmentID,
		"version", next.Version,
		"reason", reason,
	)

	for _, tag := range tags {
		publish(subs, Event{Tag: tag, Reason: reason, Selection: next})
	}
	return true
}

// snapshotSubscribers must be called with c.mu held.
func (c *Coordinator) snapshotSubscribers() []subscriber {
	subs := make([]subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	return subs
}

func publish(subs []subscriber, ev Event) {
	for _, sub := range subs {
		sub.handler(ev)
	}
}

func clearSegment(s *Snapshot, primary Tag) []Tag {
	if s.SegmentID == "" {
		return []Tag{primary}
	}
	s.SegmentID = ""
	return []Tag{primary, TagSegmentChanged}
}
