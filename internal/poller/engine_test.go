package poller

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/storyreel/studio/internal/clock"
	"github.com/storyreel/studio/internal/model"
	"github.com/storyreel/studio/internal/status"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errConnRefused = errors.New("dial tcp 127.0.0.1:8080: connection refused")

type step struct {
	rec *model.GenerationRecord
	err error
}

// scriptedFetcher replays steps in order and repeats the last one.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (f *scriptedFetcher) FetchStatus(_ context.Context, _ string) (*model.GenerationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	return f.steps[i].rec, f.steps[i].err
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	ch chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 64)}
}

func (r *recorder) handle(ev Event) {
	r.ch <- ev
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func (r *recorder) assertNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.ch:
		t.Fatalf("unexpected %s event for %s", ev.Type, ev.JobID)
	case <-time.After(30 * time.Millisecond):
	}
}

func newTestEngine(t *testing.T, f Fetcher) (*Engine, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	e := NewEngine(f,
		WithClock(fake),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	t.Cleanup(e.Close)
	return e, fake
}

func record(stage model.Stage) *model.GenerationRecord {
	return &model.GenerationRecord{ID: "job-1", Stage: stage}
}

func videoRecord(done, total int, rate float64) *model.GenerationRecord {
	rec := record(model.StageGeneratingVideo)
	rec.PerStageProgress.Video = &model.VideoProgress{
		SceneCounters: model.SceneCounters{ScenesCompleted: done, TotalScenes: total, SuccessRate: rate},
	}
	return rec
}

func TestStartPolling_FetchesImmediatelyAndFollowsInterval(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{rec: videoRecord(2, 5, 80)}}}
	e, fake := newTestEngine(t, f)
	r := newRecorder()

	require.NoError(t, e.StartPolling("job-1", r.handle))

	ev := r.next(t)
	assert.Equal(t, EventUpdate, ev.Type)
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, 70, ev.Progress)
	assert.Nil(t, ev.Advice)
	assert.True(t, e.IsPolling("job-1"))

	require.True(t, fake.WaitForTimers(1, time.Second))
	assert.Equal(t, 1, f.Calls())

	fake.Advance(2999 * time.Millisecond)
	r.assertNone(t)

	fake.Advance(time.Millisecond)
	ev = r.next(t)
	assert.Equal(t, EventUpdate, ev.Type)
	assert.Equal(t, 2, f.Calls())
}

func TestStartPolling_ReplacesExistingSession(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{rec: record(model.StageGeneratingAudio)}}}
	e, fake := newTestEngine(t, f)
	first, second := newRecorder(), newRecorder()

	require.NoError(t, e.StartPolling("job-1", first.handle))
	first.next(t)
	require.True(t, fake.WaitForTimers(1, time.Second))

	require.NoError(t, e.StartPolling("job-1", second.handle))
	assert.Equal(t, EventUpdate, second.next(t).Type)
	require.True(t, fake.WaitForTimers(1, time.Second))
	assert.Equal(t, 2, f.Calls())

	fake.Advance(Interval(model.StageGeneratingAudio))
	assert.Equal(t, EventUpdate, second.next(t).Type)
	first.assertNone(t)

	require.True(t, fake.WaitForTimers(1, time.Second))
	assert.Equal(t, 3, f.Calls())
}

func TestRetry_ExhaustionStopsSession(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{err: errConnRefused}}}
	e, fake := newTestEngine(t, f)
	r := newRecorder()

	require.NoError(t, e.StartPolling("job-1", r.handle))

	for attempt := 1; attempt <= 5; attempt++ {
		ev := r.next(t)
		require.Equal(t, EventRetry, ev.Type)
		assert.Equal(t, attempt, ev.Attempt)
		assert.ErrorIs(t, ev.Err, errConnRefused)
		assert.Equal(t, attempt, e.RetryAttempts("job-1"))

		require.True(t, fake.WaitForTimers(1, time.Second))
		fake.Advance(2 * time.Second)
	}

	ev := r.next(t)
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, 5, ev.Attempt)
	assert.ErrorIs(t, ev.Err, errConnRefused)

	assert.Eventually(t, func() bool { return !e.IsPolling("job-1") }, time.Second, time.Millisecond)
	assert.Equal(t, 0, e.RetryAttempts("job-1"))
	assert.Equal(t, 0, fake.Pending())
	assert.Equal(t, 6, f.Calls())
	r.assertNone(t)
}

func TestRetry_SuccessResetsCounter(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{err: errConnRefused},
		{err: errConnRefused},
		{rec: record(model.StageGeneratingAudio)},
		{err: errConnRefused},
		{err: errConnRefused},
		{rec: record(model.StageCompleted)},
	}}
	e, fake := newTestEngine(t, f)
	r := newRecorder()

	require.NoError(t, e.StartPolling("job-1", r.handle, WithMaxRetries(2)))

	expect := []struct {
		typ     EventType
		attempt int
	}{
		{EventRetry, 1},
		{EventRetry, 2},
		{EventUpdate, 0},
		{EventRetry, 1},
		{EventRetry, 2},
	}
	for _, want := range expect {
		ev := r.next(t)
		require.Equal(t, want.typ, ev.Type)
		assert.Equal(t, want.attempt, ev.Attempt)
		assert.Equal(t, want.attempt, e.RetryAttempts("job-1"))

		require.True(t, fake.WaitForTimers(1, time.Second))
		fake.Advance(2 * time.Second)
	}

	assert.Equal(t, EventUpdate, r.next(t).Type)
	assert.Equal(t, EventComplete, r.next(t).Type)
	r.assertNone(t)
}

func TestTerminalFailure_CompletesWithAdvice(t *testing.T) {
	msg := "Video generation timed out after 600s"
	rec := record(model.StageFailed)
	rec.ErrorMessage = &msg

	f := &scriptedFetcher{steps: []step{{rec: rec}}}
	e, fake := newTestEngine(t, f)
	r := newRecorder()

	require.NoError(t, e.StartPolling("job-1", r.handle))

	update := r.next(t)
	require.Equal(t, EventUpdate, update.Type)
	assert.Equal(t, 0, update.Progress)
	require.NotNil(t, update.Advice)
	assert.Equal(t, status.HintShortenInput, update.Advice.RetryHint)

	complete := r.next(t)
	assert.Equal(t, EventComplete, complete.Type)
	assert.Same(t, rec, complete.Record)

	assert.Eventually(t, func() bool { return !e.IsPolling("job-1") }, time.Second, time.Millisecond)
	assert.Equal(t, 0, fake.Pending())
	assert.Equal(t, 1, f.Calls())
}

func TestLipSyncCompleted_KeepsPolling(t *testing.T) {
	f := &scriptedFetcher{steps: []step{
		{rec: record(model.StageLipSyncCompleted)},
		{rec: record(model.StageCompleted)},
	}}
	e, fake := newTestEngine(t, f)
	r := newRecorder()

	require.NoError(t, e.StartPolling("job-1", r.handle))

	ev := r.next(t)
	assert.Equal(t, EventUpdate, ev.Type)
	assert.Equal(t, 100, ev.Progress)
	require.True(t, fake.WaitForTimers(1, time.Second))
	assert.True(t, e.IsPolling("job-1"))

	fake.Advance(DefaultInterval)
	assert.Equal(t, EventUpdate, r.next(t).Type)
	assert.Equal(t, EventComplete, r.next(t).Type)
}

func TestStopOnCompleteDisabled_ContinuesAtDefaultInterval(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{rec: record(model.StageCompleted)}}}
	e, fake := newTestEngine(t, f)
	r := newRecorder()

	require.NoError(t, e.StartPolling("job-1", r.handle, WithStopOnComplete(false)))

	assert.Equal(t, EventUpdate, r.next(t).Type)
	assert.Equal(t, EventComplete, r.next(t).Type)
	require.True(t, fake.WaitForTimers(1, time.Second))
	assert.True(t, e.IsPolling("job-1"))

	fake.Advance(DefaultInterval)
	assert.Equal(t, EventUpdate, r.next(t).Type)
}

func TestStopPolling_DiscardsInFlightFetch(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := FetcherFunc(func(context.Context, string) (*model.GenerationRecord, error) {
		close(entered)
		<-release
		return record(model.StageGeneratingAudio), nil
	})
	e, fake := newTestEngine(t, f)
	r := newRecorder()

	require.NoError(t, e.StartPolling("job-1", r.handle))
	<-entered

	e.StopPolling("job-1")
	assert.False(t, e.IsPolling("job-1"))
	e.StopPolling("job-1")

	close(release)
	e.Close()

	r.assertNone(t)
	assert.Equal(t, 0, fake.Pending())
}

func TestStopPolling_CancelsPendingTimer(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{err: errConnRefused}}}
	e, fake := newTestEngine(t, f)
	r := newRecorder()

	require.NoError(t, e.StartPolling("job-1", r.handle))
	assert.Equal(t, EventRetry, r.next(t).Type)
	require.True(t, fake.WaitForTimers(1, time.Second))

	e.StopPolling("job-1")
	assert.Equal(t, 0, fake.Pending())
	assert.Equal(t, 0, e.RetryAttempts("job-1"))

	fake.Advance(time.Minute)
	r.assertNone(t)
	assert.Equal(t, 1, f.Calls())
}

func TestRequestTimeout_IsTransientFailure(t *testing.T) {
	f := FetcherFunc(func(ctx context.Context, _ string) (*model.GenerationRecord, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e, fake := newTestEngine(t, f)
	r := newRecorder()

	require.NoError(t, e.StartPolling("job-1", r.handle,
		WithRequestTimeout(10*time.Millisecond),
		WithMaxRetries(1),
	))

	ev := r.next(t)
	require.Equal(t, EventRetry, ev.Type)
	assert.ErrorIs(t, ev.Err, context.DeadlineExceeded)

	require.True(t, fake.WaitForTimers(1, time.Second))
	fake.Advance(2 * time.Second)

	ev = r.next(t)
	assert.Equal(t, EventError, ev.Type)
	assert.ErrorIs(t, ev.Err, context.DeadlineExceeded)
}

func TestEmptyRecord_IsFailure(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{}}}
	e, _ := newTestEngine(t, f)
	r := newRecorder()

	require.NoError(t, e.StartPolling("job-1", r.handle, WithMaxRetries(0)))

	ev := r.next(t)
	assert.Equal(t, EventError, ev.Type)
	assert.ErrorIs(t, ev.Err, ErrEmptyRecord)
}

func TestHandlerStopDuringUpdate_SuppressesComplete(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{rec: record(model.StageCompleted)}}}
	e, fake := newTestEngine(t, f)
	r := newRecorder()

	handler := func(ev Event) {
		r.handle(ev)
		if ev.Type == EventUpdate {
			e.StopPolling(ev.JobID)
		}
	}
	require.NoError(t, e.StartPolling("job-1", handler))

	assert.Equal(t, EventUpdate, r.next(t).Type)
	r.assertNone(t)
	assert.False(t, e.IsPolling("job-1"))
	assert.Equal(t, 0, fake.Pending())
}

func TestSubscribe_ReceivesAllSessions(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{rec: record(model.StageGeneratingAudio)}}}
	e, fake := newTestEngine(t, f)
	sub := newRecorder()

	unsubscribe := e.Subscribe(sub.handle)

	require.NoError(t, e.StartPolling("job-a", nil))
	require.NoError(t, e.StartPolling("job-b", nil))

	ids := []string{sub.next(t).JobID, sub.next(t).JobID}
	assert.ElementsMatch(t, []string{"job-a", "job-b"}, ids)

	unsubscribe()
	unsubscribe()

	require.True(t, fake.WaitForTimers(2, time.Second))
	fake.Advance(2 * time.Second)
	assert.Eventually(t, func() bool { return f.Calls() == 4 }, time.Second, time.Millisecond)
	sub.assertNone(t)
}

func TestStopAllPolling(t *testing.T) {
	f := &scriptedFetcher{steps: []step{{rec: record(model.StageMergingAudio)}}}
	e, fake := newTestEngine(t, f)
	sub := newRecorder()
	e.Subscribe(sub.handle)

	require.NoError(t, e.StartPolling("job-a", nil))
	require.NoError(t, e.StartPolling("job-b", nil))
	sub.next(t)
	sub.next(t)
	require.True(t, fake.WaitForTimers(2, time.Second))

	e.StopAllPolling()
	assert.Equal(t, 0, fake.Pending())
	assert.False(t, e.IsPolling("job-a"))
	assert.False(t, e.IsPolling("job-b"))
}

func TestStartPolling_AfterClose(t *testing.T) {
	e, _ := newTestEngine(t, &scriptedFetcher{steps: []step{{rec: record(model.StageCompleted)}}})
	e.Close()

	assert.ErrorIs(t, e.StartPolling("job-1", nil), ErrEngineClosed)
	assert.False(t, e.IsPolling("job-1"))
}

func TestCallbacksHandler(t *testing.T) {
	var got []string
	h := Callbacks{
		OnUpdate:   func(rec *model.GenerationRecord) { got = append(got, "update:"+string(rec.Stage)) },
		OnComplete: func(rec *model.GenerationRecord) { got = append(got, "complete:"+string(rec.Stage)) },
		OnRetry:    func(attempt int, err error) { got = append(got, "retry") },
		OnError:    func(err error) { got = append(got, "error:"+err.Error()) },
	}.Handler()

	rec := record(model.StageCompleted)
	h(Event{Type: EventUpdate, Record: rec})
	h(Event{Type: EventComplete, Record: rec})
	h(Event{Type: EventRetry, Attempt: 1, Err: errConnRefused})
	h(Event{Type: EventError, Err: errors.New("boom")})

	assert.Equal(t, []string{"update:completed", "complete:completed", "retry", "error:boom"}, got)

	assert.NotPanics(t, func() { Callbacks{}.Handler()(Event{Type: EventUpdate}) })
}
