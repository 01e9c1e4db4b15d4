package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyreel/studio/internal/logging"
	"github.com/storyreel/studio/internal/model"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		require.True(t, ok, "send channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestHub_PublishRoutesByTopic(t *testing.T) {
	h := runHub(t)

	jobClient := &Client{Topic: JobTopic("job-1"), Send: make(chan []byte, 4)}
	wsClient := &Client{Topic: WorkspaceTopic("user-1"), Send: make(chan []byte, 4)}
	h.Register(jobClient)
	h.Register(wsClient)
	assert.Eventually(t, func() bool { return h.Subscribers("job:job-1") == 1 }, time.Second, time.Millisecond)

	h.BroadcastStage("job-1", 25, model.GenerationRecord{ID: "job-1", Stage: model.StageAudioCompleted})

	var stage model.WSStageMessage
	require.NoError(t, json.Unmarshal(receive(t, jobClient), &stage))
	assert.Equal(t, model.WSMessageTypeStage, stage.Type)
	assert.Equal(t, 25, stage.Progress)
	assert.Equal(t, model.StageAudioCompleted, stage.Record.Stage)

	h.BroadcastError(WorkspaceTopic("user-1"), "job-1", "JOB_FAILED", "boom")

	var errMsg model.WSErrorMessage
	require.NoError(t, json.Unmarshal(receive(t, wsClient), &errMsg))
	assert.Equal(t, "JOB_FAILED", errMsg.Error.Code)

	select {
	case <-jobClient.Send:
		t.Fatal("job client received a workspace message")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h := runHub(t)

	c := &Client{Topic: "job:x", Send: make(chan []byte, 1)}
	h.Register(c)
	h.Unregister(c)
	h.Unregister(c)

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return h.Subscribers("job:x") == 0 }, time.Second, time.Millisecond)
}

func TestHub_DropsSlowConsumer(t *testing.T) {
	h := runHub(t)

	c := &Client{Topic: "job:slow", Send: make(chan []byte)}
	h.Register(c)
	h.Publish("job:slow", map[string]string{"type": "stage"})

	assert.Eventually(t, func() bool { return h.Subscribers("job:slow") == 0 }, time.Second, time.Millisecond)
}

func TestHub_ReplySkipsRemovedClient(t *testing.T) {
	h := runHub(t)

	c := &Client{Topic: "job:slow", Send: make(chan []byte)}
	h.Register(c)
	h.Publish("job:slow", map[string]string{"type": "stage"})
	require.Eventually(t, func() bool { return h.Subscribers("job:slow") == 0 }, time.Second, time.Millisecond)

	// Send is closed by now; a pong must not be written to it.
	assert.NotPanics(t, func() {
		assert.False(t, h.Reply(c, []byte(`{"type":"pong"}`)))
	})

	live := &Client{Topic: "job:live", Send: make(chan []byte, 1)}
	h.Register(live)
	require.Eventually(t, func() bool { return h.Subscribers("job:live") == 1 }, time.Second, time.Millisecond)
	assert.True(t, h.Reply(live, []byte(`{"type":"pong"}`)))
	assert.JSONEq(t, `{"type":"pong"}`, string(receive(t, live)))
}

func TestHub_ShutdownReleasesClients(t *testing.T) {
	h := NewHub(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := &Client{Topic: "workspace:user-1", Send: make(chan []byte, 1)}
	require.True(t, h.Register(c))

	cancel()
	<-stopped

	_, ok := <-c.Send
	assert.False(t, ok, "send channel should be closed on shutdown")
	assert.Equal(t, 0, h.Subscribers("workspace:user-1"))

	returned := make(chan struct{})
	go func() {
		h.Unregister(c)
		assert.False(t, h.Register(&Client{Topic: "job:late", Send: make(chan []byte, 1)}))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("register and unregister blocked after shutdown")
	}
}
