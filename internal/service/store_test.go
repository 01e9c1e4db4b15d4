package service

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/storyreel/studio/internal/model"
)

// setupRedis spins up a Redis container and returns a connected client.
func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisJobStore_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	client := setupRedis(t)
	store := NewRedisJobStore(client, time.Hour)
	ctx := context.Background()

	job := &model.Job{
		Record: model.NewGenerationRecord("job-1", model.PipelineJobPayload{ScriptID: "script-1"}, time.Now().UTC()),
		Payload: model.PipelineJobPayload{
			ScriptID:   "script-1",
			Title:      "Pilot",
			SceneCount: 2,
		},
	}
	require.NoError(t, store.SaveJob(ctx, job))
	require.NoError(t, store.SetScriptJob(ctx, "script-1", "job-1"))

	got, err := store.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageGeneratingAudio, got.Record.Stage)
	assert.Equal(t, "Pilot", got.Payload.Title)

	jobID, err := store.GetScriptJob(ctx, "script-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)

	ttl, err := client.TTL(ctx, "generation:job-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 59*time.Minute)
}

func TestRedisJobStore_Missing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	store := NewRedisJobStore(setupRedis(t), 0)
	ctx := context.Background()

	_, err := store.GetJob(ctx, "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = store.GetScriptJob(ctx, "nope")
	assert.ErrorIs(t, err, ErrNoGeneration)
}
