package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/storyreel/studio/internal/model"
)

// JobStore persists generation jobs and the script index.
type JobStore interface {
	SaveJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	SetScriptJob(ctx context.Context, scriptID, jobID string) error
	GetScriptJob(ctx context.Context, scriptID string) (string, error)
}

// RedisJobStore keeps each job as JSON under generation:<id> and the latest
// job of a script under script:<scriptId>:generation.
type RedisJobStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisJobStore(redisClient *redis.Client, ttl time.Duration) *RedisJobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisJobStore{redis: redisClient, ttl: ttl}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("generation:%s", jobID)
}

func scriptKey(scriptID string) string {
	return fmt.Sprintf("script:%s:generation", scriptID)
}

func (s *RedisJobStore) SaveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return s.redis.Set(ctx, jobKey(job.Record.ID), data, s.ttl).Err()
}

func (s *RedisJobStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *RedisJobStore) SetScriptJob(ctx context.Context, scriptID, jobID string) error {
	return s.redis.Set(ctx, scriptKey(scriptID), jobID, s.ttl).Err()
}

func (s *RedisJobStore) GetScriptJob(ctx context.Context, scriptID string) (string, error) {
	jobID, err := s.redis.Get(ctx, scriptKey(scriptID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoGeneration
		}
		return "", err
	}
	return jobID, nil
}
