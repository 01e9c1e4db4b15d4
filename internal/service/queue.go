package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/storyreel/studio/internal/model"
)

const (
	TaskTypePipeline = "pipeline:process"
	QueuePipeline    = "pipeline"
)

// TaskQueue hands pipeline tasks to the worker.
type TaskQueue interface {
	EnqueuePipeline(ctx context.Context, task model.PipelineTask) error
}

// AsynqQueue enqueues pipeline tasks on Redis through asynq.
type AsynqQueue struct {
	client *asynq.Client
}

func NewAsynqQueue(client *asynq.Client) *AsynqQueue {
	return &AsynqQueue{client: client}
}

// NewPipelineTask builds the asynq task for a pipeline run.
func NewPipelineTask(task model.PipelineTask) (*asynq.Task, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePipeline, data), nil
}

func (q *AsynqQueue) EnqueuePipeline(ctx context.Context, task model.PipelineTask) error {
	t, err := NewPipelineTask(task)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	// Pipeline failures are recorded on the job; retries go through the
	// retry endpoint, never through asynq.
	_, err = q.client.EnqueueContext(ctx, t,
		asynq.Queue(QueuePipeline),
		asynq.MaxRetry(0),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// RecordingQueue collects tasks instead of enqueueing them.
type RecordingQueue struct {
	mu    sync.Mutex
	tasks []model.PipelineTask
}

func (q *RecordingQueue) EnqueuePipeline(_ context.Context, task model.PipelineTask) error {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	return nil
}

// Tasks returns the tasks enqueued so far.
func (q *RecordingQueue) Tasks() []model.PipelineTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.PipelineTask, len(q.tasks))
	copy(out, q.tasks)
	return out
}
