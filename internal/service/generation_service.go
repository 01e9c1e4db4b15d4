package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/storyreel/studio/internal/model"
)

var (
	ErrJobNotFound     = errors.New("job not found")
	ErrJobNotRetryable = errors.New("job not retryable")
	ErrNoGeneration    = errors.New("no generation for script")
)

// GenerationService owns generation jobs: it creates them, serves their
// status and restarts failed ones from a checkpoint.
type GenerationService struct {
	store  JobStore
	queue  TaskQueue
	logger *slog.Logger
	now    func() time.Time
}

func NewGenerationService(store JobStore, queue TaskQueue, logger *slog.Logger) *GenerationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationService{
		store:  store,
		queue:  queue,
		logger: logger,
		now:    time.Now,
	}
}

// Start creates a job for the request and queues the pipeline.
func (s *GenerationService) Start(ctx context.Context, req *model.GenerationStartRequest) (*model.GenerationStartResponse, error) {
	jobID := uuid.New().String()

	payload := model.PipelineJobPayload{
		OwnerID:     req.OwnerID,
		ScriptID:    req.ScriptID,
		ChapterID:   req.ChapterID,
		Title:       req.Title,
		SceneCount:  req.SceneCount,
		LipSync:     req.LipSync,
		FailAt:      req.FailAt,
		FailMessage: req.FailMessage,
	}
	job := &model.Job{
		Record:  model.NewGenerationRecord(jobID, payload, s.now().UTC()),
		Payload: payload,
	}

	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	if err := s.store.SetScriptJob(ctx, scriptIndexID(req.OwnerID, req.ScriptID), jobID); err != nil {
		return nil, fmt.Errorf("failed to index script: %w", err)
	}
	if err := s.queue.EnqueuePipeline(ctx, model.PipelineTask{JobID: jobID, FromStage: model.StageGeneratingAudio}); err != nil {
		return nil, err
	}

	s.logger.Info("generation queued", "job_id", jobID, "script_id", req.ScriptID, "scenes", req.SceneCount)

	return &model.GenerationStartResponse{JobID: jobID, Record: job.Record}, nil
}

// FetchStatus returns the current record of a job.
func (s *GenerationService) FetchStatus(ctx context.Context, jobID string) (*model.GenerationRecord, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &job.Record, nil
}

// GetJob returns the full job including its payload.
func (s *GenerationService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// Authorize returns ErrJobNotFound unless userID started jobID, so other
// users' job ids are indistinguishable from missing ones.
func (s *GenerationService) Authorize(ctx context.Context, jobID, userID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Payload.OwnerID != userID {
		s.logger.Warn("job access denied", "job_id", jobID, "user_id", userID)
		return ErrJobNotFound
	}
	return nil
}

// LookupScriptJob returns the latest job userID started for a script.
func (s *GenerationService) LookupScriptJob(ctx context.Context, userID, scriptID string) (string, error) {
	return s.store.GetScriptJob(ctx, scriptIndexID(userID, scriptID))
}

// scriptIndexID scopes the script index to the job owner.
func scriptIndexID(ownerID, scriptID string) string {
	if ownerID == "" {
		return scriptID
	}
	return ownerID + "/" + scriptID
}

// UpdateJob applies mutate to the stored job and saves it.
func (s *GenerationService) UpdateJob(ctx context.Context, jobID string, mutate func(job *model.Job)) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	mutate(job)
	job.Record.UpdatedAt = s.now().UTC()
	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	return job, nil
}

// Retry restarts a failed job. Without a target stage the pipeline resumes
// after the last checkpoint.
func (s *GenerationService) Retry(ctx context.Context, jobID string, req *model.GenerationRetryRequest) (*model.GenerationRetryResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if !model.IsFailure(job.Record.Stage) {
		return nil, fmt.Errorf("%w: stage is %s", ErrJobNotRetryable, job.Record.Stage)
	}

	from := model.ResumeStage(job.Record.Checkpoint)
	if req != nil && req.TargetStage != "" {
		from = req.TargetStage
	}
	if !model.IsRestartable(from) {
		return nil, fmt.Errorf("%w: cannot resume at %s", ErrJobNotRetryable, from)
	}
	if from == model.StageApplyingLipSync && !job.Payload.LipSync {
		return nil, fmt.Errorf("%w: lip-sync was not requested", ErrJobNotRetryable)
	}

	job.RetryCount++
	job.Record.Stage = from
	job.Record.ErrorMessage = nil
	job.Record.UpdatedAt = s.now().UTC()
	// Injected failures fire once.
	job.Payload.FailAt = ""
	job.Payload.FailMessage = ""

	if err := s.store.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	if err := s.queue.EnqueuePipeline(ctx, model.PipelineTask{JobID: jobID, FromStage: from}); err != nil {
		return nil, err
	}

	s.logger.Info("generation retry queued", "job_id", jobID, "from_stage", from, "retry_count", job.RetryCount)

	return &model.GenerationRetryResponse{
		JobID:      jobID,
		FromStage:  from,
		RetryCount: job.RetryCount,
	}, nil
}
