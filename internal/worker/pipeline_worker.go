package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/storyreel/studio/internal/model"
	"github.com/storyreel/studio/internal/service"
	"github.com/storyreel/studio/internal/status"
	ws "github.com/storyreel/studio/internal/websocket"
)

const defaultFailMessage = "generation_failed: upstream model overloaded"

// StageBroadcaster pushes every stored record to live subscribers.
type StageBroadcaster interface {
	BroadcastStage(jobID string, progress int, rec model.GenerationRecord)
	BroadcastError(topic, jobID, code, message string)
}

// Uploader stores the final manifest of a generation.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
}

// PipelineWorker drives a generation through its stages. Each stage write is
// stored and broadcast, so pollers and socket subscribers see the same
// sequence a remote pipeline would produce.
type PipelineWorker struct {
	generations *service.GenerationService
	hub         StageBroadcaster
	uploader    Uploader
	stepDelay   time.Duration
	logger      *slog.Logger
}

// NewPipelineWorker creates a new pipeline worker. uploader may be nil.
func NewPipelineWorker(generations *service.GenerationService, hub StageBroadcaster, uploader Uploader, stepDelay time.Duration, logger *slog.Logger) *PipelineWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineWorker{
		generations: generations,
		hub:         hub,
		uploader:    uploader,
		stepDelay:   stepDelay,
		logger:      logger,
	}
}

type phase struct {
	stage      model.Stage
	checkpoint model.Stage
	scenes     bool
}

var (
	audioPhase   = phase{stage: model.StageGeneratingAudio, checkpoint: model.StageAudioCompleted}
	imagesPhase  = phase{stage: model.StageGeneratingImages, checkpoint: model.StageImagesCompleted, scenes: true}
	videoPhase   = phase{stage: model.StageGeneratingVideo, checkpoint: model.StageVideoCompleted, scenes: true}
	mergePhase   = phase{stage: model.StageMergingAudio}
	lipSyncPhase = phase{stage: model.StageApplyingLipSync, checkpoint: model.StageLipSyncCompleted, scenes: true}
)

func phasesFor(payload model.PipelineJobPayload) []phase {
	phases := []phase{audioPhase, imagesPhase, videoPhase, mergePhase}
	if payload.LipSync {
		phases = append(phases, lipSyncPhase)
	}
	return phases
}

// ProcessTask handles pipeline task processing
func (w *PipelineWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task model.PipelineTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	job, err := w.generations.GetJob(ctx, task.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", task.JobID, err)
	}

	phases := phasesFor(job.Payload)
	start := -1
	for i, p := range phases {
		if p.stage == task.FromStage {
			start = i
			break
		}
	}
	if start < 0 {
		return fmt.Errorf("job %s cannot start at %q", task.JobID, task.FromStage)
	}

	logger := w.logger.With("job_id", task.JobID)
	logger.Info("pipeline started", "from_stage", task.FromStage, "scenes", job.Payload.SceneCount, "lip_sync", job.Payload.LipSync)

	for _, p := range phases[start:] {
		failed, err := w.runPhase(ctx, job.Record.ID, job.Payload, p)
		if err != nil {
			return err
		}
		if failed {
			logger.Warn("pipeline stage failed", "stage", p.stage)
			return nil
		}
	}

	final, err := w.update(ctx, job.Record.ID, func(rec *model.GenerationRecord) {
		rec.Stage = model.StageCompleted
	})
	if err != nil {
		return err
	}
	w.uploadManifest(ctx, final)

	logger.Info("pipeline completed")
	return nil
}

// runPhase executes one stage. It reports true when the stage failed and
// the failure was recorded on the job.
func (w *PipelineWorker) runPhase(ctx context.Context, jobID string, payload model.PipelineJobPayload, p phase) (bool, error) {
	total := payload.SceneCount
	if total < 1 {
		total = 1
	}

	if _, err := w.update(ctx, jobID, func(rec *model.GenerationRecord) {
		rec.Stage = p.stage
		rec.ErrorMessage = nil
		setProgress(rec, p.stage, 0, total)
		if p.stage == model.StageGeneratingVideo && rec.Artifacts != nil {
			rec.Artifacts.SceneVideos = nil
		}
	}); err != nil {
		return false, err
	}

	failAfter := -1
	if payload.FailAt == p.stage {
		failAfter = 0
		if p.scenes {
			failAfter = total / 2
		}
	}

	steps := 1
	if p.scenes {
		steps = total
	}
	for i := 1; i <= steps; i++ {
		if i-1 == failAfter {
			return true, w.fail(ctx, jobID, p, payload.FailMessage)
		}
		if err := w.sleep(ctx); err != nil {
			return false, err
		}
		if !p.scenes {
			continue
		}
		if _, err := w.update(ctx, jobID, func(rec *model.GenerationRecord) {
			setProgress(rec, p.stage, i, total)
			if p.stage == model.StageGeneratingVideo {
				addSceneVideo(rec, i)
			}
		}); err != nil {
			return false, err
		}
	}

	_, err := w.update(ctx, jobID, func(rec *model.GenerationRecord) {
		completePhase(rec, p, total)
	})
	return false, err
}

func (w *PipelineWorker) fail(ctx context.Context, jobID string, p phase, message string) error {
	if message == "" {
		message = defaultFailMessage
	}
	_, err := w.update(ctx, jobID, func(rec *model.GenerationRecord) {
		rec.ErrorMessage = &message
		if p.stage == model.StageApplyingLipSync {
			rec.Stage = model.StageLipSyncFailed
			rec.Checkpoint = model.StageLipSyncFailed
			return
		}
		rec.Stage = model.StageFailed
	})
	if err != nil {
		return err
	}
	w.hub.BroadcastError(ws.JobTopic(jobID), jobID, "JOB_FAILED", message)
	return nil
}

func (w *PipelineWorker) update(ctx context.Context, jobID string, mutate func(rec *model.GenerationRecord)) (*model.GenerationRecord, error) {
	job, err := w.generations.UpdateJob(ctx, jobID, func(job *model.Job) {
		mutate(&job.Record)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update job %s: %w", jobID, err)
	}

	progress := status.ComputeOverallProgress(&job.Record)
	w.hub.BroadcastStage(jobID, progress, job.Record)
	w.logger.Debug("stage written", "job_id", jobID, "stage", job.Record.Stage, "progress", progress)
	return &job.Record, nil
}

func (w *PipelineWorker) sleep(ctx context.Context) error {
	if w.stepDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(w.stepDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (w *PipelineWorker) uploadManifest(ctx context.Context, rec *model.GenerationRecord) {
	if w.uploader == nil {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		w.logger.Warn("failed to marshal manifest", "job_id", rec.ID, "error", err)
		return
	}
	if _, err := w.uploader.Upload(ctx, artifactKey(rec.ID, "manifest.json"), bytes.NewReader(data), "application/json"); err != nil {
		w.logger.Warn("failed to upload manifest", "job_id", rec.ID, "error", err)
	}
}

func artifactKey(jobID, name string) string {
	return fmt.Sprintf("generations/%s/%s", jobID, name)
}

func counters(done, total int) model.SceneCounters {
	return model.SceneCounters{
		ScenesCompleted: done,
		TotalScenes:     total,
		SuccessRate:     float64(done) * 100 / float64(total),
	}
}

func setProgress(rec *model.GenerationRecord, stage model.Stage, done, total int) {
	msg := fmt.Sprintf("Scene %d of %d", done, total)
	p := &rec.PerStageProgress
	switch stage {
	case model.StageGeneratingAudio:
		p.Audio = &model.AudioProgress{Message: "Synthesizing narration"}
	case model.StageGeneratingImages:
		p.Image = &model.ImageProgress{SceneCounters: counters(done, total), Message: msg}
	case model.StageGeneratingVideo:
		p.Video = &model.VideoProgress{SceneCounters: counters(done, total), Message: msg}
	case model.StageMergingAudio:
		p.Merge = &model.MergeProgress{Message: "Merging narration with video"}
	case model.StageApplyingLipSync:
		p.LipSync = &model.LipSyncProgress{SceneCounters: counters(done, total), Message: msg}
	}
}

func addSceneVideo(rec *model.GenerationRecord, scene int) {
	if rec.Artifacts == nil {
		rec.Artifacts = &model.Artifacts{}
	}
	rec.Artifacts.SceneVideos = append(rec.Artifacts.SceneVideos, model.SceneVideo{
		SceneIndex: scene,
		URL:        artifactKey(rec.ID, fmt.Sprintf("scene-%02d.mp4", scene)),
	})
}

func completePhase(rec *model.GenerationRecord, p phase, total int) {
	if rec.Artifacts == nil {
		rec.Artifacts = &model.Artifacts{}
	}
	switch p.stage {
	case model.StageGeneratingAudio:
		rec.PerStageProgress.Audio = &model.AudioProgress{DurationSeconds: float64(total * 8), Message: "Narration ready"}
		rec.Artifacts.AudioURL = artifactKey(rec.ID, "narration.mp3")
	case model.StageMergingAudio:
		rec.Artifacts.FinalVideoURL = artifactKey(rec.ID, "final.mp4")
	case model.StageApplyingLipSync:
		rec.Artifacts.LipSyncVideoURL = artifactKey(rec.ID, "final-lipsync.mp4")
	}

	if p.checkpoint != "" {
		rec.Stage = p.checkpoint
		rec.Checkpoint = p.checkpoint
	}
}
