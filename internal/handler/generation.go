package handler

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/storyreel/studio/internal/dashboard"
	"github.com/storyreel/studio/internal/middleware"
	"github.com/storyreel/studio/internal/model"
	"github.com/storyreel/studio/internal/service"
	"github.com/storyreel/studio/pkg/response"
)

type GenerationHandler struct {
	generations *service.GenerationService
	artifacts   *service.ArtifactService
	workspaces  *dashboard.Manager
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewGenerationHandler(generations *service.GenerationService, artifacts *service.ArtifactService, workspaces *dashboard.Manager, v *validator.Validate, logger *slog.Logger) *GenerationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationHandler{
		generations: generations,
		artifacts:   artifacts,
		workspaces:  workspaces,
		validator:   v,
		logger:      logger,
	}
}

// Start handles POST /api/generations
func (h *GenerationHandler) Start(c *fiber.Ctx) error {
	var req model.GenerationStartRequest
	if ok, err := parseBody(c, h.validator, &req); !ok {
		return err
	}
	req.OwnerID = middleware.GetUserID(c)

	result, err := h.generations.Start(c.UserContext(), &req)
	if err != nil {
		return serviceError(c, err)
	}

	h.watch(c, result.JobID)
	return response.Accepted(c, result)
}

// Status handles GET /api/generations/:jobId/status
func (h *GenerationHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if err := h.authorize(c, jobID); err != nil {
		return serviceError(c, err)
	}

	rec, err := h.generations.FetchStatus(c.UserContext(), jobID)
	if err != nil {
		return serviceError(c, err)
	}

	return response.OK(c, rec)
}

// Retry handles POST /api/generations/:jobId/retry
func (h *GenerationHandler) Retry(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if err := h.authorize(c, jobID); err != nil {
		return serviceError(c, err)
	}

	var req model.GenerationRetryRequest
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, h.validator, &req); !ok {
			return err
		}
	}

	result, err := h.generations.Retry(c.UserContext(), jobID, &req)
	if err != nil {
		return serviceError(c, err)
	}

	h.watch(c, jobID)
	return response.Accepted(c, result)
}

// Artifacts handles GET /api/generations/:jobId/artifacts
func (h *GenerationHandler) Artifacts(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	if err := h.authorize(c, jobID); err != nil {
		return serviceError(c, err)
	}

	result, err := h.artifacts.Artifacts(c.UserContext(), jobID)
	if err != nil {
		return serviceError(c, err)
	}
	if result.Stage == model.StageFailed {
		return response.JobFailed(c, "Generation failed; retry it before fetching artifacts", result)
	}

	return response.OK(c, result)
}

// authorize answers not found for jobs the caller did not start.
func (h *GenerationHandler) authorize(c *fiber.Ctx, jobID string) error {
	return h.generations.Authorize(c.UserContext(), jobID, middleware.GetUserID(c))
}

// watch points the caller's workspace at jobID. Failures are logged only;
// the generation request itself already succeeded.
func (h *GenerationHandler) watch(c *fiber.Ctx, jobID string) {
	userID := middleware.GetUserID(c)
	if h.workspaces == nil || userID == "" {
		return
	}
	ws, err := h.workspaces.Workspace(userID)
	if err == nil {
		err = ws.Watch(jobID)
	}
	if err != nil {
		h.logger.Warn("failed to watch generation", "user_id", userID, "job_id", jobID, "error", err)
	}
}

func serviceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrNoGeneration):
		return response.NotFound(c, "No generation for script")
	case errors.Is(err, service.ErrJobNotRetryable):
		return response.Conflict(c, err.Error())
	case errors.Is(err, dashboard.ErrManagerClosed):
		return response.Error(c, fiber.StatusServiceUnavailable, response.CodeServiceError, "Shutting down", nil)
	default:
		return response.ServiceError(c, err.Error())
	}
}
