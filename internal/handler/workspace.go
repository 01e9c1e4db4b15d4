package handler

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/storyreel/studio/internal/dashboard"
	"github.com/storyreel/studio/internal/middleware"
	"github.com/storyreel/studio/internal/model"
	"github.com/storyreel/studio/internal/selection"
	"github.com/storyreel/studio/pkg/response"
)

// JobOwners checks that a user started a job.
type JobOwners interface {
	Authorize(ctx context.Context, jobID, userID string) error
}

type WorkspaceHandler struct {
	workspaces *dashboard.Manager
	owners     JobOwners
	validator  *validator.Validate
}

func NewWorkspaceHandler(workspaces *dashboard.Manager, owners JobOwners, v *validator.Validate) *WorkspaceHandler {
	return &WorkspaceHandler{
		workspaces: workspaces,
		owners:     owners,
		validator:  v,
	}
}

func (h *WorkspaceHandler) workspace(c *fiber.Ctx) (*dashboard.Workspace, error) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		return nil, response.Unauthorized(c, "Missing user")
	}
	ws, err := h.workspaces.Workspace(userID)
	if err != nil {
		return nil, serviceError(c, err)
	}
	return ws, nil
}

// Watch handles POST /api/workspace/watch/:jobId
func (h *WorkspaceHandler) Watch(c *fiber.Ctx) error {
	ws, err := h.workspace(c)
	if ws == nil {
		return err
	}
	jobID := c.Params("jobId")
	if err := h.owners.Authorize(c.UserContext(), jobID, middleware.GetUserID(c)); err != nil {
		return serviceError(c, err)
	}
	if err := ws.Watch(jobID); err != nil {
		return serviceError(c, err)
	}
	return response.Accepted(c, ws.WatchStatus(jobID))
}

// Unwatch handles DELETE /api/workspace/watch/:jobId
func (h *WorkspaceHandler) Unwatch(c *fiber.Ctx) error {
	ws, err := h.workspace(c)
	if ws == nil {
		return err
	}
	ws.Unwatch(c.Params("jobId"))
	return response.NoContent(c)
}

// WatchStatus handles GET /api/workspace/watch/:jobId
func (h *WorkspaceHandler) WatchStatus(c *fiber.Ctx) error {
	ws, err := h.workspace(c)
	if ws == nil {
		return err
	}
	return response.OK(c, ws.WatchStatus(c.Params("jobId")))
}

// View handles GET /api/workspace/view
func (h *WorkspaceHandler) View(c *fiber.Ctx) error {
	ws, err := h.workspace(c)
	if ws == nil {
		return err
	}
	return response.OK(c, ws.State())
}

// Selection handles GET /api/workspace/selection
func (h *WorkspaceHandler) Selection(c *fiber.Ctx) error {
	ws, err := h.workspace(c)
	if ws == nil {
		return err
	}
	return response.OK(c, selectionResponse(ws.Selection(), true))
}

// SelectScript handles POST /api/workspace/selection/script
func (h *WorkspaceHandler) SelectScript(c *fiber.Ctx) error {
	return h.selectWith(c, (*selection.Coordinator).SelectScript)
}

// SelectChapter handles POST /api/workspace/selection/chapter
func (h *WorkspaceHandler) SelectChapter(c *fiber.Ctx) error {
	return h.selectWith(c, (*selection.Coordinator).SelectChapter)
}

// SelectSegment handles POST /api/workspace/selection/segment
func (h *WorkspaceHandler) SelectSegment(c *fiber.Ctx) error {
	return h.selectWith(c, (*selection.Coordinator).SelectSegment)
}

// Recalc handles POST /api/workspace/selection/recalc
func (h *WorkspaceHandler) Recalc(c *fiber.Ctx) error {
	var req model.RecalcRequest
	if len(c.Body()) > 0 {
		if ok, err := parseBody(c, h.validator, &req); !ok {
			return err
		}
	}
	ws, err := h.workspace(c)
	if ws == nil {
		return err
	}
	ws.Selection().RequestTimelineRecalc(req.Reason)
	return response.NoContent(c)
}

func (h *WorkspaceHandler) selectWith(c *fiber.Ctx, sel func(*selection.Coordinator, string, string) bool) error {
	var req model.SelectionRequest
	if ok, err := parseBody(c, h.validator, &req); !ok {
		return err
	}
	ws, err := h.workspace(c)
	if ws == nil {
		return err
	}

	coord := ws.Selection()
	applied := sel(coord, req.ID, req.Reason)
	return response.OK(c, selectionResponse(coord, applied))
}

func selectionResponse(coord *selection.Coordinator, applied bool) model.SelectionResponse {
	snap := coord.Snapshot()
	return model.SelectionResponse{
		Applied:   applied,
		ScriptID:  snap.ScriptID,
		ChapterID: snap.ChapterID,
		SegmentID: snap.SegmentID,
		Version:   snap.Version,
		Switching: coord.IsSwitching(),
	}
}
