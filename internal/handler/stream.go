package handler

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/storyreel/studio/internal/dashboard"
	"github.com/storyreel/studio/internal/middleware"
	ws "github.com/storyreel/studio/internal/websocket"
)

type StreamHandler struct {
	hub        *ws.Hub
	workspaces *dashboard.Manager
	owners     JobOwners
}

func NewStreamHandler(hub *ws.Hub, workspaces *dashboard.Manager, owners JobOwners) *StreamHandler {
	return &StreamHandler{hub: hub, workspaces: workspaces, owners: owners}
}

// RequireUpgrade rejects plain HTTP requests on socket routes
func (h *StreamHandler) RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// RequireJobOwner rejects job streams of jobs the caller did not start. It
// expects AuthenticateQuery to have run.
func (h *StreamHandler) RequireJobOwner(c *fiber.Ctx) error {
	if err := h.owners.Authorize(c.UserContext(), c.Params("jobId"), middleware.GetUserID(c)); err != nil {
		return serviceError(c, err)
	}
	return c.Next()
}

// Jobs handles /ws/jobs/:jobId, streaming every stage write of one job
func (h *StreamHandler) Jobs() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		h.hub.HandleConnection(c, ws.JobTopic(c.Params("jobId")))
	})
}

// Workspace handles /ws/workspace, streaming the caller's workspace view.
// It expects AuthenticateQuery to have run.
func (h *StreamHandler) Workspace() fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("userId").(string)
		if userID == "" {
			return
		}
		// Ensure the workspace exists so selection changes are pushed.
		if _, err := h.workspaces.Workspace(userID); err != nil {
			return
		}
		h.hub.HandleConnection(c, ws.WorkspaceTopic(userID))
	})
}
