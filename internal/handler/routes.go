package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/storyreel/studio/internal/middleware"
)

// Limits are the per-user hourly quotas applied to generation writes.
type Limits struct {
	StartPerHour int
	RetryPerHour int
}

// Routes groups the handlers mounted by the server.
type Routes struct {
	Auth        *middleware.AuthMiddleware
	Gateway     bool                    // trust proxy identity headers instead of tokens
	RateLimiter *middleware.RateLimiter // nil disables rate limiting
	Limits      Limits
	Generations *GenerationHandler
	Workspace   *WorkspaceHandler
	Stream      *StreamHandler // nil disables socket routes
}

// Register mounts every route on app.
func (r Routes) Register(app *fiber.App) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authenticate, authenticateSocket := r.Auth.Authenticate(), r.Auth.AuthenticateQuery()
	if r.Gateway {
		authenticate, authenticateSocket = middleware.Gateway(), middleware.Gateway()
	}

	api := app.Group("/api", authenticate)

	gen := api.Group("/generations")
	gen.Post("/", r.limit("start"), r.Generations.Start)
	gen.Get("/:jobId/status", r.Generations.Status)
	gen.Post("/:jobId/retry", r.limit("retry"), r.Generations.Retry)
	gen.Get("/:jobId/artifacts", r.Generations.Artifacts)

	ws := api.Group("/workspace")
	ws.Post("/watch/:jobId", r.Workspace.Watch)
	ws.Delete("/watch/:jobId", r.Workspace.Unwatch)
	ws.Get("/watch/:jobId", r.Workspace.WatchStatus)
	ws.Get("/view", r.Workspace.View)
	ws.Get("/selection", r.Workspace.Selection)
	ws.Post("/selection/script", r.Workspace.SelectScript)
	ws.Post("/selection/chapter", r.Workspace.SelectChapter)
	ws.Post("/selection/segment", r.Workspace.SelectSegment)
	ws.Post("/selection/recalc", r.Workspace.Recalc)

	if r.Stream != nil {
		app.Use("/ws", r.Stream.RequireUpgrade)
		app.Get("/ws/jobs/:jobId", authenticateSocket, r.Stream.RequireJobOwner, r.Stream.Jobs())
		app.Get("/ws/workspace", authenticateSocket, r.Stream.Workspace())
	}
}

func (r Routes) limit(kind string) fiber.Handler {
	if r.RateLimiter == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if kind == "retry" {
		return r.RateLimiter.RetryLimit(r.Limits.RetryPerHour)
	}
	return r.RateLimiter.StartLimit(r.Limits.StartPerHour)
}
