package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/campus-connect-api/internal/config"
	"github.com/noah-isme/campus-connect-api/internal/deeplink"
	"github.com/noah-isme/campus-connect-api/internal/handler"
	"github.com/noah-isme/campus-connect-api/internal/middleware"
	"github.com/noah-isme/campus-connect-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	UserHandler         *handler.UserHandler
	ChatHandler         *handler.ChatHandler
	GroupHandler        *handler.GroupHandler
	PushHandler         *handler.PushHandler
	PostHandler         *handler.PostHandler
	NotificationHandler *handler.NotificationHandler
	SmartServiceHandler *handler.SmartServiceHandler
	DeepLinks           *deeplink.Resolver
	HealthProbes        map[string]handler.HealthProbe
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	if deps.DeepLinks != nil {
		api.Get("/deeplinks/resolve", handler.ResolveDeepLink(deps.DeepLinks))
	}

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.UserHandler != nil {
		deps.UserHandler.RegisterSession(api.Group("/session", jwtMiddleware))
		deps.UserHandler.Register(api.Group("/users", jwtMiddleware))
	}

	if deps.ChatHandler != nil {
		chats := api.Group("/chats", jwtMiddleware, middleware.RateLimit("chats", 30, time.Second))
		deps.ChatHandler.Register(chats)
	}

	if deps.GroupHandler != nil {
		deps.GroupHandler.Register(api.Group("/groups", jwtMiddleware))
		deps.GroupHandler.RegisterAdmin(api.Group("/admin/groups", jwtMiddleware, middleware.RequireRole("admin")))
	}

	if deps.PushHandler != nil {
		deps.PushHandler.Register(api.Group("/push", jwtMiddleware))
	}

	if deps.PostHandler != nil {
		posts := api.Group("/posts", jwtMiddleware, middleware.RateLimit("posts", 20, time.Second))
		deps.PostHandler.Register(posts)
		deps.PostHandler.RegisterComments(api.Group("/comments", jwtMiddleware))
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", jwtMiddleware))
	}

	if deps.SmartServiceHandler != nil {
		smart := api.Group("/smart-service", jwtMiddleware, middleware.RateLimit("smart_service", 5, time.Minute))
		deps.SmartServiceHandler.Register(smart)
	}
}
