package router

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"
	"github.com/trangnv/homechat/internal/config"
	"github.com/trangnv/homechat/internal/gateway"
	"github.com/trangnv/homechat/internal/handler"
	"github.com/trangnv/homechat/internal/middleware"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Conversation *handler.ConversationHandler
	Moderation   *handler.ModerationHandler
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, handlers *Handlers, wsServer *gateway.WsServer) {
	cfg := config.GlobalConfig

	// CORS middleware
	h.Use(middleware.CORS())

	// Health check
	h.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusOK, map[string]string{"status": "ok"})
	})

	// Conversation routes (auth required)
	convGroup := h.Group("/conversation", middleware.JWTAuth())
	{
		convGroup.GET("/list", handlers.Conversation.List)
		convGroup.POST("/get_or_create", handlers.Conversation.GetOrCreate)
		convGroup.GET("/messages", handlers.Conversation.Messages)
		convGroup.POST("/mark_read", handlers.Conversation.MarkRead)
		convGroup.GET("/unread_count", handlers.Conversation.UnreadCount)
	}

	// Moderation routes (admin token required)
	adminGroup := h.Group("/admin/chat", middleware.JWTAuth(), middleware.AdminOnly())
	{
		adminGroup.GET("/conversations", handlers.Moderation.List)
		adminGroup.GET("/messages", handlers.Moderation.Messages)
		adminGroup.POST("/flag", handlers.Moderation.Flag)
		adminGroup.POST("/unflag", handlers.Moderation.Unflag)
		adminGroup.GET("/export", handlers.Moderation.Export)
		adminGroup.GET("/stats", handlers.Moderation.Stats)
	}

	// WebSocket route using hertz-contrib/websocket with proper origin validation
	allowedOrigins := cfg.Server.AllowedOrigins
	upgrader := &websocket.HertzUpgrader{
		CheckOrigin: func(ctx *app.RequestContext) bool {
			return checkOrigin(ctx, allowedOrigins)
		},
	}

	h.GET("/ws", func(ctx context.Context, c *app.RequestContext) {
		wsServer.HandleHertzConnection(ctx, c, upgrader)
	})
}

// checkOrigin validates the Origin header against allowed origins
func checkOrigin(ctx *app.RequestContext, allowedOrigins []string) bool {
	origin := string(ctx.Request.Header.Peek("Origin"))

	// If no origin header, allow (same-origin request or non-browser client)
	if origin == "" {
		return true
	}

	// If no allowed origins configured, reject all cross-origin requests in production
	if len(allowedOrigins) == 0 {
		return false
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			// Wildcard - allow all (only use in development!)
			return true
		}
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}

	return false
}
