package handler

import (
	"context"
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/trangnv/homechat/internal/middleware"
	"github.com/trangnv/homechat/internal/service"
	"github.com/trangnv/homechat/internal/store"
	"github.com/trangnv/homechat/pkg/errcode"
	"github.com/trangnv/homechat/pkg/response"
)

// ModerationHandler handles admin moderation requests. All routes sit
// behind the AdminOnly middleware.
type ModerationHandler struct {
	modService *service.ModerationService
}

// NewModerationHandler creates a new ModerationHandler
func NewModerationHandler(modService *service.ModerationService) *ModerationHandler {
	return &ModerationHandler{modService: modService}
}

// List lists all conversations with aggregates for the moderation view
func (h *ModerationHandler) List(ctx context.Context, c *app.RequestContext) {
	filter := store.ConversationFilter{}
	filter.FlaggedOnly, _ = strconv.ParseBool(c.Query("flagged_only"))
	filter.CreatedFrom, _ = strconv.ParseInt(c.Query("created_from"), 10, 64)
	filter.CreatedTo, _ = strconv.ParseInt(c.Query("created_to"), 10, 64)

	details, err := h.modService.ListAll(ctx, filter)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"conversations": details,
	})
}

// Messages loads a conversation's history without touching read state
func (h *ModerationHandler) Messages(ctx context.Context, c *app.RequestContext) {
	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	messages, err := h.modService.Messages(ctx, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"messages": messages,
	})
}

// FlagRequest represents a flag request
type FlagRequest struct {
	ConversationId string `json:"conversation_id"`
	Reason         string `json:"reason"`
}

// Flag flags a conversation for review
func (h *ModerationHandler) Flag(ctx context.Context, c *app.RequestContext) {
	adminId := middleware.GetUserId(c)

	var req FlagRequest
	if err := c.BindAndValidate(&req); err != nil || req.ConversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.modService.Flag(ctx, adminId, req.ConversationId, req.Reason); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// UnflagRequest represents an unflag request
type UnflagRequest struct {
	ConversationId string `json:"conversation_id"`
}

// Unflag clears a conversation's moderation flag
func (h *ModerationHandler) Unflag(ctx context.Context, c *app.RequestContext) {
	adminId := middleware.GetUserId(c)

	var req UnflagRequest
	if err := c.BindAndValidate(&req); err != nil || req.ConversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	if err := h.modService.Unflag(ctx, adminId, req.ConversationId); err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, nil)
}

// Export returns a conversation transcript as plain text
func (h *ModerationHandler) Export(ctx context.Context, c *app.RequestContext) {
	conversationId := c.Query("conversation_id")
	if conversationId == "" {
		response.ErrorWithCode(ctx, c, errcode.ErrInvalidParam)
		return
	}

	transcript, err := h.modService.Export(ctx, conversationId)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, map[string]interface{}{
		"transcript": transcript,
	})
}

// Stats returns system-wide messaging counters
func (h *ModerationHandler) Stats(ctx context.Context, c *app.RequestContext) {
	stats, err := h.modService.Stats(ctx)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, stats)
}
