package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/store"
	"github.com/trangnv/homechat/pkg/errcode"
)

// exportTimeLayout renders message timestamps in audit exports
const exportTimeLayout = "02/01/2006 15:04"

// ModerationService is the read-only moderation surface over all
// conversations. It aggregates with elevated query scope and never sends:
// moderation is observe-only, which rules out impersonation.
type ModerationService struct {
	st store.Store
}

// NewModerationService creates a new ModerationService
func NewModerationService(st store.Store) *ModerationService {
	return &ModerationService{st: st}
}

// ListAll returns every conversation matching the filter, augmented with
// participant profiles, message count, and last message preview
func (s *ModerationService) ListAll(ctx context.Context, filter store.ConversationFilter) ([]*entity.ConversationDetail, error) {
	convs, err := s.st.ListAllConversations(ctx, filter)
	if err != nil {
		log.CtxError(ctx, "list all conversations failed: %v", err)
		return nil, errcode.ErrLoadFailed.Wrap(err)
	}

	details := make([]*entity.ConversationDetail, 0, len(convs))
	for _, conv := range convs {
		detail := &entity.ConversationDetail{Conversation: *conv}

		// Prefer the second participant for display, falling back to the
		// first for system/AI conversations
		displayId := conv.Participant2
		if displayId == "" {
			displayId = conv.Participant1
		}
		if displayId != "" {
			if p, err := s.st.GetProfile(ctx, displayId); err == nil {
				detail.OtherUser = p
			}
		}

		count, err := s.st.CountMessages(ctx, conv.Id)
		if err == nil {
			detail.MessageCount = count
		}
		last, err := s.st.LastMessage(ctx, conv.Id)
		if err == nil && last != nil {
			detail.LastMessage = last.Content
		}

		details = append(details, detail)
	}

	return details, nil
}

// Messages returns a conversation's full history with sender display info.
// Unlike the participant path this never marks anything read: inspection
// must not disturb read receipts.
func (s *ModerationService) Messages(ctx context.Context, conversationId string) ([]*entity.Message, error) {
	msgs, err := s.st.ListMessages(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "list messages failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrLoadFailed.Wrap(err)
	}
	attachSenders(ctx, s.st, msgs)
	for _, msg := range msgs {
		msg.Status = entity.StatusSent
	}
	return msgs, nil
}

// Flag marks a conversation for review, recording reason, actor and time
func (s *ModerationService) Flag(ctx context.Context, adminId, conversationId, reason string) error {
	conv, err := s.st.GetConversation(ctx, conversationId)
	if err != nil {
		return errcode.ErrInternalServer.Wrap(err)
	}
	if conv == nil {
		return errcode.ErrConvNotFound
	}

	err = s.st.SetConversationFlag(ctx, conversationId, entity.ConversationFlag{
		Flagged:   true,
		Reason:    reason,
		FlaggedBy: adminId,
		FlaggedAt: entity.NowUnixMilli(),
	})
	if err != nil {
		log.CtxError(ctx, "flag conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return errcode.ErrInternalServer.Wrap(err)
	}
	log.CtxInfo(ctx, "conversation flagged: conversation_id=%s, admin_id=%s", conversationId, adminId)
	return nil
}

// Unflag clears a conversation's moderation flag and its reason/actor/time
func (s *ModerationService) Unflag(ctx context.Context, adminId, conversationId string) error {
	conv, err := s.st.GetConversation(ctx, conversationId)
	if err != nil {
		return errcode.ErrInternalServer.Wrap(err)
	}
	if conv == nil {
		return errcode.ErrConvNotFound
	}

	if err := s.st.SetConversationFlag(ctx, conversationId, entity.ConversationFlag{Flagged: false}); err != nil {
		log.CtxError(ctx, "unflag conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return errcode.ErrInternalServer.Wrap(err)
	}
	log.CtxInfo(ctx, "conversation unflagged: conversation_id=%s, admin_id=%s", conversationId, adminId)
	return nil
}

// Export serializes a conversation's message sequence into a flat text
// artifact for offline audit, one line per message:
//
//	[02/01/2026 15:04] Nguyen Van A: message content
func (s *ModerationService) Export(ctx context.Context, conversationId string) (string, error) {
	msgs, err := s.Messages(ctx, conversationId)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		ts := time.UnixMilli(msg.CreatedAt).Format(exportTimeLayout)
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", ts, msg.SenderName(), msg.Content))
	}
	return strings.Join(lines, "\n"), nil
}

// Stats returns system-wide counters for the moderation dashboard
func (s *ModerationService) Stats(ctx context.Context) (*entity.ChatStats, error) {
	stats, err := s.st.Stats(ctx)
	if err != nil {
		log.CtxError(ctx, "load chat stats failed: %v", err)
		return nil, errcode.ErrLoadFailed.Wrap(err)
	}
	return stats, nil
}
