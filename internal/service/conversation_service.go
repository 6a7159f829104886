// Package service provides the business logic above the store contracts:
// conversation resolution, list aggregation, and moderation.
package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"
	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/store"
	"github.com/trangnv/homechat/pkg/errcode"
)

// ConversationService resolves and aggregates conversations for a user
type ConversationService struct {
	st store.Store
}

// NewConversationService creates a new ConversationService
func NewConversationService(st store.Store) *ConversationService {
	return &ConversationService{st: st}
}

// GetOrCreate finds the user-kind conversation between two participants,
// optionally scoped by a property, creating it on first contact. Idempotent
// from the caller's perspective: both participants converge on one
// conversation regardless of call order. A concurrent first-contact race is
// resolved by re-running the find when the store reports a duplicate pair.
func (s *ConversationService) GetOrCreate(ctx context.Context, selfId, otherId, propertyId string) (*entity.Conversation, error) {
	if selfId == "" || otherId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if selfId == otherId {
		return nil, errcode.ErrSelfConversation
	}

	existing, err := s.st.FindConversation(ctx, selfId, otherId, propertyId)
	if err != nil {
		log.CtxError(ctx, "find conversation failed: self=%s, other=%s, error=%v", selfId, otherId, err)
		return nil, errcode.ErrConvCreateFailed.Wrap(err)
	}
	if existing != nil {
		return existing, nil
	}

	conv, err := s.st.CreateConversation(ctx, &entity.Conversation{
		Participant1: selfId,
		Participant2: otherId,
		PropertyId:   propertyId,
		Kind:         entity.ConvKindUser,
	})
	if err == nil {
		log.CtxInfo(ctx, "conversation created: id=%s, self=%s, other=%s, property=%s", conv.Id, selfId, otherId, propertyId)
		return conv, nil
	}

	if errors.Is(err, store.ErrDuplicatePair) {
		// Lost the first-contact race; the other participant's row wins
		existing, findErr := s.st.FindConversation(ctx, selfId, otherId, propertyId)
		if findErr == nil && existing != nil {
			return existing, nil
		}
	}

	log.CtxError(ctx, "create conversation failed: self=%s, other=%s, error=%v", selfId, otherId, err)
	return nil, errcode.ErrConvCreateFailed.Wrap(err)
}

// ListForUser returns a user's conversations ordered by last activity, each
// augmented with the other participant's profile, a last message preview,
// and the unread count
func (s *ConversationService) ListForUser(ctx context.Context, userId string) ([]*entity.ConversationDetail, error) {
	convs, err := s.st.ListConversations(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "list conversations failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrLoadFailed.Wrap(err)
	}

	details := make([]*entity.ConversationDetail, 0, len(convs))
	for _, conv := range convs {
		detail := &entity.ConversationDetail{Conversation: *conv}

		if otherId := conv.OtherParticipant(userId); otherId != "" {
			other, err := s.st.GetProfile(ctx, otherId)
			if err != nil {
				log.CtxWarn(ctx, "load profile failed: user_id=%s, error=%v", otherId, err)
			} else {
				detail.OtherUser = other
			}
		}

		last, err := s.st.LastMessage(ctx, conv.Id)
		if err == nil && last != nil {
			detail.LastMessage = last.Content
		}

		unread, err := s.st.UnreadCount(ctx, conv.Id, userId)
		if err != nil {
			log.CtxWarn(ctx, "unread count failed: conversation_id=%s, error=%v", conv.Id, err)
		} else {
			detail.UnreadCount = unread
		}

		details = append(details, detail)
	}

	return details, nil
}

// GetForUser returns one conversation after verifying membership
func (s *ConversationService) GetForUser(ctx context.Context, userId, conversationId string) (*entity.Conversation, error) {
	conv, err := s.st.GetConversation(ctx, conversationId)
	if err != nil {
		return nil, errcode.ErrLoadFailed.Wrap(err)
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}
	if !conv.HasParticipant(userId) {
		return nil, errcode.ErrNotParticipant
	}
	return conv, nil
}

// Messages returns a conversation's history with sender display info and
// marks the other side's messages read (opening the history consumes it)
func (s *ConversationService) Messages(ctx context.Context, userId, conversationId string) ([]*entity.Message, error) {
	if _, err := s.GetForUser(ctx, userId, conversationId); err != nil {
		return nil, err
	}

	msgs, err := s.st.ListMessages(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "list messages failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrLoadFailed.Wrap(err)
	}

	attachSenders(ctx, s.st, msgs)

	if err := s.st.MarkConversationRead(ctx, conversationId, userId); err != nil {
		log.CtxWarn(ctx, "mark conversation read failed: conversation_id=%s, error=%v", conversationId, err)
	}
	for _, msg := range msgs {
		msg.Status = entity.StatusSent
		if msg.SenderId != userId {
			msg.IsRead = true
		}
	}

	return msgs, nil
}

// MarkRead marks all messages from the other side read
func (s *ConversationService) MarkRead(ctx context.Context, userId, conversationId string) error {
	if _, err := s.GetForUser(ctx, userId, conversationId); err != nil {
		return err
	}
	if err := s.st.MarkConversationRead(ctx, conversationId, userId); err != nil {
		log.CtxError(ctx, "mark conversation read failed: conversation_id=%s, error=%v", conversationId, err)
		return errcode.ErrInternalServer.Wrap(err)
	}
	return nil
}

// UnreadCount returns the number of unread messages from the other side
func (s *ConversationService) UnreadCount(ctx context.Context, userId, conversationId string) (int64, error) {
	if _, err := s.GetForUser(ctx, userId, conversationId); err != nil {
		return 0, err
	}
	count, err := s.st.UnreadCount(ctx, conversationId, userId)
	if err != nil {
		return 0, errcode.ErrLoadFailed.Wrap(err)
	}
	return count, nil
}

// attachSenders joins sender profiles onto messages in one batched lookup
func attachSenders(ctx context.Context, st store.Store, msgs []*entity.Message) {
	senderIds := make([]string, 0, len(msgs))
	seen := make(map[string]bool)
	for _, msg := range msgs {
		if msg.SenderId != "" && !seen[msg.SenderId] {
			seen[msg.SenderId] = true
			senderIds = append(senderIds, msg.SenderId)
		}
	}
	if len(senderIds) == 0 {
		return
	}
	profiles, err := st.GetProfiles(ctx, senderIds)
	if err != nil {
		log.CtxWarn(ctx, "load sender profiles failed: %v", err)
		return
	}
	for _, msg := range msgs {
		if msg.SenderId != "" {
			msg.Sender = profiles[msg.SenderId]
		}
	}
}
