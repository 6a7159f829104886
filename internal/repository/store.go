package repository

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/store"
)

// SQLStore composes the repositories and the redis feed into the store
// contracts. Message inserts are durable first, then published; a failed
// publish never fails the insert because subscribers reconcile against
// the table on their next load.
type SQLStore struct {
	repos *Repositories
	feed  *RedisFeed
}

var (
	_ store.Store = (*SQLStore)(nil)
	_ store.Feed  = (*SQLStore)(nil)
)

// NewSQLStore creates a new SQLStore
func NewSQLStore(repos *Repositories, keyPrefix string) *SQLStore {
	return &SQLStore{
		repos: repos,
		feed:  NewRedisFeed(repos.Redis, keyPrefix),
	}
}

// FindConversation finds the user-kind conversation for a pair, nil when
// absent
func (s *SQLStore) FindConversation(ctx context.Context, userA, userB, propertyId string) (*entity.Conversation, error) {
	return s.repos.Conversation.FindByPair(ctx, userA, userB, propertyId)
}

// CreateConversation creates a conversation, filling id and pair key
func (s *SQLStore) CreateConversation(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, error) {
	if conv.Id == "" {
		id, err := s.repos.Gen.NextID()
		if err != nil {
			return nil, err
		}
		conv.Id = id
	}
	if conv.PairKey == "" && conv.Kind == entity.ConvKindUser {
		conv.PairKey = entity.PairKey(conv.Participant1, conv.Participant2, conv.PropertyId)
	}
	if err := s.repos.Conversation.Create(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation gets a conversation by id
func (s *SQLStore) GetConversation(ctx context.Context, id string) (*entity.Conversation, error) {
	return s.repos.Conversation.GetById(ctx, id)
}

// ListConversations lists a user's conversations
func (s *SQLStore) ListConversations(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	return s.repos.Conversation.ListByUser(ctx, userId)
}

// ListAllConversations lists conversations for the moderation view
func (s *SQLStore) ListAllConversations(ctx context.Context, filter store.ConversationFilter) ([]*entity.Conversation, error) {
	return s.repos.Conversation.ListAll(ctx, filter)
}

// TouchConversation bumps a conversation's last activity time
func (s *SQLStore) TouchConversation(ctx context.Context, id string, lastMessageAt int64) error {
	return s.repos.Conversation.Touch(ctx, id, lastMessageAt)
}

// SetConversationFlag records or clears a moderation flag
func (s *SQLStore) SetConversationFlag(ctx context.Context, id string, flag entity.ConversationFlag) error {
	return s.repos.Conversation.SetFlag(ctx, id, flag)
}

// InsertMessage persists a message and publishes it to the conversation's
// insert feed
func (s *SQLStore) InsertMessage(ctx context.Context, msg *entity.Message) (*entity.Message, error) {
	stored := msg.Clone()
	stored.Status = ""
	stored.Sender = nil
	if stored.Id == "" {
		id, err := s.repos.Gen.NextID()
		if err != nil {
			return nil, err
		}
		stored.Id = id
	}
	stored.CreatedAt = entity.NowUnixMilli()

	if err := s.repos.Message.Create(ctx, stored); err != nil {
		return nil, err
	}

	if err := s.feed.PublishInsert(ctx, stored); err != nil {
		log.CtxWarn(ctx, "publish insert for msg %s failed: %v", stored.Id, err)
	}
	return stored, nil
}

// GetMessage gets a message by id
func (s *SQLStore) GetMessage(ctx context.Context, id string) (*entity.Message, error) {
	return s.repos.Message.GetById(ctx, id)
}

// ListMessages lists all messages of a conversation, oldest first
func (s *SQLStore) ListMessages(ctx context.Context, conversationId string) ([]*entity.Message, error) {
	return s.repos.Message.ListByConversation(ctx, conversationId)
}

// MarkMessageRead marks one message as read
func (s *SQLStore) MarkMessageRead(ctx context.Context, id string) error {
	return s.repos.Message.MarkRead(ctx, id)
}

// MarkConversationRead marks a conversation's incoming messages as read
func (s *SQLStore) MarkConversationRead(ctx context.Context, conversationId, excludeSender string) error {
	return s.repos.Message.MarkConversationRead(ctx, conversationId, excludeSender)
}

// UnreadCount counts a conversation's unread incoming messages
func (s *SQLStore) UnreadCount(ctx context.Context, conversationId, excludeSender string) (int64, error) {
	return s.repos.Message.CountUnread(ctx, conversationId, excludeSender)
}

// CountMessages counts a conversation's messages
func (s *SQLStore) CountMessages(ctx context.Context, conversationId string) (int64, error) {
	return s.repos.Message.CountByConversation(ctx, conversationId)
}

// LastMessage gets a conversation's most recent message
func (s *SQLStore) LastMessage(ctx context.Context, conversationId string) (*entity.Message, error) {
	return s.repos.Message.LastInConversation(ctx, conversationId)
}

// Stats aggregates system-wide counters for the moderation dashboard
func (s *SQLStore) Stats(ctx context.Context) (*entity.ChatStats, error) {
	stats := &entity.ChatStats{}

	var err error
	if stats.TotalConversations, err = s.repos.Conversation.CountAll(ctx); err != nil {
		return nil, err
	}

	midnight := time.Now().Truncate(24 * time.Hour).UnixMilli()
	if stats.ActiveToday, err = s.repos.Conversation.CountActiveSince(ctx, midnight); err != nil {
		return nil, err
	}
	if stats.Flagged, err = s.repos.Conversation.CountFlagged(ctx); err != nil {
		return nil, err
	}
	if stats.TotalMessages, err = s.repos.Message.CountAll(ctx); err != nil {
		return nil, err
	}
	if stats.UnreadMessages, err = s.repos.Message.CountAllUnread(ctx); err != nil {
		return nil, err
	}
	return stats, nil
}

// GetProfile gets a user profile by id
func (s *SQLStore) GetProfile(ctx context.Context, userId string) (*entity.Profile, error) {
	return s.repos.Profile.GetById(ctx, userId)
}

// GetProfiles gets user profiles keyed by id
func (s *SQLStore) GetProfiles(ctx context.Context, userIds []string) (map[string]*entity.Profile, error) {
	return s.repos.Profile.GetByIds(ctx, userIds)
}

// SubscribeInserts subscribes to the conversation's insert feed
func (s *SQLStore) SubscribeInserts(ctx context.Context, conversationId string, fn func(*entity.Message)) (store.Unsubscribe, error) {
	return s.feed.SubscribeInserts(ctx, conversationId, fn)
}

// Broadcast publishes an ephemeral payload
func (s *SQLStore) Broadcast(ctx context.Context, channel string, payload []byte) error {
	return s.feed.Broadcast(ctx, channel, payload)
}

// SubscribeBroadcast subscribes to an ephemeral channel
func (s *SQLStore) SubscribeBroadcast(ctx context.Context, channel string, fn func(payload []byte)) (store.Unsubscribe, error) {
	return s.feed.SubscribeBroadcast(ctx, channel, fn)
}
