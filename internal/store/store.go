// Package store defines the contract to the remote persistence and realtime
// services. The messaging core depends only on these interfaces; the MySQL/
// Redis implementation lives in internal/repository and an in-memory
// implementation in this package backs tests and local development.
package store

import (
	"context"
	"errors"

	"github.com/trangnv/homechat/internal/entity"
)

// ErrDuplicatePair is returned by CreateConversation when a user-kind
// conversation for the same normalized participant pair already exists.
// Callers resolve the race by re-running the find.
var ErrDuplicatePair = errors.New("conversation pair already exists")

// Unsubscribe releases a feed subscription. Safe to call more than once.
type Unsubscribe func()

// Store is the query/insert/update surface of the remote persistent store
type Store interface {
	// Conversations
	FindConversation(ctx context.Context, userA, userB, propertyId string) (*entity.Conversation, error)
	CreateConversation(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, error)
	GetConversation(ctx context.Context, id string) (*entity.Conversation, error)
	ListConversations(ctx context.Context, userId string) ([]*entity.Conversation, error)
	ListAllConversations(ctx context.Context, filter ConversationFilter) ([]*entity.Conversation, error)
	TouchConversation(ctx context.Context, id string, lastMessageAt int64) error
	SetConversationFlag(ctx context.Context, id string, flag entity.ConversationFlag) error

	// Messages
	InsertMessage(ctx context.Context, msg *entity.Message) (*entity.Message, error)
	GetMessage(ctx context.Context, id string) (*entity.Message, error)
	ListMessages(ctx context.Context, conversationId string) ([]*entity.Message, error)
	MarkMessageRead(ctx context.Context, id string) error
	MarkConversationRead(ctx context.Context, conversationId, excludeSender string) error
	UnreadCount(ctx context.Context, conversationId, excludeSender string) (int64, error)
	CountMessages(ctx context.Context, conversationId string) (int64, error)
	LastMessage(ctx context.Context, conversationId string) (*entity.Message, error)
	Stats(ctx context.Context) (*entity.ChatStats, error)

	// Profiles (read-only, owned by the identity service)
	GetProfile(ctx context.Context, userId string) (*entity.Profile, error)
	GetProfiles(ctx context.Context, userIds []string) (map[string]*entity.Profile, error)
}

// Feed is the realtime surface: a change feed of persisted inserts plus
// ephemeral broadcast channels that never touch storage
type Feed interface {
	// SubscribeInserts delivers every message persisted into the
	// conversation, including the subscriber's own
	SubscribeInserts(ctx context.Context, conversationId string, fn func(*entity.Message)) (Unsubscribe, error)

	Broadcast(ctx context.Context, channel string, payload []byte) error
	SubscribeBroadcast(ctx context.Context, channel string, fn func(payload []byte)) (Unsubscribe, error)
}

// ConversationFilter narrows moderation queries
type ConversationFilter struct {
	FlaggedOnly bool
	CreatedFrom int64
	CreatedTo   int64
}

// TypingChannel names the ephemeral typing channel for a conversation
func TypingChannel(conversationId string) string {
	return "typing:" + conversationId
}

// ChatChannel names the insert feed channel for a conversation
func ChatChannel(conversationId string) string {
	return "chat:" + conversationId
}
