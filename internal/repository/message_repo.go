package repository

import (
	"context"
	"errors"

	"github.com/trangnv/homechat/internal/entity"
	"gorm.io/gorm"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db *gorm.DB
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create creates a new message
func (r *MessageRepo) Create(ctx context.Context, msg *entity.Message) error {
	if msg.CreatedAt == 0 {
		msg.CreatedAt = entity.NowUnixMilli()
	}
	return r.db.WithContext(ctx).Create(msg).Error
}

// GetById gets message by id, nil when absent
func (r *MessageRepo) GetById(ctx context.Context, id string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListByConversation lists all messages in a conversation, oldest first
func (r *MessageRepo) ListByConversation(ctx context.Context, conversationId string) ([]*entity.Message, error) {
	var messages []*entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("created_at ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// LastInConversation gets the most recent message of a conversation
func (r *MessageRepo) LastInConversation(ctx context.Context, conversationId string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationId).
		Order("created_at DESC, id DESC").
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// MarkRead marks a single message as read. Read state only ever moves
// from false to true.
func (r *MessageRepo) MarkRead(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&entity.Message{}).
		Where("id = ? AND is_read = ?", id, false).
		Update("is_read", true).Error
}

// MarkConversationRead marks every unread message in a conversation not
// sent by excludeSender as read
func (r *MessageRepo) MarkConversationRead(ctx context.Context, conversationId, excludeSender string) error {
	return r.db.WithContext(ctx).Model(&entity.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationId, excludeSender, false).
		Update("is_read", true).Error
}

// CountUnread counts unread messages not sent by excludeSender
func (r *MessageRepo) CountUnread(ctx context.Context, conversationId, excludeSender string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationId, excludeSender, false).
		Count(&count).Error
	return count, err
}

// CountByConversation counts all messages in a conversation
func (r *MessageRepo) CountByConversation(ctx context.Context, conversationId string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Message{}).
		Where("conversation_id = ?", conversationId).
		Count(&count).Error
	return count, err
}

// CountAll counts all messages
func (r *MessageRepo) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Message{}).Count(&count).Error
	return count, err
}

// CountAllUnread counts all unread messages
func (r *MessageRepo) CountAllUnread(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Message{}).
		Where("is_read = ?", false).
		Count(&count).Error
	return count, err
}
