package repository

import (
	"context"
	"errors"

	"github.com/trangnv/homechat/internal/entity"
	"github.com/trangnv/homechat/internal/store"
	"gorm.io/gorm"
)

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db *gorm.DB
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Create creates a new conversation. A duplicate pair key surfaces as
// store.ErrDuplicatePair.
func (r *ConversationRepo) Create(ctx context.Context, conv *entity.Conversation) error {
	now := entity.NowUnixMilli()
	conv.CreatedAt = now
	conv.UpdatedAt = now
	err := r.db.WithContext(ctx).Create(conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return store.ErrDuplicatePair
		}
		return err
	}
	return nil
}

// GetById gets conversation by id, nil when absent
func (r *ConversationRepo) GetById(ctx context.Context, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// FindByPair finds the user-kind conversation for a normalized pair key.
// With an empty propertyId any property-scoped conversation for the pair
// matches; the most recently active one wins.
func (r *ConversationRepo) FindByPair(ctx context.Context, userA, userB, propertyId string) (*entity.Conversation, error) {
	var conv entity.Conversation
	q := r.db.WithContext(ctx).Where("conversation_type = ?", entity.ConvKindUser)
	key := entity.PairKey(userA, userB, propertyId)
	if propertyId == "" {
		q = q.Where("pair_key = ? OR pair_key LIKE ?", key, key+"#%")
	} else {
		q = q.Where("pair_key = ?", key)
	}
	err := q.Order("last_message_at DESC").First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListByUser lists conversations a user participates in, most recently
// active first
func (r *ConversationRepo) ListByUser(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_1 = ? OR participant_2 = ?", userId, userId).
		Order("last_message_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// ListAll lists conversations for the moderation view
func (r *ConversationRepo) ListAll(ctx context.Context, filter store.ConversationFilter) ([]*entity.Conversation, error) {
	q := r.db.WithContext(ctx).Model(&entity.Conversation{})
	if filter.FlaggedOnly {
		q = q.Where("is_flagged = ?", true)
	}
	if filter.CreatedFrom > 0 {
		q = q.Where("created_at >= ?", filter.CreatedFrom)
	}
	if filter.CreatedTo > 0 {
		q = q.Where("created_at <= ?", filter.CreatedTo)
	}

	var convs []*entity.Conversation
	err := q.Order("last_message_at DESC").Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// Touch bumps last_message_at after a successful insert
func (r *ConversationRepo) Touch(ctx context.Context, id string, lastMessageAt int64) error {
	return r.db.WithContext(ctx).Model(&entity.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message_at": lastMessageAt,
			"updated_at":      entity.NowUnixMilli(),
		}).Error
}

// SetFlag records or clears a moderation flag
func (r *ConversationRepo) SetFlag(ctx context.Context, id string, flag entity.ConversationFlag) error {
	return r.db.WithContext(ctx).Model(&entity.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_flagged":  flag.Flagged,
			"flag_reason": flag.Reason,
			"flagged_by":  flag.FlaggedBy,
			"flagged_at":  flag.FlaggedAt,
			"updated_at":  entity.NowUnixMilli(),
		}).Error
}

// CountAll counts all conversations
func (r *ConversationRepo) CountAll(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Conversation{}).Count(&count).Error
	return count, err
}

// CountActiveSince counts conversations with activity at or after the cutoff
func (r *ConversationRepo) CountActiveSince(ctx context.Context, since int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Conversation{}).
		Where("last_message_at >= ?", since).
		Count(&count).Error
	return count, err
}

// CountFlagged counts flagged conversations
func (r *ConversationRepo) CountFlagged(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Conversation{}).
		Where("is_flagged = ?", true).
		Count(&count).Error
	return count, err
}
