package repository

import (
	"context"
	"errors"

	"github.com/trangnv/homechat/internal/entity"
	"gorm.io/gorm"
)

// ProfileRepo is the read-only repository over the identity service's
// profiles table
type ProfileRepo struct {
	db *gorm.DB
}

// NewProfileRepo creates a new ProfileRepo
func NewProfileRepo(db *gorm.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetById gets profile by user id, nil when absent
func (r *ProfileRepo) GetById(ctx context.Context, userId string) (*entity.Profile, error) {
	var p entity.Profile
	err := r.db.WithContext(ctx).Where("id = ?", userId).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// GetByIds gets profiles keyed by user id. Missing ids are simply absent
// from the result.
func (r *ProfileRepo) GetByIds(ctx context.Context, userIds []string) (map[string]*entity.Profile, error) {
	result := make(map[string]*entity.Profile, len(userIds))
	if len(userIds) == 0 {
		return result, nil
	}

	var profiles []*entity.Profile
	err := r.db.WithContext(ctx).Where("id IN ?", userIds).Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		result[p.Id] = p
	}
	return result, nil
}
