package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/streamtweet/internal/models"
)

func (r *GormRepo) CreateTweet(ctx context.Context, t *models.Tweet) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

func (r *GormRepo) GetTweet(ctx context.Context, id uuid.UUID) (*models.Tweet, error) {
	var t models.Tweet
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *GormRepo) TweetExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Tweet{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *GormRepo) ListTweets(ctx context.Context, offset, limit int) (int64, []models.Tweet, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Tweet{}).Count(&total).Error; err != nil {
		return 0, nil, err
	}
	var items []models.Tweet
	if err := r.DB.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) DeleteTweet(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Tweet{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("target_id = ? AND kind = ?", id, models.KindTweetLike).
			Delete(&models.Relation{}).Error
	})
}
