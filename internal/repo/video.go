package repo

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Skotchmaster/streamtweet/internal/models"
)

func (r *GormRepo) CreateVideo(ctx context.Context, v *models.Video) error {
	return r.DB.WithContext(ctx).Create(v).Error
}

func (r *GormRepo) GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error) {
	var v models.Video
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

func (r *GormRepo) VideoExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

// ListPublishedVideos returns published videos, newest first.
func (r *GormRepo) ListPublishedVideos(ctx context.Context, offset, limit int) (int64, []models.Video, error) {
	var total int64
	base := r.DB.WithContext(ctx).Model(&models.Video{}).Where("is_published = ?", true)
	if err := base.Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Video
	if err := r.DB.WithContext(ctx).
		Where("is_published = ?", true).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

// SearchVideos is the database fallback used when no search index is configured.
func (r *GormRepo) SearchVideos(ctx context.Context, q string, offset, limit int) (int64, []models.Video, error) {
	pattern := "%" + strings.ToLower(q) + "%"
	where := "is_published = ? AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ?)"

	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Video{}).
		Where(where, true, pattern, pattern).
		Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Video
	if err := r.DB.WithContext(ctx).
		Where(where, true, pattern, pattern).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

// VideosByIDs loads videos and returns them in the order of ids, skipping missing ones.
func (r *GormRepo) VideosByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Video, error) {
	if len(ids) == 0 {
		return []models.Video{}, nil
	}
	var found []models.Video
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Video, len(found))
	for _, v := range found {
		byID[v.ID] = v
	}
	out := make([]models.Video, 0, len(ids))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *GormRepo) UpdateVideoFields(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.Video, error) {
	if len(fields) > 0 {
		res := r.DB.WithContext(ctx).Model(&models.Video{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, ErrNotFound
		}
	}
	return r.GetVideo(ctx, id)
}

// DeleteVideo removes the video together with its likes and watch history.
func (r *GormRepo) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Video{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("target_id = ? AND kind = ?", id, models.KindVideoLike).
			Delete(&models.Relation{}).Error; err != nil {
			return err
		}
		return tx.Where("video_id = ?", id).Delete(&models.WatchEntry{}).Error
	})
}

// IncrementViews is a single atomic UPDATE so concurrent views never lose counts.
func (r *GormRepo) IncrementViews(ctx context.Context, id uuid.UUID) error {
	res := r.DB.WithContext(ctx).Model(&models.Video{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
