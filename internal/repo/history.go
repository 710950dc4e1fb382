package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/Skotchmaster/streamtweet/internal/models"
)

func (r *GormRepo) AppendWatch(ctx context.Context, e *models.WatchEntry) error {
	return r.DB.WithContext(ctx).Create(e).Error
}

// WatchHistory returns the user's entries newest first.
func (r *GormRepo) WatchHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.WatchEntry, error) {
	var entries []models.WatchEntry
	q := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("watched_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
