package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/streamtweet/internal/models"
)

type Edge struct {
	ActorID  uuid.UUID
	TargetID uuid.UUID
	Kind     models.RelationKind
}

// ToggleRelation flips the edge and returns the new state with the live target count.
// Both happen in one transaction so the count always includes this write. An
// insert fails with ErrNotFound when the target is gone.
func (r *GormRepo) ToggleRelation(ctx context.Context, e Edge) (bool, int64, error) {
	var (
		active bool
		count  int64
	)
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := edgeExists(tx, e)
		if err != nil {
			return err
		}
		if !exists {
			if err := lockTarget(tx, e); err != nil {
				return err
			}
		}
		if err := writeEdge(tx, e, !exists); err != nil {
			return err
		}
		active = !exists
		count, err = countTarget(tx, e.TargetID, e.Kind)
		return err
	})
	if err != nil {
		return false, 0, err
	}
	return active, count, nil
}

// SetRelation forces the edge into the requested state; repeating a call is a no-op.
func (r *GormRepo) SetRelation(ctx context.Context, e Edge, active bool) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if active {
			if err := lockTarget(tx, e); err != nil {
				return err
			}
		}
		if err := writeEdge(tx, e, active); err != nil {
			return err
		}
		var err error
		count, err = countTarget(tx, e.TargetID, e.Kind)
		return err
	})
	return count, err
}

func (r *GormRepo) RelationExists(ctx context.Context, e Edge) (bool, error) {
	return edgeExists(r.DB.WithContext(ctx), e)
}

func (r *GormRepo) CountRelations(ctx context.Context, targetID uuid.UUID, kind models.RelationKind) (int64, error) {
	return countTarget(r.DB.WithContext(ctx), targetID, kind)
}

func (r *GormRepo) CountByActor(ctx context.Context, actorID uuid.UUID, kind models.RelationKind) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Relation{}).
		Where("actor_id = ? AND kind = ?", actorID, kind).
		Count(&n).Error
	return n, err
}

// CountsByTargets returns live counts for many targets in one query.
func (r *GormRepo) CountsByTargets(ctx context.Context, targetIDs []uuid.UUID, kind models.RelationKind) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(targetIDs))
	if len(targetIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		TargetID uuid.UUID
		N        int64
	}
	if err := r.DB.WithContext(ctx).Model(&models.Relation{}).
		Select("target_id, COUNT(*) AS n").
		Where("kind = ? AND target_id IN ?", kind, targetIDs).
		Group("target_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.TargetID] = row.N
	}
	return out, nil
}

// TargetsByActor lists target ids the actor is related to, newest first.
func (r *GormRepo) TargetsByActor(ctx context.Context, actorID uuid.UUID, kind models.RelationKind) ([]uuid.UUID, error) {
	var rels []models.Relation
	if err := r.DB.WithContext(ctx).
		Where("actor_id = ? AND kind = ?", actorID, kind).
		Order("created_at DESC, id DESC").
		Find(&rels).Error; err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(rels))
	for _, rel := range rels {
		ids = append(ids, rel.TargetID)
	}
	return ids, nil
}

func edgeExists(db *gorm.DB, e Edge) (bool, error) {
	var n int64
	err := db.Model(&models.Relation{}).
		Where("actor_id = ? AND target_id = ? AND kind = ?", e.ActorID, e.TargetID, e.Kind).
		Count(&n).Error
	return n > 0, err
}

// lockTarget confirms the target row still exists. On postgres it takes a
// share lock, so a concurrent delete of the target waits for this transaction
// and then purges the new edge with the rest.
func lockTarget(tx *gorm.DB, e Edge) error {
	var target any
	switch e.Kind {
	case models.KindVideoLike:
		target = &models.Video{}
	case models.KindTweetLike:
		target = &models.Tweet{}
	case models.KindChannelSubscription:
		target = &models.User{}
	default:
		return ErrNotFound
	}

	q := tx.Model(target).Where("id = ?", e.TargetID)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "SHARE"})
	}
	var ids []uuid.UUID
	if err := q.Limit(1).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return ErrNotFound
	}
	return nil
}

func writeEdge(db *gorm.DB, e Edge, active bool) error {
	if active {
		return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Relation{
			ActorID:  e.ActorID,
			TargetID: e.TargetID,
			Kind:     e.Kind,
		}).Error
	}
	return db.Where("actor_id = ? AND target_id = ? AND kind = ?", e.ActorID, e.TargetID, e.Kind).
		Delete(&models.Relation{}).Error
}

func countTarget(db *gorm.DB, targetID uuid.UUID, kind models.RelationKind) (int64, error) {
	var n int64
	err := db.Model(&models.Relation{}).
		Where("target_id = ? AND kind = ?", targetID, kind).
		Count(&n).Error
	return n, err
}
