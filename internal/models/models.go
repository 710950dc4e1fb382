package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"       json:"_id"`
	Username      string    `gorm:"uniqueIndex;not null"       json:"username"`
	Email         string    `gorm:"uniqueIndex;not null"       json:"email"`
	FullName      string    `gorm:"not null;default:''"        json:"fullName"`
	AvatarURL     string    `gorm:"not null;default:''"        json:"avatar"`
	CoverImageURL string    `gorm:"not null;default:''"        json:"coverImage"`
	PasswordHash  string    `gorm:"not null"                   json:"-"`
	// Hash of the single live refresh token; empty means no active session.
	RefreshTokenHash string    `gorm:"not null;default:''" json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

type Video struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"        json:"_id"`
	OwnerID      uuid.UUID `gorm:"type:uuid;index;not null"    json:"ownerId"`
	VideoFileURL string    `gorm:"not null"                    json:"videoFile"`
	ThumbnailURL string    `gorm:"not null;default:''"         json:"thumbnail"`
	Title        string    `gorm:"not null"                    json:"title"`
	Description  string    `gorm:"not null;default:''"         json:"description"`
	Duration     float64   `gorm:"not null;default:0"          json:"duration"`
	Views        int64     `gorm:"not null;default:0"          json:"views"`
	IsPublished  bool      `gorm:"not null;index"              json:"isPublished"`
	CreatedAt    time.Time `gorm:"index"                       json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (v *Video) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

type Tweet struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"     json:"_id"`
	OwnerID   uuid.UUID `gorm:"type:uuid;index;not null" json:"ownerId"`
	Content   string    `gorm:"not null"                 json:"content"`
	CreatedAt time.Time `gorm:"index"                    json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *Tweet) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type RelationKind string

const (
	KindVideoLike           RelationKind = "video-like"
	KindTweetLike           RelationKind = "tweet-like"
	KindChannelSubscription RelationKind = "channel-subscription"
)

func (k RelationKind) Valid() bool {
	switch k {
	case KindVideoLike, KindTweetLike, KindChannelSubscription:
		return true
	}
	return false
}

// Relation is a boolean edge: the row existing means the relation is active.
type Relation struct {
	ID        uint         `gorm:"primaryKey;autoIncrement"`
	ActorID   uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_relation_edge,priority:1"`
	TargetID  uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_relation_edge,priority:2;index:idx_relation_target,priority:1"`
	Kind      RelationKind `gorm:"size:32;not null;uniqueIndex:idx_relation_edge,priority:3;index:idx_relation_target,priority:2"`
	CreatedAt time.Time
}

// WatchEntry is append-only; a video watched twice has two entries.
type WatchEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index:idx_watch_user,priority:1"`
	VideoID   uuid.UUID `gorm:"type:uuid;not null"`
	WatchedAt time.Time `gorm:"not null;index:idx_watch_user,priority:2"`
}

// All returns every model for AutoMigrate.
func All() []any {
	return []any{&User{}, &Video{}, &Tweet{}, &Relation{}, &WatchEntry{}}
}
