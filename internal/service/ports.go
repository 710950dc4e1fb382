package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/repo"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByLogin(ctx context.Context, identifier string) (*models.User, error)
	UsersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.User, error)
	UpdateUserFields(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

type SessionStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetRefreshHash(ctx context.Context, id uuid.UUID, hash string) error
	RotateRefreshHash(ctx context.Context, id uuid.UUID, oldHash, newHash string) (bool, error)
}

type RelationStore interface {
	ToggleRelation(ctx context.Context, e repo.Edge) (bool, int64, error)
	SetRelation(ctx context.Context, e repo.Edge, active bool) (int64, error)
	RelationExists(ctx context.Context, e repo.Edge) (bool, error)
	CountRelations(ctx context.Context, targetID uuid.UUID, kind models.RelationKind) (int64, error)
	CountByActor(ctx context.Context, actorID uuid.UUID, kind models.RelationKind) (int64, error)
	CountsByTargets(ctx context.Context, targetIDs []uuid.UUID, kind models.RelationKind) (map[uuid.UUID]int64, error)
	TargetsByActor(ctx context.Context, actorID uuid.UUID, kind models.RelationKind) ([]uuid.UUID, error)
}

type VideoStore interface {
	CreateVideo(ctx context.Context, v *models.Video) error
	GetVideo(ctx context.Context, id uuid.UUID) (*models.Video, error)
	VideoExists(ctx context.Context, id uuid.UUID) (bool, error)
	ListPublishedVideos(ctx context.Context, offset, limit int) (int64, []models.Video, error)
	SearchVideos(ctx context.Context, q string, offset, limit int) (int64, []models.Video, error)
	VideosByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Video, error)
	UpdateVideoFields(ctx context.Context, id uuid.UUID, fields map[string]any) (*models.Video, error)
	DeleteVideo(ctx context.Context, id uuid.UUID) error
	IncrementViews(ctx context.Context, id uuid.UUID) error
}

type TweetStore interface {
	CreateTweet(ctx context.Context, t *models.Tweet) error
	GetTweet(ctx context.Context, id uuid.UUID) (*models.Tweet, error)
	TweetExists(ctx context.Context, id uuid.UUID) (bool, error)
	ListTweets(ctx context.Context, offset, limit int) (int64, []models.Tweet, error)
	DeleteTweet(ctx context.Context, id uuid.UUID) error
}

type HistoryStore interface {
	AppendWatch(ctx context.Context, e *models.WatchEntry) error
	WatchHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.WatchEntry, error)
}

// EventPublisher emits domain events. Implementations must be safe for concurrent use.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

// BackgroundRunner runs best-effort work outside the request. Errors are logged, not returned.
type BackgroundRunner interface {
	Go(name string, fn func(ctx context.Context) error) bool
}

// VideoIndex is an external full-text index over videos.
type VideoIndex interface {
	IndexVideo(ctx context.Context, v *models.Video) error
	DeleteVideo(ctx context.Context, id uuid.UUID) error
	SearchVideoIDs(ctx context.Context, q string, from, size int) (int64, []uuid.UUID, error)
}

type NoopPublisher struct{}

func (NoopPublisher) PublishEvent(context.Context, string, string, any) error { return nil }

// InlineRunner runs work synchronously on the caller's goroutine.
type InlineRunner struct {
	Timeout time.Duration
}

func (r InlineRunner) Go(_ string, fn func(ctx context.Context) error) bool {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_ = fn(ctx)
	return true
}
