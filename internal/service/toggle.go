package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/repo"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
)

// ToggleEngine owns actor→target boolean relations (likes, subscriptions).
// Counts are live COUNTs over the relation rows, read in the same
// transaction as the write, so they cannot drift or go negative.
type ToggleEngine struct {
	Relations RelationStore
	Users     UserStore
	Videos    VideoStore
	Tweets    TweetStore
	Events    EventPublisher
	BG        BackgroundRunner
	Clock     clockwork.Clock
}

type ToggleResult struct {
	Active bool  `json:"active"`
	Count  int64 `json:"count"`
}

// Toggle flips the relation and returns the resulting state and target count.
func (e *ToggleEngine) Toggle(ctx context.Context, actorID, targetID uuid.UUID, kind models.RelationKind) (*ToggleResult, error) {
	if err := e.check(ctx, actorID, targetID, kind); err != nil {
		return nil, err
	}
	active, count, err := e.Relations.ToggleRelation(ctx, repo.Edge{ActorID: actorID, TargetID: targetID, Kind: kind})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NotFound(targetName(kind) + " not found")
	}
	if err != nil {
		logging.FromContext(ctx).Error("toggle_failed", "kind", kind, "target_id", targetID, "error", err)
		return nil, apperr.Internal("cannot toggle relation", err)
	}
	res := &ToggleResult{Active: active, Count: count}
	e.publish(actorID, targetID, kind, res)
	return res, nil
}

// Set drives the relation to the requested state. Repeating it changes nothing.
func (e *ToggleEngine) Set(ctx context.Context, actorID, targetID uuid.UUID, kind models.RelationKind, active bool) (*ToggleResult, error) {
	if err := e.check(ctx, actorID, targetID, kind); err != nil {
		return nil, err
	}
	count, err := e.Relations.SetRelation(ctx, repo.Edge{ActorID: actorID, TargetID: targetID, Kind: kind}, active)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NotFound(targetName(kind) + " not found")
	}
	if err != nil {
		logging.FromContext(ctx).Error("set_relation_failed", "kind", kind, "target_id", targetID, "error", err)
		return nil, apperr.Internal("cannot update relation", err)
	}
	res := &ToggleResult{Active: active, Count: count}
	e.publish(actorID, targetID, kind, res)
	return res, nil
}

// State reads the relation without changing it. A nil actor reads as inactive.
func (e *ToggleEngine) State(ctx context.Context, actorID, targetID uuid.UUID, kind models.RelationKind) (*ToggleResult, error) {
	if targetID == uuid.Nil || !kind.Valid() {
		return nil, apperr.InvalidArgument("invalid relation target")
	}
	count, err := e.Relations.CountRelations(ctx, targetID, kind)
	if err != nil {
		return nil, apperr.Internal("cannot count relations", err)
	}
	res := &ToggleResult{Count: count}
	if actorID != uuid.Nil {
		res.Active, err = e.Relations.RelationExists(ctx, repo.Edge{ActorID: actorID, TargetID: targetID, Kind: kind})
		if err != nil {
			return nil, apperr.Internal("cannot read relation", err)
		}
	}
	return res, nil
}

func (e *ToggleEngine) check(ctx context.Context, actorID, targetID uuid.UUID, kind models.RelationKind) error {
	if actorID == uuid.Nil || targetID == uuid.Nil {
		return apperr.InvalidArgument("actor and target are required")
	}
	if !kind.Valid() {
		return apperr.InvalidArgument("unknown relation type")
	}
	if kind == models.KindChannelSubscription && actorID == targetID {
		return apperr.InvalidArgument("you cannot subscribe to yourself")
	}

	exists, err := e.targetExists(ctx, targetID, kind)
	if err != nil {
		return apperr.Internal("cannot look up target", err)
	}
	if !exists {
		return apperr.NotFound(targetName(kind) + " not found")
	}
	return nil
}

func (e *ToggleEngine) targetExists(ctx context.Context, id uuid.UUID, kind models.RelationKind) (bool, error) {
	switch kind {
	case models.KindVideoLike:
		return e.Videos.VideoExists(ctx, id)
	case models.KindTweetLike:
		return e.Tweets.TweetExists(ctx, id)
	case models.KindChannelSubscription:
		_, err := e.Users.GetUserByID(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return err == nil, err
	}
	return false, nil
}

func (e *ToggleEngine) now() time.Time {
	if e.Clock == nil {
		return time.Now().UTC()
	}
	return e.Clock.Now().UTC()
}

func targetName(kind models.RelationKind) string {
	switch kind {
	case models.KindVideoLike:
		return "video"
	case models.KindTweetLike:
		return "tweet"
	default:
		return "channel"
	}
}

func (e *ToggleEngine) publish(actorID, targetID uuid.UUID, kind models.RelationKind, res *ToggleResult) {
	topic := TopicVideoEvents
	switch kind {
	case models.KindTweetLike:
		topic = TopicTweetEvents
	case models.KindChannelSubscription:
		topic = TopicUserEvents
	}
	active, count := res.Active, res.Count
	emit(e.BG, e.Events, topic, Event{
		Type:      string(kind),
		ActorID:   actorID,
		TargetID:  targetID,
		Active:    &active,
		Count:     &count,
		Timestamp: e.now(),
	})
}
