package service

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TopicUserEvents  = "user_events"
	TopicVideoEvents = "video_events"
	TopicTweetEvents = "tweet_events"
)

type Event struct {
	Type      string    `json:"type"`
	ActorID   uuid.UUID `json:"actorID"`
	TargetID  uuid.UUID `json:"targetID"`
	Active    *bool     `json:"active,omitempty"`
	Count     *int64    `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// emit hands the event to the background runner; delivery never blocks or fails the caller.
func emit(bg BackgroundRunner, pub EventPublisher, topic string, ev Event) {
	if bg == nil || pub == nil {
		return
	}
	bg.Go("publish_"+ev.Type, func(ctx context.Context) error {
		return pub.PublishEvent(ctx, topic, ev.TargetID.String(), ev)
	})
}
