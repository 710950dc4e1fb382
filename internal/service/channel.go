package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/repo"
)

type ChannelService struct {
	Users     UserStore
	Relations RelationStore
	Toggle    *ToggleEngine
}

type SubscriptionResult struct {
	SubscriberCount int64 `json:"subscriberCount"`
	IsSubscribed    bool  `json:"isSubscribed"`
}

type ChannelInfo struct {
	Channel         *models.User `json:"channel"`
	SubscriberCount int64        `json:"subscriberCount"`
	IsSubscribed    bool         `json:"isSubscribed"`
}

type ChannelProfile struct {
	models.User
	SubscriberCount          int64 `json:"subscriberCount"`
	ChannelSubscribedToCount int64 `json:"channelSubscribedToCount"`
	IsSubscribed             bool  `json:"isSubscribed"`
}

func (s *ChannelService) channel(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.InvalidArgument("username is required")
	}
	ch, err := s.Users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.NotFound("channel not found")
		}
		return nil, apperr.Internal("cannot load channel", err)
	}
	return ch, nil
}

func (s *ChannelService) Subscribe(ctx context.Context, actorID uuid.UUID, username string) (*SubscriptionResult, error) {
	return s.setSubscription(ctx, actorID, username, true)
}

func (s *ChannelService) Unsubscribe(ctx context.Context, actorID uuid.UUID, username string) (*SubscriptionResult, error) {
	return s.setSubscription(ctx, actorID, username, false)
}

func (s *ChannelService) setSubscription(ctx context.Context, actorID uuid.UUID, username string, active bool) (*SubscriptionResult, error) {
	ch, err := s.channel(ctx, username)
	if err != nil {
		return nil, err
	}
	res, err := s.Toggle.Set(ctx, actorID, ch.ID, models.KindChannelSubscription, active)
	if err != nil {
		return nil, err
	}
	return &SubscriptionResult{SubscriberCount: res.Count, IsSubscribed: res.Active}, nil
}

func (s *ChannelService) Info(ctx context.Context, viewerID uuid.UUID, username string) (*ChannelInfo, error) {
	ch, err := s.channel(ctx, username)
	if err != nil {
		return nil, err
	}
	st, err := s.Toggle.State(ctx, viewerID, ch.ID, models.KindChannelSubscription)
	if err != nil {
		return nil, err
	}
	return &ChannelInfo{Channel: ch, SubscriberCount: st.Count, IsSubscribed: st.Active}, nil
}

// Profile is public; viewerID is uuid.Nil for anonymous visitors.
func (s *ChannelService) Profile(ctx context.Context, viewerID uuid.UUID, username string) (*ChannelProfile, error) {
	ch, err := s.channel(ctx, username)
	if err != nil {
		return nil, err
	}
	st, err := s.Toggle.State(ctx, viewerID, ch.ID, models.KindChannelSubscription)
	if err != nil {
		return nil, err
	}
	following, err := s.Relations.CountByActor(ctx, ch.ID, models.KindChannelSubscription)
	if err != nil {
		return nil, apperr.Internal("cannot count subscriptions", err)
	}
	return &ChannelProfile{
		User:                     *ch,
		SubscriberCount:          st.Count,
		ChannelSubscribedToCount: following,
		IsSubscribed:             st.Active,
	}, nil
}

// Subscriptions lists the channels the user follows, most recent first.
func (s *ChannelService) Subscriptions(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	ids, err := s.Relations.TargetsByActor(ctx, userID, models.KindChannelSubscription)
	if err != nil {
		return nil, apperr.Internal("cannot list subscriptions", err)
	}
	users, err := s.Users.UsersByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("cannot load channels", err)
	}
	out := make([]models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}
