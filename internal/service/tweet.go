package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/repo"
)

const MaxTweetLength = 280

type TweetService struct {
	Tweets    TweetStore
	Users     UserStore
	Relations RelationStore
	Events    EventPublisher
	BG        BackgroundRunner
	Clock     clockwork.Clock
}

type TweetView struct {
	models.Tweet
	Owner      *OwnerSummary `json:"owner"`
	LikesCount int64         `json:"likesCount"`
}

func (s *TweetService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *TweetService) Create(ctx context.Context, ownerID uuid.UUID, content string) (*TweetView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.InvalidArgument("content is required")
	}
	if utf8.RuneCountInString(content) > MaxTweetLength {
		return nil, apperr.InvalidArgument("tweet is too long")
	}

	t := &models.Tweet{OwnerID: ownerID, Content: content}
	if err := s.Tweets.CreateTweet(ctx, t); err != nil {
		return nil, apperr.Internal("cannot save tweet", err)
	}
	emit(s.BG, s.Events, TopicTweetEvents, Event{Type: "tweet_created", ActorID: ownerID, TargetID: t.ID, Timestamp: s.now()})

	views, err := s.decorate(ctx, []models.Tweet{*t})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *TweetService) List(ctx context.Context, offset, limit int) (*Page[TweetView], error) {
	total, items, err := s.Tweets.ListTweets(ctx, offset, limit)
	if err != nil {
		return nil, apperr.Internal("cannot list tweets", err)
	}
	views, err := s.decorate(ctx, items)
	if err != nil {
		return nil, err
	}
	return &Page[TweetView]{Items: views, Total: total}, nil
}

// Delete removes the tweet; only its owner may do so.
func (s *TweetService) Delete(ctx context.Context, actorID, tweetID uuid.UUID) error {
	t, err := s.Tweets.GetTweet(ctx, tweetID)
	if err != nil {
		return tweetLookupErr(err)
	}
	if t.OwnerID != actorID {
		return apperr.Forbidden("you can only delete your own tweets")
	}
	if err := s.Tweets.DeleteTweet(ctx, tweetID); err != nil {
		return tweetLookupErr(err)
	}
	emit(s.BG, s.Events, TopicTweetEvents, Event{Type: "tweet_deleted", ActorID: actorID, TargetID: tweetID, Timestamp: s.now()})
	return nil
}

func (s *TweetService) decorate(ctx context.Context, items []models.Tweet) ([]TweetView, error) {
	ids := make([]uuid.UUID, 0, len(items))
	ownerIDs := make([]uuid.UUID, 0, len(items))
	for _, t := range items {
		ids = append(ids, t.ID)
		ownerIDs = append(ownerIDs, t.OwnerID)
	}
	counts, err := s.Relations.CountsByTargets(ctx, ids, models.KindTweetLike)
	if err != nil {
		return nil, apperr.Internal("cannot count likes", err)
	}
	owners, err := s.Users.UsersByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, apperr.Internal("cannot load owners", err)
	}

	out := make([]TweetView, 0, len(items))
	for _, t := range items {
		view := TweetView{Tweet: t, LikesCount: counts[t.ID]}
		if o, ok := owners[t.OwnerID]; ok {
			view.Owner = summary(&o)
		}
		out = append(out, view)
	}
	return out, nil
}

func tweetLookupErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("tweet not found")
	}
	return apperr.Internal("tweet store failure", err)
}
