package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/repo"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
)

type VideoService struct {
	Videos    VideoStore
	Users     UserStore
	Relations RelationStore
	History   HistoryStore
	Index     VideoIndex
	Events    EventPublisher
	BG        BackgroundRunner
	Clock     clockwork.Clock
}

type OwnerSummary struct {
	ID        uuid.UUID `json:"_id"`
	Username  string    `json:"username"`
	FullName  string    `json:"fullName"`
	AvatarURL string    `json:"avatar"`
}

type VideoView struct {
	models.Video
	Owner      *OwnerSummary `json:"owner"`
	LikesCount int64         `json:"likesCount"`
	IsLiked    bool          `json:"isLiked"`
}

type HistoryItem struct {
	VideoView
	WatchedAt time.Time `json:"watchedAt"`
}

type UploadInput struct {
	Title        string
	Description  string
	VideoFileURL string
	ThumbnailURL string
	Duration     float64
}

type VideoPatch struct {
	Title        *string
	Description  *string
	ThumbnailURL *string
}

type Page[T any] struct {
	Items []T
	Total int64
}

func (s *VideoService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func (s *VideoService) Feed(ctx context.Context, offset, limit int) (*Page[VideoView], error) {
	total, items, err := s.Videos.ListPublishedVideos(ctx, offset, limit)
	if err != nil {
		return nil, apperr.Internal("cannot list videos", err)
	}
	views, err := s.decorate(ctx, items)
	if err != nil {
		return nil, err
	}
	return &Page[VideoView]{Items: views, Total: total}, nil
}

// Get returns the video and records the view in the background. Authenticated
// viewers (viewerID != uuid.Nil) also get a watch history entry.
func (s *VideoService) Get(ctx context.Context, viewerID, videoID uuid.UUID) (*VideoView, error) {
	v, err := s.Videos.GetVideo(ctx, videoID)
	if err != nil {
		return nil, videoLookupErr(err)
	}
	if v.VideoFileURL == "" {
		return nil, apperr.Internal("video URL missing or invalid", nil)
	}

	views, err := s.decorate(ctx, []models.Video{*v})
	if err != nil {
		return nil, err
	}
	view := views[0]
	if viewerID != uuid.Nil {
		view.IsLiked, err = s.Relations.RelationExists(ctx, repo.Edge{ActorID: viewerID, TargetID: videoID, Kind: models.KindVideoLike})
		if err != nil {
			return nil, apperr.Internal("cannot read like state", err)
		}
	}

	s.recordView(ctx, viewerID, videoID)
	return &view, nil
}

func (s *VideoService) recordView(ctx context.Context, viewerID, videoID uuid.UUID) {
	if s.BG == nil {
		return
	}
	l := logging.FromContext(ctx)
	s.BG.Go("increment_views", func(ctx context.Context) error {
		err := s.Videos.IncrementViews(ctx, videoID)
		if err != nil {
			l.Warn("increment_views_failed", "video_id", videoID, "error", err)
		}
		return err
	})
	if viewerID == uuid.Nil {
		return
	}
	watchedAt := s.now()
	s.BG.Go("record_watch_history", func(ctx context.Context) error {
		err := s.History.AppendWatch(ctx, &models.WatchEntry{UserID: viewerID, VideoID: videoID, WatchedAt: watchedAt})
		if err != nil {
			l.Warn("record_watch_history_failed", "video_id", videoID, "user_id", viewerID, "error", err)
		}
		return err
	})
}

func (s *VideoService) Upload(ctx context.Context, ownerID uuid.UUID, in UploadInput) (*VideoView, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" || in.Description == "" {
		return nil, apperr.InvalidArgument("all fields are required")
	}
	if err := validVideoURL(in.VideoFileURL); err != nil {
		return nil, err
	}
	if in.Duration < 0 {
		return nil, apperr.InvalidArgument("duration cannot be negative")
	}

	v := &models.Video{
		OwnerID:      ownerID,
		Title:        in.Title,
		Description:  in.Description,
		VideoFileURL: in.VideoFileURL,
		ThumbnailURL: strings.TrimSpace(in.ThumbnailURL),
		Duration:     in.Duration,
		IsPublished:  true,
	}
	if err := s.Videos.CreateVideo(ctx, v); err != nil {
		return nil, apperr.Internal("cannot save video", err)
	}

	s.reindex(v)
	emit(s.BG, s.Events, TopicVideoEvents, Event{Type: "video_uploaded", ActorID: ownerID, TargetID: v.ID, Timestamp: s.now()})

	views, err := s.decorate(ctx, []models.Video{*v})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *VideoService) Update(ctx context.Context, actorID, videoID uuid.UUID, p VideoPatch) (*VideoView, error) {
	if _, err := s.owned(ctx, actorID, videoID); err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if t == "" {
			return nil, apperr.InvalidArgument("title cannot be empty")
		}
		fields["title"] = t
	}
	if p.Description != nil {
		fields["description"] = strings.TrimSpace(*p.Description)
	}
	if p.ThumbnailURL != nil {
		fields["thumbnail_url"] = strings.TrimSpace(*p.ThumbnailURL)
	}

	v, err := s.Videos.UpdateVideoFields(ctx, videoID, fields)
	if err != nil {
		return nil, videoLookupErr(err)
	}
	s.reindex(v)

	views, err := s.decorate(ctx, []models.Video{*v})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func (s *VideoService) Delete(ctx context.Context, actorID, videoID uuid.UUID) error {
	if _, err := s.owned(ctx, actorID, videoID); err != nil {
		return err
	}
	if err := s.Videos.DeleteVideo(ctx, videoID); err != nil {
		return videoLookupErr(err)
	}
	if s.Index != nil && s.BG != nil {
		s.BG.Go("unindex_video", func(ctx context.Context) error {
			return s.Index.DeleteVideo(ctx, videoID)
		})
	}
	emit(s.BG, s.Events, TopicVideoEvents, Event{Type: "video_deleted", ActorID: actorID, TargetID: videoID, Timestamp: s.now()})
	return nil
}

// Search uses the external index when one is configured and falls back to the database.
func (s *VideoService) Search(ctx context.Context, q string, offset, limit int) (*Page[VideoView], error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.InvalidArgument("query is required")
	}

	var (
		total int64
		items []models.Video
		err   error
	)
	if s.Index != nil {
		var ids []uuid.UUID
		total, ids, err = s.Index.SearchVideoIDs(ctx, q, offset, limit)
		if err == nil {
			items, err = s.Videos.VideosByIDs(ctx, ids)
		}
		if err != nil {
			logging.FromContext(ctx).Warn("video_search_index_failed", "error", err)
		}
	}
	if s.Index == nil || err != nil {
		total, items, err = s.Videos.SearchVideos(ctx, q, offset, limit)
		if err != nil {
			return nil, apperr.Internal("cannot search videos", err)
		}
	}

	published := items[:0]
	for _, v := range items {
		if v.IsPublished {
			published = append(published, v)
		}
	}
	views, err := s.decorate(ctx, published)
	if err != nil {
		return nil, err
	}
	return &Page[VideoView]{Items: views, Total: total}, nil
}

// LikedVideos lists the user's liked videos, most recently liked first.
func (s *VideoService) LikedVideos(ctx context.Context, userID uuid.UUID) ([]VideoView, error) {
	ids, err := s.Relations.TargetsByActor(ctx, userID, models.KindVideoLike)
	if err != nil {
		return nil, apperr.Internal("cannot list liked videos", err)
	}
	items, err := s.Videos.VideosByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("cannot load videos", err)
	}
	views, err := s.decorate(ctx, items)
	if err != nil {
		return nil, err
	}
	for i := range views {
		views[i].IsLiked = true
	}
	return views, nil
}

// WatchHistory returns watched videos newest first; deleted videos are skipped.
func (s *VideoService) WatchHistory(ctx context.Context, userID uuid.UUID, limit int) ([]HistoryItem, error) {
	entries, err := s.History.WatchHistory(ctx, userID, limit)
	if err != nil {
		return nil, apperr.Internal("cannot load history", err)
	}
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.VideoID)
	}
	items, err := s.Videos.VideosByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal("cannot load videos", err)
	}
	views, err := s.decorate(ctx, items)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]VideoView, len(views))
	for _, v := range views {
		byID[v.ID] = v
	}

	out := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		if v, ok := byID[e.VideoID]; ok {
			out = append(out, HistoryItem{VideoView: v, WatchedAt: e.WatchedAt})
		}
	}
	return out, nil
}

func (s *VideoService) owned(ctx context.Context, actorID, videoID uuid.UUID) (*models.Video, error) {
	v, err := s.Videos.GetVideo(ctx, videoID)
	if err != nil {
		return nil, videoLookupErr(err)
	}
	if v.OwnerID != actorID {
		return nil, apperr.Forbidden("you are not the owner of this video")
	}
	return v, nil
}

func (s *VideoService) reindex(v *models.Video) {
	if s.Index == nil || s.BG == nil {
		return
	}
	snapshot := *v
	s.BG.Go("index_video", func(ctx context.Context) error {
		return s.Index.IndexVideo(ctx, &snapshot)
	})
}

// decorate attaches owners and live like counts in two batched queries.
func (s *VideoService) decorate(ctx context.Context, items []models.Video) ([]VideoView, error) {
	ids := make([]uuid.UUID, 0, len(items))
	ownerIDs := make([]uuid.UUID, 0, len(items))
	for _, v := range items {
		ids = append(ids, v.ID)
		ownerIDs = append(ownerIDs, v.OwnerID)
	}
	counts, err := s.Relations.CountsByTargets(ctx, ids, models.KindVideoLike)
	if err != nil {
		return nil, apperr.Internal("cannot count likes", err)
	}
	owners, err := s.Users.UsersByIDs(ctx, ownerIDs)
	if err != nil {
		return nil, apperr.Internal("cannot load owners", err)
	}

	out := make([]VideoView, 0, len(items))
	for _, v := range items {
		view := VideoView{Video: v, LikesCount: counts[v.ID]}
		if o, ok := owners[v.OwnerID]; ok {
			view.Owner = summary(&o)
		}
		out = append(out, view)
	}
	return out, nil
}

func summary(u *models.User) *OwnerSummary {
	return &OwnerSummary{ID: u.ID, Username: u.Username, FullName: u.FullName, AvatarURL: u.AvatarURL}
}

func validVideoURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return apperr.InvalidArgument("video file is missing")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.InvalidArgument("video file must be an http(s) URL")
	}
	if !strings.HasSuffix(strings.ToLower(u.Path), ".mp4") {
		return apperr.InvalidArgument("only .mp4 video files are allowed")
	}
	return nil
}

func videoLookupErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("video not found")
	}
	return apperr.Internal("video store failure", err)
}
