package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/repo"
	"github.com/Skotchmaster/streamtweet/pkg/db"
	pkg_hash "github.com/Skotchmaster/streamtweet/pkg/hash"
)

type recordedEvent struct {
	Topic string
	Key   string
	Event Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Topic: topic, Key: key, Event: event.(Event)})
	return nil
}

func (p *recordingPublisher) Events() []recordedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]recordedEvent(nil), p.events...)
}

type testEnv struct {
	Repo     *repo.GormRepo
	Clock    *clockwork.FakeClock
	Events   *recordingPublisher
	Tokens   *TokenService
	Auth     *AuthService
	Toggle   *ToggleEngine
	Channels *ChannelService
	Videos   *VideoService
	Tweets   *TweetService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	pkg_hash.Cost = bcrypt.MinCost

	gdb, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	r := repo.New(gdb)
	require.NoError(t, r.Migrate(context.Background()))

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	events := &recordingPublisher{}
	bg := InlineRunner{}

	tokens := &TokenService{
		Users:         r,
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
		Clock:         clock,
	}
	toggle := &ToggleEngine{Relations: r, Users: r, Videos: r, Tweets: r, Events: events, BG: bg, Clock: clock}

	return &testEnv{
		Repo:     r,
		Clock:    clock,
		Events:   events,
		Tokens:   tokens,
		Auth:     &AuthService{Users: r, Tokens: tokens, Events: events, BG: bg, Clock: clock},
		Toggle:   toggle,
		Channels: &ChannelService{Users: r, Relations: r, Toggle: toggle},
		Videos:   &VideoService{Videos: r, Users: r, Relations: r, History: r, Events: events, BG: bg, Clock: clock},
		Tweets:   &TweetService{Tweets: r, Users: r, Relations: r, Events: events, BG: bg, Clock: clock},
	}
}

func (env *testEnv) register(t *testing.T, username string) *models.User {
	t.Helper()
	u, err := env.Auth.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "Secret123",
		FullName: username,
	})
	require.NoError(t, err)
	return u
}

func (env *testEnv) video(t *testing.T, owner *models.User, title string) *models.Video {
	t.Helper()
	v, err := env.Videos.Upload(context.Background(), owner.ID, UploadInput{
		Title:        title,
		Description:  title + " description",
		VideoFileURL: "https://cdn.example.com/" + title + ".mp4",
	})
	require.NoError(t, err)
	return &v.Video
}
