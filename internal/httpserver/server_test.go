package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	jwthelp "github.com/Skotchmaster/streamtweet/internal/jwt"
	authmw "github.com/Skotchmaster/streamtweet/internal/middleware/auth"
	"github.com/Skotchmaster/streamtweet/internal/repo"
	"github.com/Skotchmaster/streamtweet/internal/service"
	"github.com/Skotchmaster/streamtweet/pkg/authclient"
	"github.com/Skotchmaster/streamtweet/pkg/db"
	pkg_hash "github.com/Skotchmaster/streamtweet/pkg/hash"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
	db  *gorm.DB
}

func newTestServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()
	pkg_hash.Cost = bcrypt.MinCost

	gdb, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	r := repo.New(gdb)
	require.NoError(t, r.Migrate(context.Background()))

	bg := service.InlineRunner{}
	events := service.NoopPublisher{}
	tokens := &service.TokenService{
		Users:         r,
		AccessSecret:  []byte("http-access-secret"),
		RefreshSecret: []byte("http-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    24 * time.Hour,
	}
	authSvc := &service.AuthService{Users: r, Tokens: tokens, Events: events, BG: bg}
	toggle := &service.ToggleEngine{Relations: r, Users: r, Videos: r, Tweets: r, Events: events, BG: bg}
	videos := &service.VideoService{Videos: r, Users: r, Relations: r, History: r, Events: events, BG: bg}

	deps := &Deps{
		Logger:       logging.NewWithWriter(io.Discard, "error"),
		Ready:        func(ctx context.Context) error { return db.Ping(ctx, gdb) },
		AuthHandler:  &AuthHTTP{Svc: authSvc, Cookies: jwthelp.Cookies{}},
		UserHandler:  &UserHTTP{Auth: authSvc, Channels: &service.ChannelService{Users: r, Relations: r, Toggle: toggle}, Videos: videos},
		VideoHandler: &VideoHTTP{Svc: videos, Toggle: toggle},
		TweetHandler: &TweetHTTP{Svc: &service.TweetService{Tweets: r, Users: r, Relations: r, Events: events, BG: bg}, Toggle: toggle},
		AuthMW:       authmw.New(tokens, r),
	}
	for _, opt := range opts {
		opt(deps)
	}
	srv := httptest.NewServer(New(deps))
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, db: gdb}
}

type call struct {
	method  string
	path    string
	body    any
	bearer  string
	cookies []*http.Cookie
}

type reply struct {
	Code    int
	Env     Envelope
	Raw     string
	Cookies []*http.Cookie
}

func (s *testServer) do(c call) reply {
	s.t.Helper()
	var body io.Reader
	if c.body != nil {
		b, err := json.Marshal(c.body)
		require.NoError(s.t, err)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(c.method, s.srv.URL+c.path, body)
	require.NoError(s.t, err)
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(s.t, err)

	out := reply{Code: res.StatusCode, Raw: string(raw), Cookies: res.Cookies()}
	if len(raw) > 0 {
		require.NoError(s.t, json.Unmarshal(raw, &out.Env), string(raw))
	}
	return out
}

func (s *testServer) register(username string) {
	s.t.Helper()
	r := s.do(call{method: http.MethodPost, path: "/api/v1/user/register", body: map[string]string{
		"username": username, "email": username + "@example.com", "password": "Secret123", "fullName": username,
	}})
	require.Equal(s.t, http.StatusCreated, r.Code, r.Raw)
}

type session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (s *testServer) login(username string) (session, []*http.Cookie) {
	s.t.Helper()
	r := s.do(call{method: http.MethodPost, path: "/api/v1/user/login", body: map[string]string{
		"username": username, "password": "Secret123",
	}})
	require.Equal(s.t, http.StatusOK, r.Code, r.Raw)
	var sess session
	b, _ := json.Marshal(r.Env.Data)
	require.NoError(s.t, json.Unmarshal(b, &sess))
	return sess, r.Cookies
}

func cookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func dataMap(t *testing.T, env Envelope) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	require.True(t, ok, "data is %T", env.Data)
	return m
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	s.register("alice")

	sess, cookies := s.login("alice")
	require.NotEmpty(t, sess.AccessToken)
	access := cookie(cookies, jwthelp.AccessCookie)
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)
	require.NotNil(t, cookie(cookies, jwthelp.RefreshCookie))

	r := s.do(call{method: http.MethodGet, path: "/api/v1/user/current-user", cookies: []*http.Cookie{access}})
	require.Equal(t, http.StatusOK, r.Code, r.Raw)
	assert.True(t, r.Env.Success)
	assert.Equal(t, "alice", dataMap(t, r.Env)["username"])
	assert.NotContains(t, r.Raw, "password")
	assert.NotContains(t, strings.ToLower(r.Raw), "refreshtokenhash")

	r = s.do(call{method: http.MethodGet, path: "/api/v1/user/current-user", bearer: sess.AccessToken})
	require.Equal(t, http.StatusOK, r.Code)

	r = s.do(call{method: http.MethodPost, path: "/api/v1/user/logout", bearer: sess.AccessToken})
	require.Equal(t, http.StatusOK, r.Code, r.Raw)
	cleared := cookie(r.Cookies, jwthelp.AccessCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	r = s.do(call{method: http.MethodGet, path: "/api/v1/user/current-user", bearer: sess.AccessToken})
	assert.Equal(t, http.StatusForbidden, r.Code)
	assert.False(t, r.Env.Success)
	assert.Nil(t, r.Env.Data)

	r = s.do(call{method: http.MethodPost, path: "/api/v1/user/refresh-token", body: map[string]string{"refreshToken": sess.RefreshToken}})
	assert.Equal(t, http.StatusUnauthorized, r.Code)
	assert.Equal(t, http.StatusUnauthorized, r.Env.StatusCode)
}

func TestRefreshRotatesCookies(t *testing.T) {
	s := newTestServer(t)
	s.register("alice")
	_, cookies := s.login("alice")
	oldRefresh := cookie(cookies, jwthelp.RefreshCookie)

	r := s.do(call{method: http.MethodPost, path: "/api/v1/user/refresh-token", cookies: []*http.Cookie{oldRefresh}})
	require.Equal(t, http.StatusOK, r.Code, r.Raw)
	newRefresh := cookie(r.Cookies, jwthelp.RefreshCookie)
	require.NotNil(t, newRefresh)
	assert.NotEqual(t, oldRefresh.Value, newRefresh.Value)

	r = s.do(call{method: http.MethodPost, path: "/api/v1/user/refresh-token", cookies: []*http.Cookie{oldRefresh}})
	assert.Equal(t, http.StatusUnauthorized, r.Code)
}

func TestRefreshKeepsCookiesOnServerError(t *testing.T) {
	s := newTestServer(t)
	s.register("alice")
	_, cookies := s.login("alice")
	refresh := cookie(cookies, jwthelp.RefreshCookie)

	sqlDB, err := s.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	r := s.do(call{method: http.MethodPost, path: "/api/v1/user/refresh-token", cookies: []*http.Cookie{refresh}})
	assert.Equal(t, http.StatusInternalServerError, r.Code)
	assert.Nil(t, cookie(r.Cookies, jwthelp.RefreshCookie), "cookies must survive a server-side failure")
	assert.Nil(t, cookie(r.Cookies, jwthelp.AccessCookie))
}

func TestRefreshClearsCookiesWhenRejected(t *testing.T) {
	s := newTestServer(t)
	r := s.do(call{method: http.MethodPost, path: "/api/v1/user/refresh-token", cookies: []*http.Cookie{
		{Name: jwthelp.RefreshCookie, Value: "not-a-token"},
	}})
	assert.Equal(t, http.StatusUnauthorized, r.Code)
	cleared := cookie(r.Cookies, jwthelp.RefreshCookie)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
}

func TestClientRefreshesWithCSRFEnabled(t *testing.T) {
	s := newTestServer(t, func(d *Deps) {
		d.CSRF = SessionCSRF(jwthelp.Cookies{}, nil)
	})
	s.register("alice")

	c, err := authclient.NewClient(s.srv.URL, &authclient.MemoryStore{})
	require.NoError(t, err)
	require.NoError(t, c.Login(context.Background(), "alice", "Secret123"))

	current := c.Session().Tokens()
	require.NoError(t, c.Session().LogIn(authclient.Tokens{AccessToken: "stale", RefreshToken: current.RefreshToken}))

	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/api/v1/tweet", strings.NewReader(`{"content":"hello"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, authclient.StateLoggedIn, c.Session().State())
	assert.NotEqual(t, current.RefreshToken, c.Session().Tokens().RefreshToken)

	// A cookie-authenticated write without the CSRF header is still rejected.
	_, cookies := s.login("alice")
	r := s.do(call{method: http.MethodPost, path: "/api/v1/tweet", body: map[string]string{"content": "forged"}, cookies: cookies})
	assert.Equal(t, http.StatusForbidden, r.Code)
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	s := newTestServer(t)
	r := s.do(call{method: http.MethodPost, path: "/api/v1/user/register", body: map[string]string{
		"username": "alice", "email": "alice@example.com", "password": strings.Repeat("p", 80),
	}})
	assert.Equal(t, http.StatusBadRequest, r.Code, r.Raw)
	assert.Equal(t, http.StatusBadRequest, r.Env.StatusCode)
}

func TestCookieTakesPrecedenceOverBearer(t *testing.T) {
	s := newTestServer(t)
	s.register("alice")
	s.register("bob")
	_, aliceCookies := s.login("alice")
	bobSess, _ := s.login("bob")

	r := s.do(call{
		method:  http.MethodGet,
		path:    "/api/v1/user/current-user",
		bearer:  bobSess.AccessToken,
		cookies: []*http.Cookie{cookie(aliceCookies, jwthelp.AccessCookie)},
	})
	require.Equal(t, http.StatusOK, r.Code)
	assert.Equal(t, "alice", dataMap(t, r.Env)["username"])
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	s := newTestServer(t)

	for _, c := range []call{
		{method: http.MethodGet, path: "/api/v1/user/current-user"},
		{method: http.MethodPost, path: "/api/v1/video/upload", body: map[string]string{}},
		{method: http.MethodPost, path: "/api/v1/tweet", body: map[string]string{"content": "hi"}},
		{method: http.MethodGet, path: "/api/v1/user/history", bearer: "not-a-jwt"},
	} {
		r := s.do(c)
		assert.Equal(t, http.StatusUnauthorized, r.Code, c.path)
		assert.Equal(t, http.StatusUnauthorized, r.Env.StatusCode)
		assert.False(t, r.Env.Success)
	}
}

func TestLikeToggleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.register("alice")
	sess, _ := s.login("alice")

	r := s.do(call{method: http.MethodPost, path: "/api/v1/video/upload", bearer: sess.AccessToken, body: map[string]any{
		"title": "intro", "description": "first video", "videoFile": "https://cdn.example.com/intro.mp4",
	}})
	require.Equal(t, http.StatusCreated, r.Code, r.Raw)
	videoID := dataMap(t, r.Env)["_id"].(string)

	r = s.do(call{method: http.MethodPost, path: "/api/v1/video/" + videoID + "/like", bearer: sess.AccessToken})
	require.Equal(t, http.StatusOK, r.Code, r.Raw)
	assert.Equal(t, map[string]any{"active": true, "count": float64(1)}, r.Env.Data)

	r = s.do(call{method: http.MethodPost, path: "/api/v1/video/" + videoID + "/like", bearer: sess.AccessToken})
	assert.Equal(t, map[string]any{"active": false, "count": float64(0)}, r.Env.Data)

	s.do(call{method: http.MethodGet, path: "/api/v1/video/" + videoID})
	r = s.do(call{method: http.MethodGet, path: "/api/v1/video/" + videoID})
	require.Equal(t, http.StatusOK, r.Code)
	assert.EqualValues(t, 1, dataMap(t, r.Env)["views"])

	r = s.do(call{method: http.MethodPost, path: "/api/v1/video/not-a-uuid/like", bearer: sess.AccessToken})
	assert.Equal(t, http.StatusBadRequest, r.Code)

	r = s.do(call{method: http.MethodPost, path: "/api/v1/user/subscribe/alice", bearer: sess.AccessToken})
	assert.Equal(t, http.StatusBadRequest, r.Code)
}

func TestErrorEnvelope(t *testing.T) {
	s := newTestServer(t)
	s.register("alice")

	r := s.do(call{method: http.MethodGet, path: "/api/v1/nope"})
	assert.Equal(t, http.StatusNotFound, r.Code)
	assert.Equal(t, Envelope{StatusCode: http.StatusNotFound, Message: "Not Found"}, r.Env)

	r = s.do(call{method: http.MethodPost, path: "/api/v1/user/register", body: map[string]string{
		"username": "alice", "email": "other@example.com", "password": "x",
	}})
	assert.Equal(t, http.StatusConflict, r.Code)
	assert.NotEmpty(t, r.Env.Message)

	r = s.do(call{method: http.MethodPost, path: "/api/v1/user/login", body: map[string]string{"username": "alice", "password": "bad"}})
	assert.Equal(t, http.StatusUnauthorized, r.Code)
	assert.Equal(t, "invalid username or password", r.Env.Message)

	r = s.do(call{method: http.MethodPost, path: "/api/v1/tweet", body: map[string]string{"content": strings.Repeat("x", 20<<10)}})
	assert.GreaterOrEqual(t, r.Code, 400)
	assert.False(t, r.Env.Success)

	r = s.do(call{method: http.MethodGet, path: "/health/ready"})
	assert.Equal(t, http.StatusOK, r.Code)
}
