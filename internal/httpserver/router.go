package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	jwthelp "github.com/Skotchmaster/streamtweet/internal/jwt"
	"github.com/Skotchmaster/streamtweet/internal/metrics"
	authmw "github.com/Skotchmaster/streamtweet/internal/middleware/auth"
	"github.com/Skotchmaster/streamtweet/internal/middleware/ratelimit"
	"github.com/Skotchmaster/streamtweet/pkg/middleware/csrf"
	loggingmw "github.com/Skotchmaster/streamtweet/pkg/middleware/logging"
)

const bodyLimit = "16K"

type Deps struct {
	Logger *slog.Logger
	Ready  func(ctx context.Context) error

	AuthHandler  *AuthHTTP
	UserHandler  *UserHTTP
	VideoHandler *VideoHTTP
	TweetHandler *TweetHTTP

	AuthMW      *authmw.Middleware
	AuthLimiter *ratelimit.Limiter

	Registry    *prometheus.Registry
	HTTPMetrics *metrics.HTTPMetrics

	CORSOrigins []string
	// CSRF is nil when the double-submit check is disabled.
	CSRF *csrf.Config
}

// SessionCSRF builds the double-submit check for cookie sessions. Requests
// without session cookies pass, and so do login and register, which have no
// session yet.
func SessionCSRF(cookies jwthelp.Cookies, origins []string) *csrf.Config {
	cfg := csrf.DefaultConfig()
	cfg.Secure = cookies.Secure
	if cookies.SameSite != 0 {
		cfg.SameSite = cookies.SameSite
	}
	cfg.AllowedOrigins = origins
	cfg.SkipPaths = []string{"/api/v1/user/login", "/api/v1/user/register"}
	cfg.Skipper = csrf.CookielessSkipper(jwthelp.AccessCookie, jwthelp.RefreshCookie)
	return &cfg
}

// New builds the echo instance with the middleware stack and all routes.
func New(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(loggingmw.RequestLogger(d.Logger))
	if d.HTTPMetrics != nil {
		e.Use(d.HTTPMetrics.Middleware())
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     d.CORSOrigins,
		AllowCredentials: true,
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-CSRF-Token"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
	}))
	e.Use(middleware.BodyLimit(bodyLimit))
	if d.CSRF != nil {
		e.Use(csrf.Middleware(*d.CSRF))
	}

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return respond(c, http.StatusServiceUnavailable, nil, "database unavailable")
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(metrics.Handler(d.Registry)))
	}

	v1 := e.Group("/api/v1")
	auth := d.AuthMW.RequireAuth
	optional := d.AuthMW.Optional

	limited := []echo.MiddlewareFunc{}
	if d.AuthLimiter != nil {
		limited = append(limited, d.AuthLimiter.Middleware())
	}

	user := v1.Group("/user")
	user.POST("/register", d.AuthHandler.Register, limited...)
	user.POST("/login", d.AuthHandler.Login, limited...)
	user.POST("/refresh-token", d.AuthHandler.Refresh, limited...)
	user.POST("/logout", d.AuthHandler.LogOut, auth)
	user.POST("/change-password", d.AuthHandler.ChangePassword, auth)
	user.POST("/change-current-password", d.AuthHandler.ChangePassword, auth)
	user.GET("/current-user", d.UserHandler.CurrentUser, auth)
	user.PATCH("/update-account-details", d.UserHandler.UpdateAccount, auth)
	user.PATCH("/change-avatar", d.UserHandler.ChangeAvatar, auth)
	user.GET("/c/:username", d.UserHandler.ChannelProfile, optional)
	user.GET("/channel/:username", d.UserHandler.ChannelInfo, auth)
	user.GET("/history", d.UserHandler.WatchHistory, auth)
	user.POST("/subscribe/:username", d.UserHandler.Subscribe, auth)
	user.POST("/unsubscribe/:username", d.UserHandler.Unsubscribe, auth)
	user.GET("/subscriptions", d.UserHandler.Subscriptions, auth)
	user.GET("/likedvideos", d.UserHandler.LikedVideos, auth)

	video := v1.Group("/video")
	video.GET("", d.VideoHandler.Feed)
	video.GET("/search", d.VideoHandler.Search)
	video.GET("/:videoId", d.VideoHandler.Get, optional)
	video.POST("/upload", d.VideoHandler.Upload, auth)
	video.PATCH("/:videoId", d.VideoHandler.Update, auth)
	video.DELETE("/:videoId", d.VideoHandler.Delete, auth)
	video.POST("/:videoId/like", d.VideoHandler.ToggleLike, auth)

	tweet := v1.Group("/tweet")
	tweet.GET("", d.TweetHandler.List)
	tweet.POST("", d.TweetHandler.Create, auth)
	tweet.DELETE("/:tweetId", d.TweetHandler.Delete, auth)
	tweet.POST("/:tweetId/like", d.TweetHandler.ToggleLike, auth)
}
