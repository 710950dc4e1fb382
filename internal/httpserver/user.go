package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	authmw "github.com/Skotchmaster/streamtweet/internal/middleware/auth"
	"github.com/Skotchmaster/streamtweet/internal/service"
	"github.com/Skotchmaster/streamtweet/internal/util"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
)

type UserHTTP struct {
	Auth     *service.AuthService
	Channels *service.ChannelService
	Videos   *service.VideoService
}

func (h *UserHTTP) CurrentUser(c echo.Context) error {
	u, err := h.Auth.CurrentUser(c.Request().Context(), authmw.CurrentUserID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, u, "current user fetched")
}

func (h *UserHTTP) UpdateAccount(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_update_account")

	var req struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidArgument("invalid body")
	}
	u, err := h.Auth.UpdateAccount(ctx, authmw.CurrentUserID(c), req.FullName, req.Email)
	if err != nil {
		l.Warn("update_account_failed", "error", err)
		return err
	}
	return respond(c, http.StatusOK, u, "account details updated")
}

func (h *UserHTTP) ChangeAvatar(c echo.Context) error {
	var req struct {
		AvatarURL string `json:"avatarUrl"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidArgument("invalid body")
	}
	u, err := h.Auth.ChangeAvatar(c.Request().Context(), authmw.CurrentUserID(c), req.AvatarURL)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, u, "avatar updated")
}

func (h *UserHTTP) ChannelProfile(c echo.Context) error {
	p, err := h.Channels.Profile(c.Request().Context(), authmw.CurrentUserID(c), c.Param("username"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, p, "channel fetched")
}

func (h *UserHTTP) ChannelInfo(c echo.Context) error {
	info, err := h.Channels.Info(c.Request().Context(), authmw.CurrentUserID(c), c.Param("username"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, info, "channel fetched")
}

func (h *UserHTTP) Subscribe(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "user_subscribe")

	res, err := h.Channels.Subscribe(ctx, authmw.CurrentUserID(c), c.Param("username"))
	if err != nil {
		l.Warn("subscribe_failed", "channel", c.Param("username"), "error", err)
		return err
	}
	return respond(c, http.StatusOK, res, "subscribed")
}

func (h *UserHTTP) Unsubscribe(c echo.Context) error {
	res, err := h.Channels.Unsubscribe(c.Request().Context(), authmw.CurrentUserID(c), c.Param("username"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, res, "unsubscribed")
}

func (h *UserHTTP) Subscriptions(c echo.Context) error {
	subs, err := h.Channels.Subscriptions(c.Request().Context(), authmw.CurrentUserID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, subs, "subscriptions fetched")
}

func (h *UserHTTP) WatchHistory(c echo.Context) error {
	limit := util.ParseIntDefault(c.QueryParam("limit"), 50)
	if limit <= 0 || limit > util.MaxPageSize {
		limit = 50
	}
	items, err := h.Videos.WatchHistory(c.Request().Context(), authmw.CurrentUserID(c), limit)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, items, "watch history fetched")
}

func (h *UserHTTP) LikedVideos(c echo.Context) error {
	items, err := h.Videos.LikedVideos(c.Request().Context(), authmw.CurrentUserID(c))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, items, "liked videos fetched")
}
