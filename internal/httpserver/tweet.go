package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	authmw "github.com/Skotchmaster/streamtweet/internal/middleware/auth"
	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/service"
)

type TweetHTTP struct {
	Svc    *service.TweetService
	Toggle *service.ToggleEngine
}

func (h *TweetHTTP) List(c echo.Context) error {
	page, size, from := paging(c)
	res, err := h.Svc.List(c.Request().Context(), from, size)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pageResponse[service.TweetView]{Items: res.Items, Total: res.Total, Page: page, Size: size}, "tweets fetched")
}

func (h *TweetHTTP) Create(c echo.Context) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidArgument("invalid body")
	}
	t, err := h.Svc.Create(c.Request().Context(), authmw.CurrentUserID(c), req.Content)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, t, "tweet created")
}

func (h *TweetHTTP) Delete(c echo.Context) error {
	id, err := pathID(c, "tweetId")
	if err != nil {
		return err
	}
	if err := h.Svc.Delete(c.Request().Context(), authmw.CurrentUserID(c), id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, struct{}{}, "tweet deleted")
}

func (h *TweetHTTP) ToggleLike(c echo.Context) error {
	id, err := pathID(c, "tweetId")
	if err != nil {
		return err
	}
	res, err := h.Toggle.Toggle(c.Request().Context(), authmw.CurrentUserID(c), id, models.KindTweetLike)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, res, likeMessage(res.Active))
}
