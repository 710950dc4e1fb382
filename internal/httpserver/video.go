package httpserver

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	authmw "github.com/Skotchmaster/streamtweet/internal/middleware/auth"
	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/service"
	"github.com/Skotchmaster/streamtweet/internal/util"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
)

type VideoHTTP struct {
	Svc    *service.VideoService
	Toggle *service.ToggleEngine
}

type pageResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

func paging(c echo.Context) (page, size, from int) {
	page = util.ParseIntDefault(c.QueryParam("page"), 1)
	from, size = util.Calculate(page, util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize))
	if page < 1 {
		page = 1
	}
	return page, size, from
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.InvalidArgument("invalid " + name)
	}
	return id, nil
}

func (h *VideoHTTP) Feed(c echo.Context) error {
	page, size, from := paging(c)
	res, err := h.Svc.Feed(c.Request().Context(), from, size)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pageResponse[service.VideoView]{Items: res.Items, Total: res.Total, Page: page, Size: size}, "videos fetched")
}

func (h *VideoHTTP) Search(c echo.Context) error {
	page, size, from := paging(c)
	res, err := h.Svc.Search(c.Request().Context(), c.QueryParam("q"), from, size)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, pageResponse[service.VideoView]{Items: res.Items, Total: res.Total, Page: page, Size: size}, "search results")
}

func (h *VideoHTTP) Get(c echo.Context) error {
	id, err := pathID(c, "videoId")
	if err != nil {
		return err
	}
	v, err := h.Svc.Get(c.Request().Context(), authmw.CurrentUserID(c), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, v, "video fetched")
}

func (h *VideoHTTP) Upload(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "video_upload")

	var req struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		VideoFile   string  `json:"videoFile"`
		Thumbnail   string  `json:"thumbnail"`
		Duration    float64 `json:"duration"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("upload_error", "status", 400, "error", err)
		return apperr.InvalidArgument("invalid body")
	}

	v, err := h.Svc.Upload(ctx, authmw.CurrentUserID(c), service.UploadInput{
		Title:        req.Title,
		Description:  req.Description,
		VideoFileURL: req.VideoFile,
		ThumbnailURL: req.Thumbnail,
		Duration:     req.Duration,
	})
	if err != nil {
		l.Warn("upload_failed", "error", err)
		return err
	}
	l.Info("video_uploaded", "video_id", v.ID)
	return respond(c, http.StatusCreated, v, "video uploaded successfully")
}

func (h *VideoHTTP) Update(c echo.Context) error {
	id, err := pathID(c, "videoId")
	if err != nil {
		return err
	}
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Thumbnail   *string `json:"thumbnail"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidArgument("invalid body")
	}
	v, err := h.Svc.Update(c.Request().Context(), authmw.CurrentUserID(c), id, service.VideoPatch{
		Title:        req.Title,
		Description:  req.Description,
		ThumbnailURL: req.Thumbnail,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, v, "video updated")
}

func (h *VideoHTTP) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "video_delete")

	id, err := pathID(c, "videoId")
	if err != nil {
		return err
	}
	if err := h.Svc.Delete(ctx, authmw.CurrentUserID(c), id); err != nil {
		l.Warn("delete_failed", "video_id", id, "error", err)
		return err
	}
	return respond(c, http.StatusOK, struct{}{}, "video deleted")
}

func (h *VideoHTTP) ToggleLike(c echo.Context) error {
	id, err := pathID(c, "videoId")
	if err != nil {
		return err
	}
	res, err := h.Toggle.Toggle(c.Request().Context(), authmw.CurrentUserID(c), id, models.KindVideoLike)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, res, likeMessage(res.Active))
}

func likeMessage(active bool) string {
	if active {
		return "liked"
	}
	return "like removed"
}
