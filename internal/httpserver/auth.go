package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	jwthelp "github.com/Skotchmaster/streamtweet/internal/jwt"
	authmw "github.com/Skotchmaster/streamtweet/internal/middleware/auth"
	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/service"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
)

type AuthHTTP struct {
	Svc     *service.AuthService
	Cookies jwthelp.Cookies
}

type sessionResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
}

func (h *AuthHTTP) setSession(c echo.Context, res *service.LoginResult) {
	c.SetCookie(h.Cookies.Create(jwthelp.AccessCookie, res.AccessToken, res.AccessExp))
	c.SetCookie(h.Cookies.Create(jwthelp.RefreshCookie, res.RefreshToken, res.RefreshExp))
}

func (h *AuthHTTP) clearSession(c echo.Context) {
	c.SetCookie(h.Cookies.Delete(jwthelp.AccessCookie))
	c.SetCookie(h.Cookies.Delete(jwthelp.RefreshCookie))
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_register")

	var req struct {
		Username      string `json:"username"`
		Email         string `json:"email"`
		Password      string `json:"password"`
		FullName      string `json:"fullName"`
		AvatarURL     string `json:"avatarUrl"`
		CoverImageURL string `json:"coverImageUrl"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "error", err)
		return apperr.InvalidArgument("invalid body")
	}

	u, err := h.Svc.Register(ctx, service.RegisterInput{
		Username:      req.Username,
		Email:         req.Email,
		Password:      req.Password,
		FullName:      req.FullName,
		AvatarURL:     req.AvatarURL,
		CoverImageURL: req.CoverImageURL,
	})
	if err != nil {
		l.Warn("register_failed", "error", err)
		return err
	}

	l.Info("register_success", "user_id", u.ID)
	return respond(c, http.StatusCreated, u, "user registered successfully")
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return apperr.InvalidArgument("invalid body")
	}
	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}

	res, err := h.Svc.Login(ctx, identifier, req.Password)
	if err != nil {
		l.Warn("login_failed", "status", apperr.As(err).HTTPStatus(), "error", err)
		return err
	}

	h.setSession(c, res)
	l.Info("login_successful", "user_id", res.User.ID)
	return respond(c, http.StatusOK, sessionResponse{
		User:         res.User,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}, "user logged in successfully")
}

func (h *AuthHTTP) LogOut(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	if err := h.Svc.LogOut(ctx, authmw.CurrentUserID(c)); err != nil {
		l.Error("logout_failed", "status", 500, "reason", "cannot revoke refresh token", "error", err)
		return err
	}
	h.clearSession(c)

	l.Info("successful_logout")
	return respond(c, http.StatusOK, struct{}{}, "user logged out")
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var token string
	if ck, err := c.Cookie(jwthelp.RefreshCookie); err == nil {
		token = ck.Value
	}
	if token == "" {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := c.Bind(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		l.Warn("refresh_failed", "status", 401, "reason", "missing refresh token")
		return apperr.Unauthorized("unauthorized request")
	}

	res, err := h.Svc.Refresh(ctx, token)
	if err != nil {
		if errors.Is(err, apperr.ErrUnauthorized) {
			h.clearSession(c)
		}
		l.Warn("refresh_failed", "status", apperr.As(err).HTTPStatus(), "error", err)
		return err
	}

	h.setSession(c, res)
	l.Info("refresh_successful", "user_id", res.User.ID)
	return respond(c, http.StatusOK, sessionResponse{
		User:         res.User,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}, "access token refreshed")
}

func (h *AuthHTTP) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_change_password")

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		OldPassword     string `json:"oldPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := c.Bind(&req); err != nil {
		return apperr.InvalidArgument("invalid body")
	}
	current := req.CurrentPassword
	if current == "" {
		current = req.OldPassword
	}

	if err := h.Svc.ChangePassword(ctx, authmw.CurrentUserID(c), current, req.NewPassword); err != nil {
		l.Warn("change_password_failed", "error", err)
		return err
	}
	h.clearSession(c)

	l.Info("password_changed")
	return respond(c, http.StatusOK, struct{}{}, "password changed, please log in again")
}
