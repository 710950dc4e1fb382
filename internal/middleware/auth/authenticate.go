package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	jwthelp "github.com/Skotchmaster/streamtweet/internal/jwt"
	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/repo"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
	"github.com/Skotchmaster/streamtweet/pkg/tokens"
)

const userKey = "currentUser"

type TokenValidator interface {
	ValidateAccess(token string) (uuid.UUID, error)
}

type UserLoader interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Middleware struct {
	Tokens TokenValidator
	Users  UserLoader
}

func New(tokens TokenValidator, users UserLoader) *Middleware {
	return &Middleware{Tokens: tokens, Users: users}
}

// RequireAuth rejects the request unless it carries a valid access token for
// a user with an active session.
func (m *Middleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := tokenFromRequest(c)
		if raw == "" {
			return apperr.Unauthorized("unauthorized request")
		}
		u, err := m.authenticate(c.Request().Context(), raw)
		if err != nil {
			return err
		}
		setUser(c, u)
		return next(c)
	}
}

// Optional attaches the user when the token is valid and otherwise lets the
// request through anonymously.
func (m *Middleware) Optional(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if raw := tokenFromRequest(c); raw != "" {
			if u, err := m.authenticate(c.Request().Context(), raw); err == nil {
				setUser(c, u)
			}
		}
		return next(c)
	}
}

func (m *Middleware) authenticate(ctx context.Context, raw string) (*models.User, error) {
	l := logging.FromContext(ctx).With("mw", "auth")

	id, err := m.Tokens.ValidateAccess(raw)
	if err != nil {
		if errors.Is(err, tokens.ErrExpiredToken) {
			return nil, apperr.Unauthorized("access token expired")
		}
		l.Debug("access_token_rejected", "error", err)
		return nil, apperr.Unauthorized("invalid access token")
	}

	u, err := m.Users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid access token")
		}
		return nil, apperr.Internal("cannot load user", err)
	}
	if u.RefreshTokenHash == "" {
		return nil, apperr.Forbidden("session has been invalidated")
	}

	u.PasswordHash = ""
	u.RefreshTokenHash = ""
	return u, nil
}

// tokenFromRequest prefers the cookie over the Authorization header.
func tokenFromRequest(c echo.Context) string {
	if ck, err := c.Cookie(jwthelp.AccessCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	h := c.Request().Header.Get(echo.HeaderAuthorization)
	if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func setUser(c echo.Context, u *models.User) {
	c.Set(userKey, u)
	ctx := logging.IntoContext(c.Request().Context(), logging.FromContext(c.Request().Context()).With("user_id", u.ID))
	c.SetRequest(c.Request().WithContext(ctx))
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c echo.Context) *models.User {
	u, _ := c.Get(userKey).(*models.User)
	return u
}

// CurrentUserID returns uuid.Nil for anonymous requests.
func CurrentUserID(c echo.Context) uuid.UUID {
	if u := CurrentUser(c); u != nil {
		return u.ID
	}
	return uuid.Nil
}
