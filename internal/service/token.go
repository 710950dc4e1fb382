package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	jwthelp "github.com/Skotchmaster/streamtweet/internal/jwt"
	"github.com/Skotchmaster/streamtweet/internal/repo"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
	"github.com/Skotchmaster/streamtweet/pkg/tokens"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenService issues and verifies session tokens. Each user has at most one
// live refresh token: its hash on the user row. Issuing a new pair replaces it.
type TokenService struct {
	Users         SessionStore
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Clock         clockwork.Clock
}

type TokenPair struct {
	UserID       uuid.UUID
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

var errRefreshRejected = apperr.Unauthorized("refresh token is expired or used")

func (s *TokenService) clock() clockwork.Clock {
	if s.Clock == nil {
		return clockwork.NewRealClock()
	}
	return s.Clock
}

func (s *TokenService) ttls() (time.Duration, time.Duration) {
	access, refresh := s.AccessTTL, s.RefreshTTL
	if access <= 0 {
		access = DefaultAccessTTL
	}
	if refresh <= 0 {
		refresh = DefaultRefreshTTL
	}
	return access, refresh
}

func (s *TokenService) CreateAccessToken(userID uuid.UUID, exp time.Time) (string, error) {
	return tokens.Sign(tokens.AccessClaims{
		Type: tokens.TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        jwthelp.NewJTI(),
			IssuedAt:  jwt.NewNumericDate(s.clock().Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}, s.AccessSecret)
}

func (s *TokenService) CreateRefreshToken(userID uuid.UUID, exp time.Time) (string, error) {
	return tokens.Sign(tokens.RefreshClaims{
		Type: tokens.TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        jwthelp.NewJTI(),
			IssuedAt:  jwt.NewNumericDate(s.clock().Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}, s.RefreshSecret)
}

func (s *TokenService) mint(userID uuid.UUID) (*TokenPair, error) {
	accessTTL, refreshTTL := s.ttls()
	now := s.clock().Now()
	pair := &TokenPair{
		UserID:     userID,
		AccessExp:  now.Add(accessTTL),
		RefreshExp: now.Add(refreshTTL),
	}

	var err error
	if pair.AccessToken, err = s.CreateAccessToken(userID, pair.AccessExp); err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	if pair.RefreshToken, err = s.CreateRefreshToken(userID, pair.RefreshExp); err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return pair, nil
}

// Issue mints a fresh pair and makes its refresh token the user's only valid one.
func (s *TokenService) Issue(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	pair, err := s.mint(userID)
	if err != nil {
		return nil, apperr.Internal("cannot issue tokens", err)
	}
	if err := s.Users.SetRefreshHash(ctx, userID, jwthelp.Sha256Hex(pair.RefreshToken)); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.Unauthorized("user does not exist")
		}
		return nil, apperr.Internal("cannot store refresh token", err)
	}
	return pair, nil
}

// ValidateAccess returns the token subject or tokens.ErrExpiredToken / tokens.ErrInvalidToken.
func (s *TokenService) ValidateAccess(token string) (uuid.UUID, error) {
	claims, err := tokens.AccessClaimsFromToken(token, s.AccessSecret, jwt.WithTimeFunc(s.clock().Now))
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, tokens.ErrInvalidToken
	}
	return id, nil
}

// Refresh exchanges the stored refresh token for a new pair. The swap is a
// compare-and-set on the stored hash, so a token can be redeemed at most once.
func (s *TokenService) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	l := logging.FromContext(ctx).With("svc", "token.refresh")

	claims, err := tokens.RefreshClaimsFromToken(presented, s.RefreshSecret, jwt.WithTimeFunc(s.clock().Now))
	if err != nil {
		l.Info("refresh_rejected", "reason", "token does not verify", "error", err)
		return nil, apperr.Unauthorized("invalid refresh token").Wrap(err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}

	user, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Info("refresh_rejected", "reason", "user does not exist", "user_id", userID)
			return nil, apperr.Unauthorized("invalid refresh token")
		}
		return nil, apperr.Internal("cannot load user", err)
	}

	presentedHash := jwthelp.Sha256Hex(presented)
	if user.RefreshTokenHash == "" || user.RefreshTokenHash != presentedHash {
		l.Info("refresh_rejected", "reason", "token is not the stored one", "user_id", userID)
		return nil, errRefreshRejected
	}

	pair, err := s.mint(userID)
	if err != nil {
		return nil, apperr.Internal("cannot issue tokens", err)
	}
	swapped, err := s.Users.RotateRefreshHash(ctx, userID, presentedHash, jwthelp.Sha256Hex(pair.RefreshToken))
	if err != nil {
		return nil, apperr.Internal("cannot rotate refresh token", err)
	}
	if !swapped {
		l.Info("refresh_rejected", "reason", "lost rotation race", "user_id", userID)
		return nil, errRefreshRejected
	}
	return pair, nil
}

// Revoke ends the user's session; the current refresh token stops working.
func (s *TokenService) Revoke(ctx context.Context, userID uuid.UUID) error {
	if err := s.Users.SetRefreshHash(ctx, userID, ""); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return apperr.Internal("cannot revoke session", err)
	}
	return nil
}
