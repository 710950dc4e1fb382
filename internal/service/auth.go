package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/internal/repo"
	pkg_hash "github.com/Skotchmaster/streamtweet/pkg/hash"
	"github.com/Skotchmaster/streamtweet/pkg/logging"
)

type AuthService struct {
	Users  UserStore
	Tokens *TokenService
	Events EventPublisher
	BG     BackgroundRunner
	Clock  clockwork.Clock
}

type RegisterInput struct {
	Username      string
	Email         string
	Password      string
	FullName      string
	AvatarURL     string
	CoverImageURL string
}

type LoginResult struct {
	User *models.User
	*TokenPair
}

var errBadCredentials = apperr.Unauthorized("invalid username or password")

func (s *AuthService) now() time.Time {
	if s.Clock == nil {
		return time.Now().UTC()
	}
	return s.Clock.Now().UTC()
}

func checkPasswordLength(password string) error {
	if len(password) > pkg_hash.MaxPasswordBytes {
		return apperr.InvalidArgument(fmt.Sprintf("password must be at most %d bytes", pkg_hash.MaxPasswordBytes))
	}
	return nil
}

// hashErr keeps bcrypt's input rejection a client error.
func hashErr(msg string, err error) error {
	if errors.Is(err, pkg_hash.ErrPasswordTooLong) {
		return apperr.InvalidArgument("password is too long")
	}
	return apperr.Internal(msg, err)
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, apperr.InvalidArgument("username, email and password are required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, apperr.InvalidArgument("email is not valid")
	}
	if err := checkPasswordLength(in.Password); err != nil {
		return nil, err
	}

	pwHash, err := pkg_hash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_error", "reason", "cannot hash the password", "error", err)
		return nil, hashErr("cannot register user", err)
	}

	user := &models.User{
		Username:      in.Username,
		Email:         in.Email,
		FullName:      in.FullName,
		AvatarURL:     in.AvatarURL,
		CoverImageURL: in.CoverImageURL,
		PasswordHash:  pwHash,
	}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_error", "status", 409, "reason", "user already exist")
			return nil, apperr.Conflict("user with email or username already exists")
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, apperr.Internal("cannot register user", err)
	}

	emit(s.BG, s.Events, TopicUserEvents, Event{Type: "user_registered", ActorID: user.ID, TargetID: user.ID, Timestamp: s.now()})
	return user, nil
}

// Login accepts either the username or the email as identifier.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")
	if strings.TrimSpace(identifier) == "" || password == "" {
		return nil, apperr.InvalidArgument("username or email and password are required")
	}

	user, err := s.Users.GetUserByLogin(ctx, identifier)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "user does not exist")
			return nil, errBadCredentials
		}
		return nil, apperr.Internal("cannot login", err)
	}
	if !pkg_hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password", "user_id", user.ID)
		return nil, errBadCredentials
	}

	pair, err := s.Tokens.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, TokenPair: pair}, nil
}

func (s *AuthService) LogOut(ctx context.Context, userID uuid.UUID) error {
	return s.Tokens.Revoke(ctx, userID)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	if refreshToken == "" {
		return nil, apperr.Unauthorized("unauthorized request")
	}
	pair, err := s.Tokens.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	user, err := s.Users.GetUserByID(ctx, pair.UserID)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}
	return &LoginResult{User: user, TokenPair: pair}, nil
}

// ChangePassword also ends the session, so every device has to log in again.
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if current == "" || next == "" {
		return apperr.InvalidArgument("current and new password are required")
	}
	if err := checkPasswordLength(next); err != nil {
		return err
	}
	user, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return userLookupErr(err)
	}
	if !pkg_hash.CheckPassword(user.PasswordHash, current) {
		return apperr.InvalidArgument("invalid current password")
	}
	pwHash, err := pkg_hash.HashPassword(next)
	if err != nil {
		return hashErr("cannot change password", err)
	}
	if err := s.Users.UpdatePasswordHash(ctx, userID, pwHash); err != nil {
		return userLookupErr(err)
	}
	return nil
}

func (s *AuthService) UpdateAccount(ctx context.Context, userID uuid.UUID, fullName, email string) (*models.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.ToLower(strings.TrimSpace(email))
	if fullName == "" || email == "" {
		return nil, apperr.InvalidArgument("fullName and email are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.InvalidArgument("email is not valid")
	}

	user, err := s.Users.UpdateUserFields(ctx, userID, map[string]any{"full_name": fullName, "email": email})
	if err != nil {
		if errors.Is(err, repo.ErrEmailAlreadyTaken) {
			return nil, apperr.Conflict("email already in use")
		}
		return nil, userLookupErr(err)
	}
	return user, nil
}

func (s *AuthService) ChangeAvatar(ctx context.Context, userID uuid.UUID, avatarURL string) (*models.User, error) {
	avatarURL = strings.TrimSpace(avatarURL)
	if avatarURL == "" {
		return nil, apperr.InvalidArgument("avatar file is missing")
	}
	user, err := s.Users.UpdateUserFields(ctx, userID, map[string]any{"avatar_url": avatarURL})
	if err != nil {
		return nil, userLookupErr(err)
	}
	return user, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, userLookupErr(err)
	}
	return user, nil
}

func userLookupErr(err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	return apperr.Internal("user store failure", err)
}
