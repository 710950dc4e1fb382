package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/pkg/tokens"
)

func TestTokenService_IssueAndValidate(t *testing.T) {
	env := newTestEnv(t)
	u := env.register(t, "alice")

	pair, err := env.Tokens.Issue(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, env.Clock.Now().Add(15*time.Minute), pair.AccessExp)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	id, err := env.Tokens.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)

	stored, err := env.Repo.GetUserByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.RefreshTokenHash)
	assert.NotEqual(t, pair.RefreshToken, stored.RefreshTokenHash)
}

func TestTokenService_AccessExpiresAfterTTL(t *testing.T) {
	env := newTestEnv(t)
	u := env.register(t, "alice")

	pair, err := env.Tokens.Issue(context.Background(), u.ID)
	require.NoError(t, err)

	env.Clock.Advance(14 * time.Minute)
	_, err = env.Tokens.ValidateAccess(pair.AccessToken)
	require.NoError(t, err)

	env.Clock.Advance(2 * time.Minute)
	_, err = env.Tokens.ValidateAccess(pair.AccessToken)
	assert.ErrorIs(t, err, tokens.ErrExpiredToken)
}

func TestTokenService_RefreshRotates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "alice")

	first, err := env.Tokens.Issue(ctx, u.ID)
	require.NoError(t, err)

	second, err := env.Tokens.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, second.UserID)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = env.Tokens.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = env.Tokens.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)
}

func TestTokenService_NewLoginInvalidatesPreviousRefresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "alice")

	laptop, err := env.Tokens.Issue(ctx, u.ID)
	require.NoError(t, err)
	_, err = env.Tokens.Issue(ctx, u.ID)
	require.NoError(t, err)

	_, err = env.Tokens.Refresh(ctx, laptop.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestTokenService_RefreshRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "alice")
	pair, err := env.Tokens.Issue(ctx, u.ID)
	require.NoError(t, err)

	t.Run("access token as refresh", func(t *testing.T) {
		_, err := env.Tokens.Refresh(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("refresh token as access", func(t *testing.T) {
		_, err := env.Tokens.ValidateAccess(pair.RefreshToken)
		assert.ErrorIs(t, err, tokens.ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := env.Tokens.Refresh(ctx, "not-a-valid-jwt")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("expired", func(t *testing.T) {
		other := env.register(t, "carol")
		p, err := env.Tokens.Issue(ctx, other.ID)
		require.NoError(t, err)
		env.Clock.Advance(25 * time.Hour)

		_, err = env.Tokens.Refresh(ctx, p.RefreshToken)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})
}

func TestTokenService_RefreshForDeletedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "alice")
	pair, err := env.Tokens.Issue(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, env.Repo.DB.Where("id = ?", u.ID).Delete(&models.User{}).Error)

	_, err = env.Tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = env.Tokens.Issue(ctx, u.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestTokenService_RevokeEndsSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "alice")
	pair, err := env.Tokens.Issue(ctx, u.ID)
	require.NoError(t, err)

	require.NoError(t, env.Tokens.Revoke(ctx, u.ID))
	require.NoError(t, env.Tokens.Revoke(ctx, uuid.New()))

	_, err = env.Tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestTokenService_ConcurrentRefreshSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "alice")
	pair, err := env.Tokens.Issue(ctx, u.ID)
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.Tokens.Refresh(ctx, pair.RefreshToken); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}
