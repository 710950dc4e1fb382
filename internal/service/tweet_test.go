package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/streamtweet/internal/apperr"
	"github.com/Skotchmaster/streamtweet/internal/models"
)

func TestTweetService_CreateAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	tw, err := env.Tweets.Create(ctx, alice.ID, "  hello world ")
	require.NoError(t, err)
	assert.Equal(t, "hello world", tw.Content)
	require.NotNil(t, tw.Owner)
	assert.Equal(t, "alice", tw.Owner.Username)

	_, err = env.Toggle.Toggle(ctx, bob.ID, tw.ID, models.KindTweetLike)
	require.NoError(t, err)

	page, err := env.Tweets.List(ctx, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.EqualValues(t, 1, page.Items[0].LikesCount)
}

func TestTweetService_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")

	_, err := env.Tweets.Create(context.Background(), alice.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = env.Tweets.Create(context.Background(), alice.ID, strings.Repeat("я", MaxTweetLength+1))
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = env.Tweets.Create(context.Background(), alice.ID, strings.Repeat("я", MaxTweetLength))
	assert.NoError(t, err)
}

func TestTweetService_DeleteOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	tw, err := env.Tweets.Create(ctx, alice.ID, "mine")
	require.NoError(t, err)
	_, err = env.Toggle.Toggle(ctx, bob.ID, tw.ID, models.KindTweetLike)
	require.NoError(t, err)

	err = env.Tweets.Delete(ctx, bob.ID, tw.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, env.Tweets.Delete(ctx, alice.ID, tw.ID))

	err = env.Tweets.Delete(ctx, alice.ID, tw.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = env.Toggle.Toggle(ctx, bob.ID, tw.ID, models.KindTweetLike)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
