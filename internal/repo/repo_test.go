package repo

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/streamtweet/internal/models"
	"github.com/Skotchmaster/streamtweet/pkg/db"
)

func InitTestDB(t *testing.T) *GormRepo {
	t.Helper()
	gdb, err := db.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	r := New(gdb)
	require.NoError(t, r.Migrate(context.Background()))
	return r
}

func createUser(t *testing.T, r *GormRepo, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"}
	require.NoError(t, r.CreateUser(context.Background(), u))
	return u
}

func TestCreateUser_Conflict(t *testing.T) {
	r := InitTestDB(t)
	ctx := context.Background()
	createUser(t, r, "alice")

	err := r.CreateUser(ctx, &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrUserAlreadyExist)

	err = r.CreateUser(ctx, &models.User{Username: "other", Email: "alice@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, ErrUserAlreadyExist)
}

func TestGetUserByLogin_UsernameOrEmail(t *testing.T) {
	r := InitTestDB(t)
	ctx := context.Background()
	u := createUser(t, r, "alice")

	byName, err := r.GetUserByLogin(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byEmail, err := r.GetUserByLogin(ctx, " alice@example.com ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = r.GetUserByLogin(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRotateRefreshHash_CompareAndSwap(t *testing.T) {
	r := InitTestDB(t)
	ctx := context.Background()
	u := createUser(t, r, "alice")

	require.NoError(t, r.SetRefreshHash(ctx, u.ID, "h1"))

	ok, err := r.RotateRefreshHash(ctx, u.ID, "h1", "h2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.RotateRefreshHash(ctx, u.ID, "h1", "h3")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.RotateRefreshHash(ctx, u.ID, "", "h4")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", got.RefreshTokenHash)

	assert.ErrorIs(t, r.SetRefreshHash(ctx, uuid.New(), "h"), ErrNotFound)
}

func createVideo(t *testing.T, r *GormRepo, owner *models.User) *models.Video {
	t.Helper()
	v := &models.Video{OwnerID: owner.ID, Title: "t", VideoFileURL: "https://cdn/x.mp4", IsPublished: true}
	require.NoError(t, r.CreateVideo(context.Background(), v))
	return v
}

func createTweet(t *testing.T, r *GormRepo, owner *models.User) *models.Tweet {
	t.Helper()
	tw := &models.Tweet{OwnerID: owner.ID, Content: "hello"}
	require.NoError(t, r.CreateTweet(context.Background(), tw))
	return tw
}

func TestToggleRelation_RoundTrip(t *testing.T) {
	r := InitTestDB(t)
	ctx := context.Background()
	v := createVideo(t, r, createUser(t, r, "owner"))
	e := Edge{ActorID: uuid.New(), TargetID: v.ID, Kind: models.KindVideoLike}

	active, count, err := r.ToggleRelation(ctx, e)
	require.NoError(t, err)
	assert.True(t, active)
	assert.EqualValues(t, 1, count)

	active, count, err = r.ToggleRelation(ctx, e)
	require.NoError(t, err)
	assert.False(t, active)
	assert.EqualValues(t, 0, count)
}

func TestSetRelation_Idempotent(t *testing.T) {
	r := InitTestDB(t)
	ctx := context.Background()
	e := Edge{ActorID: uuid.New(), TargetID: createUser(t, r, "channel").ID, Kind: models.KindChannelSubscription}

	for i := 0; i < 2; i++ {
		count, err := r.SetRelation(ctx, e, true)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)
	}
	for i := 0; i < 2; i++ {
		count, err := r.SetRelation(ctx, e, false)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	}
}

func TestCountsByTargets(t *testing.T) {
	r := InitTestDB(t)
	ctx := context.Background()
	owner := createUser(t, r, "owner")
	a, b := createTweet(t, r, owner).ID, createVideo(t, r, owner).ID

	for i := 0; i < 3; i++ {
		_, err := r.SetRelation(ctx, Edge{ActorID: uuid.New(), TargetID: a, Kind: models.KindTweetLike}, true)
		require.NoError(t, err)
	}
	_, err := r.SetRelation(ctx, Edge{ActorID: uuid.New(), TargetID: b, Kind: models.KindVideoLike}, true)
	require.NoError(t, err)

	counts, err := r.CountsByTargets(ctx, []uuid.UUID{a, b}, models.KindTweetLike)
	require.NoError(t, err)
	assert.EqualValues(t, 3, counts[a])
	assert.EqualValues(t, 0, counts[b])
}

func TestIncrementViewsAndDeleteVideo(t *testing.T) {
	r := InitTestDB(t)
	ctx := context.Background()
	owner := createUser(t, r, "alice")
	v := createVideo(t, r, owner)

	for i := 0; i < 3; i++ {
		require.NoError(t, r.IncrementViews(ctx, v.ID))
	}
	got, err := r.GetVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, got.Views)

	_, err = r.SetRelation(ctx, Edge{ActorID: owner.ID, TargetID: v.ID, Kind: models.KindVideoLike}, true)
	require.NoError(t, err)
	require.NoError(t, r.DeleteVideo(ctx, v.ID))

	n, err := r.CountRelations(ctx, v.ID, models.KindVideoLike)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.ErrorIs(t, r.DeleteVideo(ctx, v.ID), ErrNotFound)
	assert.ErrorIs(t, r.IncrementViews(ctx, v.ID), ErrNotFound)
}

func TestRelationInsert_RequiresLiveTarget(t *testing.T) {
	r := InitTestDB(t)
	ctx := context.Background()
	owner := createUser(t, r, "alice")
	v := createVideo(t, r, owner)
	tw := createTweet(t, r, owner)
	require.NoError(t, r.DeleteVideo(ctx, v.ID))
	require.NoError(t, r.DeleteTweet(ctx, tw.ID))

	tests := []Edge{
		{ActorID: owner.ID, TargetID: v.ID, Kind: models.KindVideoLike},
		{ActorID: owner.ID, TargetID: tw.ID, Kind: models.KindTweetLike},
		{ActorID: owner.ID, TargetID: uuid.New(), Kind: models.KindChannelSubscription},
	}
	for _, e := range tests {
		t.Run(string(e.Kind), func(t *testing.T) {
			_, _, err := r.ToggleRelation(ctx, e)
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = r.SetRelation(ctx, e, true)
			assert.ErrorIs(t, err, ErrNotFound)

			n, err := r.CountRelations(ctx, e.TargetID, e.Kind)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}

	_, err := r.SetRelation(ctx, tests[0], false)
	assert.NoError(t, err)
}

func TestVideosByIDs_PreservesOrder(t *testing.T) {
	r := InitTestDB(t)
	ctx := context.Background()
	owner := createUser(t, r, "alice")

	var ids []uuid.UUID
	for _, title := range []string{"a", "b", "c"} {
		v := &models.Video{OwnerID: owner.ID, Title: title, VideoFileURL: "https://cdn/" + title + ".mp4", IsPublished: true}
		require.NoError(t, r.CreateVideo(ctx, v))
		ids = append(ids, v.ID)
	}

	got, err := r.VideosByIDs(ctx, []uuid.UUID{ids[2], uuid.New(), ids[0]})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].Title)
	assert.Equal(t, "a", got[1].Title)
}
