package quota

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/cache"
	"github.com/vocalingo/core/internal/pkg/redis/redistest"
)

func newGate(t *testing.T) *Gate {
	rc, srv := redistest.New(t)
	g := New(rc, nil, "admin", "super_admin")
	g.now = func() time.Time { return time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC) }
	srv.SetTime(g.now())
	return g
}

func TestCheckDailyRejectsAtLimitAndRollsBack(t *testing.T) {
	g := newGate(t)
	ctx := context.Background()
	user := Subject{UserID: "u1", Role: "user"}

	for i := 0; i < 3; i++ {
		require.NoError(t, g.CheckDaily(ctx, user, ResourceVocabulary, 3))
	}

	for i := 0; i < 2; i++ {
		err := g.CheckDaily(ctx, user, ResourceVocabulary, 3)
		require.Error(t, err)
		assert.True(t, apperr.IsQuota(err))
		assert.True(t, errors.Is(err, apperr.ErrForbidden))
		assert.False(t, errors.Is(err, apperr.ErrValidation))
	}

	used, err := g.Usage(ctx, "u1", ResourceVocabulary)
	require.NoError(t, err)
	assert.EqualValues(t, 3, used)
}

func TestCheckDailyCounterExpiresAtEndOfDay(t *testing.T) {
	rc, srv := redistest.New(t)
	g := New(rc, nil)
	g.now = func() time.Time { return time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC) }
	srv.SetTime(g.now())

	require.NoError(t, g.CheckDaily(context.Background(), Subject{UserID: "u1"}, ResourceVocabulary, 5))
	ttl := srv.TTL(DailyKey(ResourceVocabulary, "u1", g.now()))
	assert.Equal(t, time.Hour, ttl)
}

func TestDailyKeyUnderQuotaPrefix(t *testing.T) {
	key := DailyKey(ResourceVocabulary, "u1", time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	assert.Equal(t, cache.Key(cache.PrefixQuota, "daily", ResourceVocabulary, "u1", "2026-03-14"), key)
	assert.True(t, strings.HasPrefix(key, cache.Key(cache.PrefixQuota)+":"))
}

func TestRoleBypass(t *testing.T) {
	g := newGate(t)
	ctx := context.Background()
	admin := Subject{UserID: "a1", Role: "admin"}

	for i := 0; i < 5; i++ {
		require.NoError(t, g.CheckDaily(ctx, admin, ResourceVocabulary, 1))
	}
	used, err := g.Usage(ctx, "a1", ResourceVocabulary)
	require.NoError(t, err)
	assert.Zero(t, used)

	err = g.CheckCapacity(ctx, admin, ResourceFolders, 1, func(context.Context) (int64, error) { return 10, nil })
	require.NoError(t, err)
}

func TestRelease(t *testing.T) {
	g := newGate(t)
	ctx := context.Background()
	user := Subject{UserID: "u1", Role: "user"}

	require.NoError(t, g.CheckDaily(ctx, user, ResourceVocabulary, 1))
	g.Release(ctx, user, ResourceVocabulary)
	require.NoError(t, g.CheckDaily(ctx, user, ResourceVocabulary, 1))
}

func TestCheckCapacity(t *testing.T) {
	g := newGate(t)
	ctx := context.Background()
	user := Subject{UserID: "u1", Role: "user"}

	count := func(n int64) func(context.Context) (int64, error) {
		return func(context.Context) (int64, error) { return n, nil }
	}

	require.NoError(t, g.CheckCapacity(ctx, user, ResourceFolders, 3, count(2)))

	err := g.CheckCapacity(ctx, user, ResourceFolders, 3, count(3))
	var qe *apperr.QuotaError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ResourceFolders, qe.Resource)
	assert.False(t, qe.Daily)

	boom := errors.New("db down")
	err = g.CheckCapacity(ctx, user, ResourceFolders, 3, func(context.Context) (int64, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
}
