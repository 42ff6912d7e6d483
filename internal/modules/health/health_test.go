package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/database/dbtest"
	"github.com/vocalingo/core/internal/pkg/cache"
	"github.com/vocalingo/core/internal/pkg/cron"
	"github.com/vocalingo/core/internal/pkg/quota"
	"github.com/vocalingo/core/internal/pkg/redis/redistest"
)

func newRouter(t *testing.T) (*gin.Engine, *cache.Cache, *int) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rc, _ := redistest.New(t)
	c := cache.New(rc)

	runs := 0
	sched := cron.New(nil)
	require.NoError(t, sched.Register(cron.Job{
		Name:     "noop",
		Interval: time.Hour,
		Fn: func(context.Context) error {
			runs++
			return nil
		},
	}))

	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), dbtest.New(t), rc, c, sched, func(*gin.Context) {})
	return r, c, &runs
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestHealth(t *testing.T) {
	r, _, _ := newRouter(t)
	w := serve(r, http.MethodGet, "/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["redis"])
}

func TestServerTime(t *testing.T) {
	r, _, _ := newRouter(t)
	before := time.Now().UnixMilli()
	w := serve(r, http.MethodGet, "/api/v1/server-time")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct{ T2, T3 int64 }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.GreaterOrEqual(t, body.T2, before)
	assert.GreaterOrEqual(t, body.T3, body.T2)
}

func TestCacheAdmin(t *testing.T) {
	r, c, _ := newRouter(t)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, cache.Key(cache.PrefixFolder, "1"), "a", 0))
	require.NoError(t, c.Set(ctx, cache.Key(cache.PrefixFolder, "2"), "b", 0))
	require.NoError(t, c.Set(ctx, cache.Key(cache.PrefixMastery, "u1"), "c", 0))

	w := serve(r, http.MethodGet, "/api/v1/admin/cache/"+cache.PrefixFolder)
	require.Equal(t, http.StatusOK, w.Code)
	var keys struct{ Data []string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keys))
	assert.Equal(t, []string{cache.Key(cache.PrefixFolder, "1"), cache.Key(cache.PrefixFolder, "2")}, keys.Data)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/api/v1/admin/cache/bogus").Code)

	w = serve(r, http.MethodDelete, "/api/v1/admin/cache/"+cache.PrefixFolder)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, w.Body.String())

	left, err := c.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{cache.Key(cache.PrefixMastery, "u1")}, left)

	w = serve(r, http.MethodDelete, "/api/v1/admin/cache")
	require.Equal(t, http.StatusOK, w.Code)
	left, err = c.Keys(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCacheAdminReachesQuotaCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rc, _ := redistest.New(t)
	c := cache.New(rc)
	gate := quota.New(rc, nil)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), dbtest.New(t), rc, c, cron.New(nil), func(*gin.Context) {})

	ctx := context.Background()
	user := quota.Subject{UserID: "u1", Role: "user"}
	for i := 0; i < 3; i++ {
		require.NoError(t, gate.CheckDaily(ctx, user, quota.ResourceVocabulary, 3))
	}

	w := serve(r, http.MethodGet, "/api/v1/admin/cache/"+cache.PrefixQuota)
	require.Equal(t, http.StatusOK, w.Code)
	var keys struct{ Data []string }
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keys))
	assert.Equal(t, []string{quota.DailyKey(quota.ResourceVocabulary, "u1", time.Now())}, keys.Data)

	w = serve(r, http.MethodDelete, "/api/v1/admin/cache/"+cache.PrefixQuota)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":1}`, w.Body.String())

	used, err := gate.Usage(ctx, "u1", quota.ResourceVocabulary)
	require.NoError(t, err)
	assert.Zero(t, used)
	require.NoError(t, gate.CheckDaily(ctx, user, quota.ResourceVocabulary, 3))
}

func TestCronAdmin(t *testing.T) {
	r, _, runs := newRouter(t)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/api/v1/admin/cron/run/noop").Code)
	assert.Equal(t, 1, *runs)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodPost, "/api/v1/admin/cron/run/missing").Code)

	w := serve(r, http.MethodGet, "/api/v1/admin/cron")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"noop"`)
}
