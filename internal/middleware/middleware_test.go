package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vocalingo/core/internal/database/dbtest"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/redis/redistest"
)

func do(r http.Handler, method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdentityAndRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := dbtest.New(t)
	admin := models.User{Name: "root", Role: models.RoleAdmin}
	require.NoError(t, db.Create(&admin).Error)

	r := gin.New()
	r.Use(Identity(db))
	r.GET("/me", RequireIdentity(), func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUserID(c)+"/"+string(CurrentRole(c)))
	})
	r.GET("/admin", RequireRole(models.RoleAdmin, models.RoleSuperAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/me", "", "").Code)

	w := do(r, http.MethodGet, "/me", "someone", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "someone/user", w.Body.String())

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/admin", "someone", "").Code)
	assert.Equal(t, http.StatusNoContent, do(r, http.MethodGet, "/admin", admin.ID, "").Code)
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rc, _ := redistest.New(t)

	r := gin.New()
	r.Use(Identity(nil), RateLimit(rc.Raw(), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := []int{}
	for i := 0; i < 3; i++ {
		codes = append(codes, do(r, http.MethodGet, "/", "u1", "").Code)
	}
	// The window may roll over between requests; the third one is limited
	// unless it did.
	assert.Equal(t, http.StatusOK, codes[0])
	assert.Contains(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes[2])
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/", "u2", "").Code, "limits are per user")
}

func TestIdempotence(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rc, _ := redistest.New(t)

	calls := 0
	r := gin.New()
	r.Use(Identity(nil), Idempotence(rc.Raw()))
	r.POST("/folders", func(c *gin.Context) {
		calls++
		c.Status(http.StatusCreated)
	})
	r.POST("/fail", func(c *gin.Context) {
		calls++
		c.Status(http.StatusBadRequest)
	})

	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/folders", "u1", `{"name":"Travel"}`).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/folders", "u1", `{"name":"Travel"}`).Code)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/folders", "u2", `{"name":"Travel"}`).Code)
	assert.Equal(t, 2, calls)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/fail", "u1", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/fail", "u1", `{}`).Code, "failed requests may be retried")
	assert.Equal(t, 4, calls)
}
