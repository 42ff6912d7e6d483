package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "user_role"

	HeaderUserID = "X-User-Id"
)

// Identity resolves the acting user from the X-User-Id header set by the
// upstream gateway. The role is read from the users table; unknown users are
// plain users. Requests without the header pass through anonymous.
func Identity(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if userID == "" {
			c.Next()
			return
		}
		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyRole, lookupRole(c, db, userID))
		c.Next()
	}
}

func lookupRole(c *gin.Context, db *gorm.DB, userID string) models.Role {
	if db == nil {
		return models.RoleUser
	}
	var u models.User
	err := db.WithContext(c.Request.Context()).Select("id", "role").First(&u, "id = ?", userID).Error
	if err != nil || u.Role == "" {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			_ = c.Error(err)
		}
		return models.RoleUser
	}
	return u.Role
}

// RequireIdentity rejects anonymous requests.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUserID(c) == "" {
			response.Unauthorized(c)
			return
		}
		c.Next()
	}
}

// RequireRole allows only the listed roles through.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUserID(c) == "" {
			response.Unauthorized(c)
			return
		}
		role := CurrentRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient role")
	}
}

// CurrentUserID returns the authenticated user ID from the gin context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

// CurrentRole returns the role resolved by Identity.
func CurrentRole(c *gin.Context) models.Role {
	v, _ := c.Get(ContextKeyRole)
	role, _ := v.(models.Role)
	if role == "" {
		return models.RoleUser
	}
	return role
}

// IsAuthenticated reports whether a user identity is present.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}
