package settings

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/middleware"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type setRequest struct {
	Value json.RawMessage `json:"value" binding:"required"`
}

// RegisterRoutes mounts the caller's own settings and, behind adminMW, the
// system-wide defaults.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	user := rg.Group("/settings", authMW)
	user.GET("", h.list(userScope))
	user.PUT("/:key", h.set(userScope))
	user.DELETE("/:key", h.remove(userScope))

	system := rg.Group("/admin/settings", adminMW)
	system.GET("", h.list(systemScope))
	system.PUT("/:key", h.set(systemScope))
	system.DELETE("/:key", h.remove(systemScope))
}

type scopeFunc func(c *gin.Context) (string, bool)

func userScope(c *gin.Context) (string, bool) {
	id := middleware.CurrentUserID(c)
	if id == "" || id == models.SystemScope {
		response.Forbidden(c, "reserved scope")
		return "", false
	}
	return id, true
}

func systemScope(*gin.Context) (string, bool) {
	return models.SystemScope, true
}

func (h *Handler) list(scope scopeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := scope(c)
		if !ok {
			return
		}
		rows, err := h.svc.List(c.Request.Context(), s)
		if err != nil {
			response.Error(c, err)
			return
		}
		out := make(map[string]json.RawMessage, len(rows))
		for _, row := range rows {
			if json.Valid([]byte(row.Value)) {
				out[row.Key] = json.RawMessage(row.Value)
				continue
			}
			out[row.Key], _ = json.Marshal(row.Value)
		}
		response.OK(c, out)
	}
}

func (h *Handler) set(scope scopeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := scope(c)
		if !ok {
			return
		}
		var req setRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		if err := h.svc.Set(c.Request.Context(), s, c.Param("key"), req.Value); err != nil {
			response.Error(c, err)
			return
		}
		response.NoContent(c)
	}
}

func (h *Handler) remove(scope scopeFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := scope(c)
		if !ok {
			return
		}
		if err := h.svc.Delete(c.Request.Context(), s, c.Param("key")); err != nil {
			response.Error(c, err)
			return
		}
		response.NoContent(c)
	}
}
