package ai

import (
	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/middleware"
	"github.com/vocalingo/core/internal/pkg/response"
)

type Handler struct {
	client *Client
}

func NewHandler(client *Client) *Handler {
	return &Handler{client: client}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	g := rg.Group("/ai", authMW)
	g.GET("/providers", h.providers)
	g.GET("/selection", h.selection)
	g.POST("/check", h.check)

	rg.POST("/admin/ai/reset", adminMW, h.reset)
}

func (h *Handler) providers(c *gin.Context) {
	response.OK(c, h.client.Providers())
}

func (h *Handler) selection(c *gin.Context) {
	sel, err := h.client.Resolve(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, sel)
}

// check verifies that the caller's provider is usable without calling it.
func (h *Handler) check(c *gin.Context) {
	if err := h.client.Check(c.Request.Context(), middleware.CurrentUserID(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// reset drops cached provider clients so rotated credentials take effect.
func (h *Handler) reset(c *gin.Context) {
	h.client.registry.Reset()
	response.NoContent(c)
}
