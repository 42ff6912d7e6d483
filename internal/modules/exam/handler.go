package exam

import (
	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/middleware"
	"github.com/vocalingo/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type submitRequest struct {
	Answers []Submission `json:"answers" binding:"required,dive"`
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/trainers", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.GET("/:id/vocabulary", h.vocabulary)
	g.POST("/:id/start", h.start)
	g.POST("/:id/cancel", h.cancel)
	g.POST("/:id/submit", h.submit)
	g.GET("/:id/result", h.result)
}

func (h *Handler) list(c *gin.Context) {
	out, err := h.svc.List(c.Request.Context(), middleware.CurrentUserID(c), ListFilter{Status: c.Query("status")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	trainer, err := h.svc.Create(c.Request.Context(), middleware.CurrentUserID(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, trainer)
}

func (h *Handler) get(c *gin.Context) {
	trainer, err := h.svc.Get(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, trainer)
}

func (h *Handler) vocabulary(c *gin.Context) {
	trainer, err := h.svc.Get(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.svc.Vocabulary(c.Request.Context(), trainer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

func (h *Handler) start(c *gin.Context) {
	trainer, err := h.svc.Start(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, trainer)
}

func (h *Handler) cancel(c *gin.Context) {
	trainer, err := h.svc.Cancel(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, trainer)
}

func (h *Handler) submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	out, err := h.svc.Submit(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), req.Answers)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) result(c *gin.Context) {
	out, err := h.svc.Result(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}
