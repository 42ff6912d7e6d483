package mastery

import (
	"strconv"
	"time"

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

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/mastery", authMW)
	g.GET("/summary", h.summary)
	g.GET("/subjects", h.subjects)
	g.GET("/distribution", h.distribution)
	g.GET("/progress", h.progress)
	g.GET("/problematic", h.problematic)
	g.GET("/vocabulary/:id", h.record)
}

func (h *Handler) summary(c *gin.Context) {
	out, err := h.svc.Summary(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) subjects(c *gin.Context) {
	out, err := h.svc.SubjectAverages(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) distribution(c *gin.Context) {
	out, err := h.svc.Distribution(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

// progress accepts from/to as YYYY-MM-DD; to is inclusive.
func (h *Handler) progress(c *gin.Context) {
	var f ProgressFilter
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			response.BadRequest(c, "from must be YYYY-MM-DD")
			return
		}
		f.From = t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			response.BadRequest(c, "to must be YYYY-MM-DD")
			return
		}
		f.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		response.BadRequest(c, "to is before from")
		return
	}
	out, err := h.svc.Progress(c.Request.Context(), middleware.CurrentUserID(c), f)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) problematic(c *gin.Context) {
	threshold, _ := strconv.Atoi(c.DefaultQuery("threshold", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	out, err := h.svc.Problematic(c.Request.Context(), middleware.CurrentUserID(c), threshold, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}

func (h *Handler) record(c *gin.Context) {
	out, err := h.svc.Record(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, out)
}
