package evaluation

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/vocalingo/core/internal/middleware"
	"github.com/vocalingo/core/internal/pkg/blobstore"
	"github.com/vocalingo/core/internal/pkg/pagination"
	"github.com/vocalingo/core/internal/pkg/response"
	"github.com/vocalingo/core/internal/pkg/taskqueue"
)

type Handler struct {
	svc   *Service
	blobs blobstore.Store
}

func NewHandler(svc *Service, blobs blobstore.Store) *Handler {
	return &Handler{svc: svc, blobs: blobs}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/evaluations", authMW)
	g.GET("", h.list)
	g.POST("", h.enqueue)
	g.POST("/audio", h.upload)
	g.GET("/:id", h.status)
}

func (h *Handler) enqueue(c *gin.Context) {
	var data JobData
	if err := c.ShouldBindJSON(&data); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	data.UserID = middleware.CurrentUserID(c)
	task, err := h.svc.Enqueue(c.Request.Context(), data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, task)
}

func (h *Handler) status(c *gin.Context) {
	task, err := h.svc.Status(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, task)
}

func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	var status *taskqueue.TaskStatus
	if raw := c.Query("status"); raw != "" {
		s := taskqueue.TaskStatus(raw)
		status = &s
	}
	tasks, total, err := h.svc.List(c.Request.Context(), middleware.CurrentUserID(c), status, q.Page, q.Size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, tasks, pagination.Meta(q, total))
}

// upload stores a recording and returns the fileId to submit for evaluation.
func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, blobstore.MaxObjectSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	contentType := fh.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "audio/") && !strings.HasPrefix(contentType, "video/webm") {
		response.BadRequest(c, "file must be an audio recording")
		return
	}
	if fh.Size > blobstore.MaxObjectSize {
		response.BadRequest(c, fmt.Sprintf("file exceeds %d bytes", blobstore.MaxObjectSize))
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.Error(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, blobstore.MaxObjectSize+1))
	if err != nil {
		response.Error(c, err)
		return
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	key := fmt.Sprintf("audio/%s/%s%s", middleware.CurrentUserID(c), uuid.NewString(), ext)
	if err := h.blobs.Upload(c.Request.Context(), key, data, contentType); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"fileId": key, "size": len(data)})
}
