package vocab

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/middleware"
	"github.com/vocalingo/core/internal/pkg/pagination"
	"github.com/vocalingo/core/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	folders := rg.Group("/folders", authMW)
	folders.GET("", h.listFolders)
	folders.POST("", h.createFolder)
	folders.GET("/:id", h.getFolder)
	folders.PUT("/:id", h.updateFolder)
	folders.PATCH("/:id", h.updateFolder)
	folders.DELETE("/:id", h.deleteFolder)

	subjects := rg.Group("/subjects", authMW)
	subjects.GET("", h.listSubjects)
	subjects.POST("", h.createSubject)
	subjects.GET("/:id", h.getSubject)
	subjects.DELETE("/:id", h.deleteSubject)

	vocab := rg.Group("/vocabulary", authMW)
	vocab.GET("", h.listVocabulary)
	vocab.POST("", h.createVocabulary)
	vocab.GET("/random", h.random)
	vocab.GET("/:id", h.getVocabulary)
	vocab.DELETE("/:id", h.deleteVocabulary)

	rg.GET("/quota", authMW, h.usage)
}

func actorOf(c *gin.Context) Actor {
	return Actor{UserID: middleware.CurrentUserID(c), Role: middleware.CurrentRole(c)}
}

func (h *Handler) listFolders(c *gin.Context) {
	folders, err := h.svc.ListFolders(c.Request.Context(), middleware.CurrentUserID(c), FolderFilter{Name: c.Query("name")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, folders)
}

func (h *Handler) createFolder(c *gin.Context) {
	var in FolderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	folder, err := h.svc.CreateFolder(c.Request.Context(), actorOf(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, folder)
}

func (h *Handler) getFolder(c *gin.Context) {
	folder, err := h.svc.GetFolder(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, folder)
}

func (h *Handler) updateFolder(c *gin.Context) {
	var in FolderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	folder, err := h.svc.UpdateFolder(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, folder)
}

func (h *Handler) deleteFolder(c *gin.Context) {
	if err := h.svc.DeleteFolder(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listSubjects(c *gin.Context) {
	subjects, err := h.svc.ListSubjects(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, subjects)
}

func (h *Handler) createSubject(c *gin.Context) {
	var in SubjectInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	subject, err := h.svc.CreateSubject(c.Request.Context(), actorOf(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

func (h *Handler) getSubject(c *gin.Context) {
	subject, err := h.svc.GetSubject(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, subject)
}

func (h *Handler) deleteSubject(c *gin.Context) {
	if err := h.svc.DeleteSubject(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) listVocabulary(c *gin.Context) {
	q := pagination.FromContext(c)
	page, err := h.svc.ListVocabulary(c.Request.Context(), middleware.CurrentUserID(c), VocabularyFilter{
		FolderID:  c.Query("folderId"),
		SubjectID: c.Query("subjectId"),
		Query:     c.Query("q"),
		Page:      q.Page,
		Size:      q.Size,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, page.Items, page.Pagination)
}

func (h *Handler) createVocabulary(c *gin.Context) {
	var in VocabularyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	item, err := h.svc.CreateVocabulary(c.Request.Context(), actorOf(c), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

func (h *Handler) getVocabulary(c *gin.Context) {
	item, err := h.svc.GetVocabulary(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, item)
}

func (h *Handler) deleteVocabulary(c *gin.Context) {
	if err := h.svc.DeleteVocabulary(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func (h *Handler) random(c *gin.Context) {
	n, err := strconv.Atoi(c.DefaultQuery("count", "10"))
	if err != nil {
		response.BadRequest(c, "count must be a number")
		return
	}
	items, err := h.svc.RandomVocabulary(c.Request.Context(), middleware.CurrentUserID(c), n)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, items)
}

func (h *Handler) usage(c *gin.Context) {
	usage, err := h.svc.Usage(c.Request.Context(), actorOf(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, usage)
}
