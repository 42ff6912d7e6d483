package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/middleware"
	"github.com/vocalingo/core/internal/models"
	"github.com/vocalingo/core/internal/pkg/apperr"
	"github.com/vocalingo/core/internal/pkg/pagination"
	"github.com/vocalingo/core/internal/pkg/response"
	"gorm.io/gorm"
)

type CreateUserDTO struct {
	ID   string      `json:"id"`
	Name string      `json:"name" binding:"required"`
	Role models.Role `json:"role"`
}

type UpdateRoleDTO struct {
	Role models.Role `json:"role" binding:"required"`
}

type Service struct{ db *gorm.DB }

func NewService(db *gorm.DB) *Service { return &Service{db: db} }

func parseRole(r models.Role) (models.Role, error) {
	switch models.Role(strings.TrimSpace(string(r))) {
	case "", models.RoleUser:
		return models.RoleUser, nil
	case models.RoleAdmin:
		return models.RoleAdmin, nil
	case models.RoleSuperAdmin:
		return models.RoleSuperAdmin, nil
	}
	return "", apperr.Invalid("role", fmt.Sprintf("unknown role %q", r))
}

func (s *Service) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
		}
		return nil, err
	}
	return &u, nil
}

func (s *Service) List(ctx context.Context, q pagination.Query) ([]models.User, response.Pagination, error) {
	users := []models.User{}
	page, err := pagination.Paginate(s.db.WithContext(ctx).Model(&models.User{}).Order("created_at ASC"), q, &users)
	return users, page, err
}

// Create registers a user. Only a super admin may create another super admin.
func (s *Service) Create(ctx context.Context, actor models.Role, dto CreateUserDTO) (*models.User, error) {
	role, err := parseRole(dto.Role)
	if err != nil {
		return nil, err
	}
	if role == models.RoleSuperAdmin && actor != models.RoleSuperAdmin {
		return nil, fmt.Errorf("%w: only a super admin can grant %s", apperr.ErrForbidden, role)
	}
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return nil, apperr.Invalid("name", "is required")
	}
	u := models.User{Name: name, Role: role}
	u.ID = strings.TrimSpace(dto.ID)
	if u.ID != "" {
		var n int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", u.ID).Count(&n).Error; err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: user %s exists", apperr.ErrConflict, u.ID)
		}
	}
	return &u, s.db.WithContext(ctx).Create(&u).Error
}

// SetRole changes a user's role. Super admin grants and revocations need a
// super admin, and nobody changes their own role.
func (s *Service) SetRole(ctx context.Context, actorID string, actor models.Role, id string, role models.Role) (*models.User, error) {
	role, err := parseRole(role)
	if err != nil {
		return nil, err
	}
	if actorID == id {
		return nil, fmt.Errorf("%w: cannot change your own role", apperr.ErrForbidden)
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if (role == models.RoleSuperAdmin || u.Role == models.RoleSuperAdmin) && actor != models.RoleSuperAdmin {
		return nil, fmt.Errorf("%w: only a super admin can change super admins", apperr.ErrForbidden)
	}
	if err := s.db.WithContext(ctx).Model(u).Update("role", role).Error; err != nil {
		return nil, err
	}
	u.Role = role
	return u, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW, adminMW gin.HandlerFunc) {
	rg.GET("/users/me", authMW, h.me)

	admin := rg.Group("/admin/users", adminMW)
	admin.GET("", h.list)
	admin.POST("", h.create)
	admin.GET("/:id", h.get)
	admin.PATCH("/:id/role", h.setRole)
}

// me reports the caller's identity; callers without a users row are plain users.
func (h *Handler) me(c *gin.Context) {
	id := middleware.CurrentUserID(c)
	u, err := h.svc.Get(c.Request.Context(), id)
	if errors.Is(err, apperr.ErrNotFound) {
		response.OK(c, gin.H{"id": id, "role": middleware.CurrentRole(c)})
		return
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

func (h *Handler) list(c *gin.Context) {
	users, page, err := h.svc.List(c.Request.Context(), pagination.FromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, users, page)
}

func (h *Handler) get(c *gin.Context) {
	u, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}

func (h *Handler) create(c *gin.Context) {
	var dto CreateUserDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.Create(c.Request.Context(), middleware.CurrentRole(c), dto)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, u)
}

func (h *Handler) setRole(c *gin.Context) {
	var dto UpdateRoleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.svc.SetRole(c.Request.Context(), middleware.CurrentUserID(c), middleware.CurrentRole(c), c.Param("id"), dto.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, u)
}
