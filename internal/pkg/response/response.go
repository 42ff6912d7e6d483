package response

import (
	"errors"
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/pkg/apperr"
)

// Pagination metadata returned with paginated responses.
type Pagination struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	TotalPage   int   `json:"total_page"`
	Size        int   `json:"size"`
	HasNextPage bool  `json:"has_next_page"`
}

type pagedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// StatusCoder lets domain errors choose their own HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// OK sends a 200 response. Arrays/slices are wrapped in {data: [...]}.
func OK(c *gin.Context, data interface{}) {
	if data != nil {
		v := reflect.ValueOf(data)
		if v.Kind() == reflect.Slice {
			c.JSON(http.StatusOK, gin.H{"data": data})
			return
		}
	}
	c.JSON(http.StatusOK, data)
}

// Paged sends a paginated response.
func Paged(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, pagedResponse{Data: data, Pagination: pagination})
}

// Created sends a 201 response.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Accepted sends a 202 response for work that continues asynchronously.
func Accepted(c *gin.Context, data interface{}) {
	c.JSON(http.StatusAccepted, data)
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": 0, "code": status, "message": message})
}

// BadRequest sends a 400 error response.
func BadRequest(c *gin.Context, message string) { abort(c, http.StatusBadRequest, message) }

// Unauthorized sends a 401 error response.
func Unauthorized(c *gin.Context) { abort(c, http.StatusUnauthorized, "missing user identity") }

// Forbidden sends a 403 error response with a custom message.
func Forbidden(c *gin.Context, message string) { abort(c, http.StatusForbidden, message) }

// NotFound sends a 404 error response.
func NotFound(c *gin.Context) { abort(c, http.StatusNotFound, "not found") }

// Conflict sends a 409 error response.
func Conflict(c *gin.Context, message string) { abort(c, http.StatusConflict, message) }

// MethodNotAllowed sends a 405 error response.
func MethodNotAllowed(c *gin.Context) { abort(c, http.StatusMethodNotAllowed, "method not allowed") }

// InternalError sends a 500 error response.
func InternalError(c *gin.Context, err error) {
	abort(c, http.StatusInternalServerError, err.Error())
}

// Error maps a service error onto the response envelope.
func Error(c *gin.Context, err error) {
	var sc StatusCoder
	switch {
	case errors.As(err, &sc):
		abort(c, sc.HTTPStatus(), err.Error())
	case errors.Is(err, apperr.ErrValidation):
		BadRequest(c, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		abort(c, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		Forbidden(c, err.Error())
	case errors.Is(err, apperr.ErrUnauthorized):
		abort(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		Conflict(c, err.Error())
	default:
		InternalError(c, err)
	}
}
