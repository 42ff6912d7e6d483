package pagination

import (
	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/pkg/response"
	"gorm.io/gorm"
)

const (
	DefaultPage = 1
	DefaultSize = 10
	MaxSize     = 100
)

// Query holds parsed pagination parameters.
type Query struct {
	Page int `form:"page"`
	Size int `form:"size"`
}

// FromContext reads page/size from the query string. Malformed or out of
// range values fall back to the defaults; size is capped at MaxSize.
func FromContext(c *gin.Context) Query {
	var q Query
	if err := c.ShouldBindQuery(&q); err != nil {
		q = Query{}
	}
	return q.normalize()
}

func (q Query) normalize() Query {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Size < 1 {
		q.Size = DefaultSize
	}
	if q.Size > MaxSize {
		q.Size = MaxSize
	}
	return q
}

// Paginate applies limit/offset to a GORM query and returns the pagination metadata.
func Paginate[T any](db *gorm.DB, q Query, dest *[]T) (response.Pagination, error) {
	q = q.normalize()
	var total int64
	if err := db.Count(&total).Error; err != nil {
		return response.Pagination{}, err
	}

	offset := (q.Page - 1) * q.Size
	if err := db.Offset(offset).Limit(q.Size).Find(dest).Error; err != nil {
		return response.Pagination{}, err
	}

	return Meta(q, total), nil
}

// Meta builds pagination metadata for a result set counted elsewhere.
func Meta(q Query, total int64) response.Pagination {
	q = q.normalize()
	totalPage := int((total + int64(q.Size) - 1) / int64(q.Size))
	return response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPage,
		Size:        q.Size,
		HasNextPage: q.Page < totalPage,
	}
}
