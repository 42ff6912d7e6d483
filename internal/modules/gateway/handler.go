package gateway

import (
	"github.com/gin-gonic/gin"
	"github.com/vocalingo/core/internal/pkg/response"
)

// RegisterRoutes mounts socket.io and the stats endpoint.
func RegisterRoutes(root gin.IRoutes, api *gin.RouterGroup, hub *Hub, adminMW gin.HandlerFunc) {
	handler := gin.WrapH(hub.Handler())
	root.Any("/socket.io", handler)
	root.Any("/socket.io/*any", handler)

	api.GET("/gateway/stats", adminMW, func(c *gin.Context) {
		response.OK(c, gin.H{
			"sockets": hub.ClientCount(""),
			"users":   hub.Users(),
		})
	})
}
