package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/handle"
)

// RegisterStorageRoutes 注册配额与存储相关路由.
func RegisterStorageRoutes(g *gin.RouterGroup) {
	storageRoutes := g.Group("/storage")
	{
		storageRoutes.GET("", handle.GetUserStorage)      // 配额快照
		storageRoutes.DELETE("", handle.ClearUserStorage) // 清空用户存储
		storageRoutes.POST("/refresh", handle.RefreshUserStorage)
		storageRoutes.GET("/check", handle.CheckUpload)
		storageRoutes.PUT("/quota", handle.UpdateUserQuota)
		storageRoutes.GET("/system", handle.GetSystemStorage)
		storageRoutes.GET("/recommendation", handle.GetStorageRecommendation)

		// 管理端点
		adminGroup := storageRoutes.Group("/admin")
		{
			adminGroup.GET("/users", handle.GetAllUsersStorage)
			adminGroup.GET("/stats", handle.GetTotalStorageStats)
			adminGroup.DELETE("", handle.ClearAllUsersStorage)
		}
	}
}
