package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/handle"
)

// RegisterOrphanedRoutes 注册孤儿转写归档相关路由.
func RegisterOrphanedRoutes(g *gin.RouterGroup) {
	orphanedRoutes := g.Group("/orphaned")
	{
		orphanedRoutes.GET("", handle.GetOrphanedIndex)
		orphanedRoutes.POST("", handle.ArchiveTranscription)
		orphanedRoutes.GET("/search", handle.FindOrphaned)
		orphanedRoutes.POST("/search", handle.FindOrphanedBatch)
		orphanedRoutes.GET("/duplicates", handle.CheckDuplicateMedia)
		orphanedRoutes.POST("/rebuild", handle.RebuildOrphanedIndex)
		orphanedRoutes.POST("/cleanup", handle.CleanupOrphanedIndex)

		orphanedRoutes.POST("/:id/restore", handle.RestoreOrphaned)
		orphanedRoutes.DELETE("/:id", handle.RemoveOrphaned)
	}
}
