package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/handle"
)

// RegisterMigrationsRoutes 注册存储层级迁移相关路由.
func RegisterMigrationsRoutes(g *gin.RouterGroup) {
	migrationsRoutes := g.Group("/migrations")
	{
		migrationsRoutes.GET("/stats", handle.GetMigrationStats)
		migrationsRoutes.GET("/optimize", handle.OptimizeStorage)
		migrationsRoutes.POST("/sync", handle.SyncLocalFiles)
		migrationsRoutes.POST("/cleanup", handle.CleanupMigrations)
		migrationsRoutes.POST("/:migrationId/resume", handle.ResumeMigration)

		mediaGroup := migrationsRoutes.Group("/media/:mediaId")
		{
			mediaGroup.GET("", handle.GetMediaStorageInfo)
			mediaGroup.GET("/validate", handle.ValidateLocalFile)
			mediaGroup.GET("/cost", handle.GetMigrationCost)
			mediaGroup.POST("/server", handle.MigrateToServer)
			mediaGroup.POST("/local", handle.MigrateToLocal)
			mediaGroup.POST("/chunked", handle.MigrateToChunked)
		}
	}
}
