package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/handle"
)

// RegisterChunksRoutes 注册分块存储相关路由.
func RegisterChunksRoutes(g *gin.RouterGroup) {
	chunksRoutes := g.Group("/chunks")
	{
		chunksRoutes.GET("/stats", handle.GetChunkStats)
		chunksRoutes.POST("/cleanup", handle.CleanupChunks)

		// 单个媒体的分块操作
		mediaGroup := chunksRoutes.Group("/:mediaId")
		{
			mediaGroup.POST("/file", handle.ChunkServerFile)     // 切分服务器文件
			mediaGroup.POST("/:index", handle.UploadChunk)       // 上传单个分块
			mediaGroup.GET("/progress", handle.GetChunkProgress) // 完成进度
			mediaGroup.GET("/resume", handle.ResumeChunkUpload)  // 续传信息
			mediaGroup.GET("/verify", handle.VerifyChunks)       // 完整性校验
			mediaGroup.GET("/assemble", handle.DownloadAssembled)
			mediaGroup.DELETE("", handle.DeleteChunks)
		}
	}
}
