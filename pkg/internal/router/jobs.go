package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/handle"
)

// RegisterJobsRoutes 注册后台任务队列相关路由.
func RegisterJobsRoutes(g *gin.RouterGroup) {
	jobsRoutes := g.Group("/jobs")
	{
		jobsRoutes.POST("", handle.EnqueueJob)
		jobsRoutes.GET("", handle.ListJobs)
		jobsRoutes.GET("/stats", handle.GetQueueStats)
		jobsRoutes.GET("/:id", handle.GetJobStatus)
	}
}
