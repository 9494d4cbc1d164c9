// Package router 管理路由配置，用于设置HTTP服务的路由规则.
// router 包只负责将路径和处理器绑定到 gin 引擎，
// 处理器的实现由 pkg/internal/handle 提供.
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterAll 将全部业务路由绑定到传入的路由组.
func RegisterAll(g *gin.RouterGroup) {
	RegisterStorageRoutes(g)
	RegisterChunksRoutes(g)
	RegisterOrphanedRoutes(g)
	RegisterMigrationsRoutes(g)
	RegisterJobsRoutes(g)
	RegisterHealthCheckRoute(g)
	RegisterSchedulerRoutes(g)
}
