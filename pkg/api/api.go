// Package api 定义HTTP服务的API接口，聚合各业务路由组.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/router"
)

// RegisterGroup 注册存储子系统的全部路由组到传入的 gin 引擎.
func RegisterGroup(e *gin.Engine) *gin.Engine {
	router.RegisterAll(e.Group("/api/v1"))

	return e
}
