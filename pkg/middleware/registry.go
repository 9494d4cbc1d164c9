package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/service"
)

// RegistryMiddleware 将服务注册表注入到context中，handler 经
// service.RegistryFrom 取用.
func RegistryMiddleware(reg *service.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := service.WithRegistry(c.Request.Context(), reg)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
