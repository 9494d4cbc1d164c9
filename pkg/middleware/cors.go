package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/configs"
)

// CORSMiddleware CORS中间件.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = append(config.AllowHeaders, "X-User")

	config.AllowWebSockets = true
	config.AllowFiles = true

	if cfg.Debug {
		config.ExposeHeaders = append(config.ExposeHeaders, "X-Cache")
	}

	return cors.New(config)
}
