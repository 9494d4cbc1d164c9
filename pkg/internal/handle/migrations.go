package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/model"
	"github.com/yeisme/transvault/pkg/internal/service"
)

// GetMediaStorageInfo 返回媒体当前的存储层级信息。
//
//	@Summary	媒体存储信息
//	@Tags		迁移
//	@Produce	json
//	@Success	200	{object}	types.MediaStorageInfo
//	@Failure	400	{object}	map[string]string
//	@Failure	404	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/migrations/media/{mediaId} [get]
func GetMediaStorageInfo(c *gin.Context) {
	mediaID := c.Param("mediaId")

	do(c, "media storage info failed", func(reg *service.Registry, user string) (any, error) {
		info, err := reg.Hybrid.GetMediaStorageInfo(c.Request.Context(), mediaID, user)
		if err != nil {
			return nil, err
		}

		if info == nil {
			return gin.H{"error": "media not found"}, nil
		}

		return info, nil
	})
}

// MigrateToServer 迁移媒体到服务器单文件层级。
//
//	@Summary	迁移到服务器
//	@Tags		迁移
//	@Produce	json
//	@Success	200	{object}	types.MigrationResult
//	@Failure	400	{object}	map[string]string
//	@Router		/api/v1/migrations/media/{mediaId}/server [post]
func MigrateToServer(c *gin.Context) {
	mediaID := c.Param("mediaId")

	do(c, "migrate to server failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Hybrid.MigrateToServer(c.Request.Context(), mediaID, user, nil), nil
	})
}

// MigrateToLocal 迁移媒体到用户机器的本地层级。
//
//	@Summary	迁移到本地
//	@Tags		迁移
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	types.MigrationResult
//	@Failure	400	{object}	map[string]string
//	@Router		/api/v1/migrations/media/{mediaId}/local [post]
func MigrateToLocal(c *gin.Context) {
	mediaID := c.Param("mediaId")

	var body struct {
		LocalPath  string `json:"local_path" binding:"required"`
		ComputerID string `json:"computer_id"`
	}

	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	do(c, "migrate to local failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Hybrid.MigrateToLocal(c.Request.Context(), mediaID, user, body.LocalPath, body.ComputerID), nil
	})
}

// MigrateToChunked 迁移媒体到分块层级。
//
//	@Summary	迁移到分块存储
//	@Tags		迁移
//	@Produce	json
//	@Success	200	{object}	types.MigrationResult
//	@Failure	400	{object}	map[string]string
//	@Router		/api/v1/migrations/media/{mediaId}/chunked [post]
func MigrateToChunked(c *gin.Context) {
	mediaID := c.Param("mediaId")

	do(c, "migrate to chunked failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Hybrid.MigrateToChunked(c.Request.Context(), mediaID, user, nil), nil
	})
}

// ResumeMigration 粗粒度续传：废弃旧记录并按原方向重新迁移。
//
//	@Summary	续传迁移
//	@Tags		迁移
//	@Produce	json
//	@Success	200	{object}	types.MigrationResult
//	@Failure	400	{object}	map[string]string
//	@Router		/api/v1/migrations/{migrationId}/resume [post]
func ResumeMigration(c *gin.Context) {
	migrationID := c.Param("migrationId")

	do(c, "resume migration failed", func(reg *service.Registry, _ string) (any, error) {
		return reg.Hybrid.ResumeMigration(c.Request.Context(), migrationID), nil
	})
}

// ValidateLocalFile 校验本地层级媒体文件是否仍可访问且大小一致。
//
//	@Summary	校验本地文件
//	@Tags		迁移
//	@Produce	json
//	@Success	200	{object}	types.LocalFileValidation
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/migrations/media/{mediaId}/validate [get]
func ValidateLocalFile(c *gin.Context) {
	mediaID := c.Param("mediaId")

	do(c, "validate local file failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Hybrid.ValidateLocalFile(c.Request.Context(), mediaID, user)
	})
}

// SyncLocalFiles 批量校验当前用户的本地层级文件。
//
//	@Summary	同步本地文件状态
//	@Tags		迁移
//	@Produce	json
//	@Success	200	{object}	types.SyncResult
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/migrations/sync [post]
func SyncLocalFiles(c *gin.Context) {
	do(c, "sync local files failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Hybrid.SyncLocalFiles(c.Request.Context(), user)
	})
}

// GetMigrationStats 按状态统计当前用户的迁移记录。
//
//	@Summary	迁移统计
//	@Tags		迁移
//	@Produce	json
//	@Success	200	{object}	map[string]int64
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/migrations/stats [get]
func GetMigrationStats(c *gin.Context) {
	do(c, "migration stats failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Hybrid.GetMigrationStats(c.Request.Context(), user)
	})
}

// CleanupMigrations 删除当前用户超过保留期的终态迁移记录。
//
//	@Summary	清理迁移记录
//	@Tags		迁移
//	@Produce	json
//	@Success	200	{object}	map[string]int
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/migrations/cleanup [post]
func CleanupMigrations(c *gin.Context) {
	do(c, "migration cleanup failed", func(reg *service.Registry, user string) (any, error) {
		removed, err := reg.Hybrid.CleanupFailedMigrations(c.Request.Context(), user)
		if err != nil {
			return nil, err
		}

		return gin.H{"removed": removed}, nil
	})
}

// OptimizeStorage 生成当前用户的存储优化建议。
//
//	@Summary	存储优化建议
//	@Tags		迁移
//	@Produce	json
//	@Success	200	{object}	types.OptimizationPlan
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/migrations/optimize [get]
func OptimizeStorage(c *gin.Context) {
	do(c, "optimize storage failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Hybrid.OptimizeUserStorage(c.Request.Context(), user)
	})
}

// GetMigrationCost 估算迁移到目标层级的成本。
//
//	@Summary	迁移成本估算
//	@Tags		迁移
//	@Produce	json
//	@Param		target	query		string	true	"目标层级"	Enums(local, server, server_chunked)
//	@Success	200		{object}	types.MigrationCost
//	@Failure	400		{object}	map[string]string
//	@Failure	500		{object}	map[string]string
//	@Router		/api/v1/migrations/media/{mediaId}/cost [get]
func GetMigrationCost(c *gin.Context) {
	mediaID := c.Param("mediaId")

	target := model.StorageType(c.Query("target"))

	switch target {
	case model.StorageLocal, model.StorageServer, model.StorageServerChunked:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target tier"})
		return
	}

	do(c, "migration cost failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Hybrid.CalculateMigrationCost(c.Request.Context(), mediaID, user, target)
	})
}
