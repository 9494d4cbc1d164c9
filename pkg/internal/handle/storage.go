package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/service"
)

// GetUserStorage 返回当前用户的配额快照（优先命中缓存）。
//
//	@Summary	用户存储配额
//	@Tags		存储
//	@Produce	json
//	@Success	200	{object}	types.UserStorageInfo
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/storage [get]
func GetUserStorage(c *gin.Context) {
	do(c, "get user storage failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Quota.GetUserStorage(c.Request.Context(), user)
	})
}

// RefreshUserStorage 丢弃缓存并同步重算用户用量。
//
//	@Summary	强制刷新配额
//	@Tags		存储
//	@Produce	json
//	@Success	200	{object}	types.UserStorageInfo
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/storage/refresh [post]
func RefreshUserStorage(c *gin.Context) {
	do(c, "refresh user storage failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Quota.ForceRefreshUserStorage(c.Request.Context(), user)
	})
}

// CheckUpload 按请求大小预检配额是否允许上传。
//
//	@Summary	上传配额预检
//	@Tags		存储
//	@Produce	json
//	@Param		size	query		int	true	"预计上传字节数"
//	@Success	200		{object}	types.UploadCheckResult
//	@Failure	400		{object}	map[string]string
//	@Failure	500		{object}	map[string]string
//	@Router		/api/v1/storage/check [get]
func CheckUpload(c *gin.Context) {
	size, err := strconv.ParseInt(c.Query("size"), 10, 64)
	if err != nil || size < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
		return
	}

	do(c, "upload check failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Quota.CanUserUpload(c.Request.Context(), user, size)
	})
}

// UpdateUserQuota 调整当前用户的配额上限（MB）。
//
//	@Summary	调整配额上限
//	@Tags		存储
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	types.UserStorageInfo
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/storage/quota [put]
func UpdateUserQuota(c *gin.Context) {
	var body struct {
		QuotaMB int64 `json:"quota_mb" binding:"required,min=1"`
	}

	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	do(c, "update quota failed", func(reg *service.Registry, user string) (any, error) {
		if err := reg.Quota.UpdateUserQuota(c.Request.Context(), user, body.QuotaMB); err != nil {
			return nil, err
		}

		return reg.Quota.GetUserStorage(c.Request.Context(), user)
	})
}

// ClearUserStorage 删除当前用户的全部存储数据并重置用量。
//
//	@Summary	清空用户存储
//	@Tags		存储
//	@Produce	json
//	@Success	200	{object}	types.ClearStorageResult
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/storage [delete]
func ClearUserStorage(c *gin.Context) {
	do(c, "clear user storage failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Quota.ClearUserStorage(c.Request.Context(), user)
	})
}

// GetSystemStorage 返回服务器磁盘空间信息。
//
//	@Summary	服务器磁盘信息
//	@Tags		存储
//	@Produce	json
//	@Success	200	{object}	types.SystemStorageInfo
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/storage/system [get]
func GetSystemStorage(c *gin.Context) {
	do(c, "system storage failed", func(reg *service.Registry, _ string) (any, error) {
		return reg.Quota.GetSystemStorage()
	})
}

// GetStorageRecommendation 按文件大小与偏好给出存储层级建议。
//
//	@Summary	存储层级建议
//	@Tags		存储
//	@Produce	json
//	@Param		size			query		int		true	"文件字节数"
//	@Param		prefers_offline	query		bool	false	"是否偏好离线可用"
//	@Success	200				{object}	types.StorageRecommendation
//	@Failure	400				{object}	map[string]string
//	@Router		/api/v1/storage/recommendation [get]
func GetStorageRecommendation(c *gin.Context) {
	size, err := strconv.ParseInt(c.Query("size"), 10, 64)
	if err != nil || size < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid size"})
		return
	}

	prefersOffline, _ := strconv.ParseBool(c.Query("prefers_offline"))

	do(c, "storage recommendation failed", func(reg *service.Registry, _ string) (any, error) {
		return reg.Chunks.GetStorageRecommendation(size, prefersOffline), nil
	})
}

// GetAllUsersStorage 管理端点：列出全部用户的配额快照。
//
//	@Summary	全部用户配额
//	@Tags		存储管理
//	@Produce	json
//	@Success	200	{array}		types.UserStorageInfo
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/storage/admin/users [get]
func GetAllUsersStorage(c *gin.Context) {
	do(c, "list users storage failed", func(reg *service.Registry, _ string) (any, error) {
		return reg.Quota.GetAllUsersStorage(c.Request.Context())
	})
}

// GetTotalStorageStats 管理端点：全体用户的聚合统计。
//
//	@Summary	存储聚合统计
//	@Tags		存储管理
//	@Produce	json
//	@Success	200	{object}	types.TotalStorageStats
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/storage/admin/stats [get]
func GetTotalStorageStats(c *gin.Context) {
	do(c, "total storage stats failed", func(reg *service.Registry, _ string) (any, error) {
		return reg.Quota.GetTotalStorageStats(c.Request.Context())
	})
}

// ClearAllUsersStorage 管理端点：清空所有用户的存储数据。
//
//	@Summary	清空全部存储
//	@Tags		存储管理
//	@Produce	json
//	@Success	200	{object}	types.ClearStorageResult
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/storage/admin [delete]
func ClearAllUsersStorage(c *gin.Context) {
	do(c, "clear all storage failed", func(reg *service.Registry, _ string) (any, error) {
		return reg.Quota.ClearAllUsersStorage(c.Request.Context())
	})
}
