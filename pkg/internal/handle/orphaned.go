package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/transvault/pkg/internal/service"
	"github.com/yeisme/transvault/pkg/internal/types"
)

// GetOrphanedIndex 返回当前用户的孤儿转写索引（不存在时初始化空索引）。
//
//	@Summary	孤儿转写索引
//	@Tags		孤儿转写
//	@Produce	json
//	@Success	200	{object}	types.OrphanedIndex
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/orphaned [get]
func GetOrphanedIndex(c *gin.Context) {
	do(c, "load orphaned index failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Orphaned.Initialize(user)
	})
}

// ArchiveTranscription 把一份转写归档为孤儿并登记索引。
//
//	@Summary	归档转写
//	@Tags		孤儿转写
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	types.OrphanedTranscription
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/orphaned [post]
func ArchiveTranscription(c *gin.Context) {
	var body struct {
		ProjectID        string `json:"project_id"        binding:"required"`
		ProjectName      string `json:"project_name"`
		ProjectFolder    string `json:"project_folder"`
		MediaID          string `json:"media_id"          binding:"required"`
		MediaName        string `json:"media_name"        binding:"required"`
		TranscriptionDir string `json:"transcription_dir" binding:"required"`
		MediaPath        string `json:"media_path"`
	}

	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	do(c, "archive transcription failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Orphaned.ArchiveTranscription(c.Request.Context(), service.ArchiveRequest{
			UserID:           user,
			ProjectID:        body.ProjectID,
			ProjectName:      body.ProjectName,
			ProjectFolder:    body.ProjectFolder,
			MediaID:          body.MediaID,
			MediaName:        body.MediaName,
			TranscriptionDir: body.TranscriptionDir,
			MediaPath:        body.MediaPath,
		})
	})
}

// FindOrphaned 按媒体名查找孤儿转写（大小写不敏感）。
//
//	@Summary	按媒体名查找
//	@Tags		孤儿转写
//	@Produce	json
//	@Param		media_name	query		string	true	"媒体文件名"
//	@Success	200			{array}		types.OrphanedTranscription
//	@Failure	400			{object}	map[string]string
//	@Failure	500			{object}	map[string]string
//	@Router		/api/v1/orphaned/search [get]
func FindOrphaned(c *gin.Context) {
	mediaName := c.Query("media_name")
	if mediaName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing media_name"})
		return
	}

	do(c, "find orphaned failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Orphaned.FindOrphanedTranscriptions(user, mediaName)
	})
}

// FindOrphanedBatch 批量按媒体名查找孤儿转写。
//
//	@Summary	批量按媒体名查找
//	@Tags		孤儿转写
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	map[string][]types.OrphanedTranscription
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/orphaned/search [post]
func FindOrphanedBatch(c *gin.Context) {
	var body struct {
		MediaNames []string `json:"media_names" binding:"required,min=1"`
	}

	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	do(c, "batch find orphaned failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Orphaned.FindOrphanedTranscriptionsForMultipleMedia(user, body.MediaNames)
	})
}

// CheckDuplicateMedia 按媒体名与大小检查是否有可复用的孤儿转写。
//
//	@Summary	重复媒体检查
//	@Tags		孤儿转写
//	@Produce	json
//	@Param		media_name	query		string	true	"媒体文件名"
//	@Param		size		query		int		false	"媒体字节数，0 表示忽略大小"
//	@Success	200			{object}	types.DuplicateCheckResult
//	@Failure	400			{object}	map[string]string
//	@Failure	500			{object}	map[string]string
//	@Router		/api/v1/orphaned/duplicates [get]
func CheckDuplicateMedia(c *gin.Context) {
	mediaName := c.Query("media_name")
	if mediaName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing media_name"})
		return
	}

	size, _ := strconv.ParseInt(c.Query("size"), 10, 64)

	do(c, "duplicate check failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Orphaned.CheckForDuplicateMedia(user, mediaName, size)
	})
}

// RestoreOrphaned 把归档的转写恢复到目标媒体（覆盖或按块合并）。
//
//	@Summary	恢复孤儿转写
//	@Tags		孤儿转写
//	@Accept		json
//	@Produce	json
//	@Success	200	{object}	types.RestoreResult
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/orphaned/{id}/restore [post]
func RestoreOrphaned(c *gin.Context) {
	transcriptionID := c.Param("id")

	var body struct {
		ProjectID string `json:"project_id" binding:"required"`
		MediaID   string `json:"media_id"   binding:"required"`
		Mode      string `json:"mode"       binding:"omitempty,oneof=override append"`
	}

	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mode := types.RestoreMode(body.Mode)
	if mode == "" {
		mode = types.RestoreOverride
	}

	do(c, "restore transcription failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Orphaned.RestoreTranscription(user, transcriptionID, body.ProjectID, body.MediaID, mode), nil
	})
}

// RemoveOrphaned 从索引中删除一条孤儿转写记录。
//
//	@Summary	删除索引记录
//	@Tags		孤儿转写
//	@Produce	json
//	@Success	200	{object}	map[string]bool
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/orphaned/{id} [delete]
func RemoveOrphaned(c *gin.Context) {
	transcriptionID := c.Param("id")

	do(c, "remove orphaned failed", func(reg *service.Registry, user string) (any, error) {
		removed, err := reg.Orphaned.RemoveOrphanedTranscription(user, transcriptionID)
		if err != nil {
			return nil, err
		}

		return gin.H{"removed": removed}, nil
	})
}

// RebuildOrphanedIndex 扫描归档目录重建索引。
//
//	@Summary	重建索引
//	@Tags		孤儿转写
//	@Produce	json
//	@Success	200	{object}	types.RebuildResult
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/orphaned/rebuild [post]
func RebuildOrphanedIndex(c *gin.Context) {
	do(c, "rebuild index failed", func(reg *service.Registry, user string) (any, error) {
		return reg.Orphaned.RebuildIndex(user)
	})
}

// CleanupOrphanedIndex 修剪索引中归档路径已失效的条目。
//
//	@Summary	清理索引
//	@Tags		孤儿转写
//	@Produce	json
//	@Success	200	{object}	map[string]int
//	@Failure	400	{object}	map[string]string
//	@Failure	500	{object}	map[string]string
//	@Router		/api/v1/orphaned/cleanup [post]
func CleanupOrphanedIndex(c *gin.Context) {
	do(c, "cleanup index failed", func(reg *service.Registry, user string) (any, error) {
		pruned, err := reg.Orphaned.CleanupIndex(user)
		if err != nil {
			return nil, err
		}

		return gin.H{"pruned": pruned}, nil
	})
}
